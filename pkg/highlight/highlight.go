// Package highlight splits search results into context and highlight segments
// according to a SQLite LIKE pattern, the matching rule the Skyframe backend
// applies to node data.
package highlight

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/skyscope/pkg/domain"
)

// Kind tells a renderer how to style a segment.
type Kind string

const (
	Context   Kind = "context"
	Highlight Kind = "highlight"
)

const (
	// leadingContext is the number of characters of the first context segment
	// that are always kept.
	leadingContext = 16
	// lineBudget is the match length beyond which the first context segment
	// gives up characters.
	lineBudget = 180
	ellipsis   = "…"
)

// Segment is a run of text with a single style.
type Segment struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Matcher highlights the pieces of a LIKE pattern inside node data.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Compile builds a matcher for a LIKE pattern: '%' matches any run of
// characters and '_' matches exactly one. Matching is case-insensitive.
func Compile(pattern string) (*Matcher, error) {
	var sb strings.Builder
	sb.WriteString(`(?is)(.*)`)
	for _, piece := range strings.Split(pattern, "%") {
		quoted := strings.ReplaceAll(regexp.QuoteMeta(piece), "_", ".")
		sb.WriteString("(" + quoted + ")(.*)")
	}
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// Pattern returns the LIKE pattern the matcher was built from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Matches reports whether text matches the pattern.
func (m *Matcher) Matches(text string) bool {
	return m.re.MatchString(text)
}

// Segments splits text into alternating context and highlight segments,
// starting and ending with context. Long leading context is shortened to its
// tail with an ellipsis. Text that does not match becomes one context segment.
func (m *Matcher) Segments(text string) []Segment {
	groups := m.re.FindStringSubmatch(text)
	if groups == nil {
		return []Segment{{Text: text, Kind: Context}}
	}

	full := []rune(groups[0])
	segments := make([]Segment, 0, len(groups)-1)
	for i, group := range groups[1:] {
		kind := Context
		if i%2 == 1 {
			kind = Highlight
		}
		if i == 0 {
			group = trimLeading(group, len(full))
		}
		segments = append(segments, Segment{Text: group, Kind: kind})
	}
	return segments
}

// trimLeading keeps the last leadingContext runes of the first context
// segment, or more when the whole match is short enough to leave room.
func trimLeading(group string, matchLen int) string {
	runes := []rune(group)
	start := min(max(0, len(runes)-leadingContext), 2*max(0, matchLen-lineBudget))
	if start == 0 {
		return group
	}
	return ellipsis + string(runes[start:])
}

// Row is a search result prepared for display.
type Row struct {
	Hash     string    `json:"hash"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Visible  bool      `json:"visible"`
	Segments []Segment `json:"segments"`
}

// Classes returns the style classes for the row: "resultRow", the node type,
// and "visible" or "hidden".
func (r Row) Classes() []string {
	state := "hidden"
	if r.Visible {
		state = "visible"
	}
	return []string{"resultRow", r.Type, state}
}

// Row prepares a node for display.
func (m *Matcher) Row(n domain.Node, visible bool) Row {
	return Row{
		Hash:     n.Hash,
		Type:     n.DisplayType(),
		Title:    n.NodeData,
		Visible:  visible,
		Segments: m.Segments(n.NodeData),
	}
}
