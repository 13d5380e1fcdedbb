// Package tui renders explorer output for terminals.
package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/skyscope/pkg/highlight"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// NewRenderer returns a function that renders markdown using glamour.
// It falls back to the raw markdown if no renderer can be built.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// HelpMarkdown documents the interactive explorer commands.
const HelpMarkdown = `# Skyframe explorer

Type a pattern to search node keys. ` + "`%`" + ` matches any run of characters, ` + "`_`" + ` matches exactly one.

| Command | Effect |
|---------|--------|
| ` + "`:t N`" + ` | Show or hide result row N on the graph |
| ` + "`:r [file]`" + ` | Render the shown nodes, optionally writing the SVG to file |
| ` + "`:c`" + ` | Collapse the search box |
| ` + "`:h`" + ` | Show this help |
| ` + "`:q`" + ` | Quit |
`

// RowPrinter styles result rows for one terminal profile.
type RowPrinter struct {
	profile termenv.Profile
}

// NewRowPrinter creates a printer. Use termenv.Ascii for plain output.
func NewRowPrinter(p termenv.Profile) *RowPrinter {
	return &RowPrinter{profile: p}
}

// Row formats one result row. The index is 1-based, the marker shows
// whether the node is on the graph, and highlighted segments are bold.
func (rp *RowPrinter) Row(index int, row highlight.Row) string {
	var sb strings.Builder
	marker := "[ ]"
	if row.Visible {
		marker = "[x]"
	}
	fmt.Fprintf(&sb, "%3d %s ", index, marker)
	sb.WriteString(rp.profile.String(row.Type).Foreground(rp.profile.Color("#a78bfa")).String())
	sb.WriteString(" ")
	for _, seg := range row.Segments {
		if seg.Kind == highlight.Highlight {
			sb.WriteString(rp.profile.String(seg.Text).Bold().Foreground(rp.profile.Color("#f472b6")).String())
			continue
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Rows formats a result list followed by the node count line.
func (rp *RowPrinter) Rows(rows []highlight.Row, nodeCount string) string {
	var sb strings.Builder
	for i, row := range rows {
		sb.WriteString(rp.Row(i+1, row))
		sb.WriteByte('\n')
	}
	if nodeCount != "" {
		sb.WriteString(rp.profile.String(nodeCount).Faint().String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
