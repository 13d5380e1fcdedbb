package domain

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

var viewIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,63}$`)

// ValidateViewID checks that id is safe to use as a file name, Redis key
// suffix and URL path segment. IDs may not start with a dot.
func ValidateViewID(id string) error {
	if !viewIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidViewID, id)
	}
	return nil
}

// VisibleSet holds the nodes shown on the rendered graph, keyed by hash.
// The node is kept alongside the hash so a visible node stays listed after
// it drops out of the current search results.
type VisibleSet map[string]Node

// Toggle adds the node if absent or removes it if present.
// It reports whether the node is visible afterwards.
func (v VisibleSet) Toggle(n Node) bool {
	if _, ok := v[n.Hash]; ok {
		delete(v, n.Hash)
		return false
	}
	v[n.Hash] = n
	return true
}

// Contains reports whether hash is visible.
func (v VisibleSet) Contains(hash string) bool {
	_, ok := v[hash]
	return ok
}

// Len returns the number of visible nodes.
func (v VisibleSet) Len() int {
	return len(v)
}

// Hashes returns the visible hashes in sorted order, the payload sent to /render.
func (v VisibleSet) Hashes() []string {
	out := make([]string, 0, len(v))
	for h := range v {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (v VisibleSet) Clone() VisibleSet {
	out := make(VisibleSet, len(v))
	for h, n := range v {
		out[h] = n
	}
	return out
}

// View is the persisted state of one explorer session.
type View struct {
	ID      string     `json:"id"`
	Pattern string     `json:"pattern"`
	Visible VisibleSet `json:"visible"`
	// MaxTotal is the largest match count seen so far; the collapsed search box
	// shows it as the graph size.
	MaxTotal  int       `json:"max_total"`
	Expanded  bool      `json:"expanded"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewView creates an empty, collapsed view.
func NewView(id string) *View {
	return &View{
		ID:      id,
		Visible: make(VisibleSet),
	}
}

// Snapshot returns a deep copy of the view.
func (v *View) Snapshot() *View {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Visible = v.Visible.Clone()
	return &cp
}
