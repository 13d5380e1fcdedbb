package explorer

import "github.com/aretw0/skyscope/pkg/highlight"

// EventKind names what changed.
type EventKind string

const (
	EventResults EventKind = "results"
	EventGraph   EventKind = "graph"
	EventError   EventKind = "error"
)

// Stream names an action stream of a view.
type Stream string

const (
	StreamSearch Stream = "search"
	StreamRender Stream = "render"
)

// Event is delivered to subscribers of an Explorer.
type Event struct {
	Kind   EventKind `json:"kind"`
	ViewID string    `json:"view_id"`
	Stream Stream    `json:"stream,omitempty"`
	// Seq is the sequence number of the request that produced the event.
	// Requests of one explorer are numbered in the order they are scheduled.
	Seq uint64 `json:"seq,omitempty"`

	// Results
	Pattern   string          `json:"pattern,omitempty"`
	Rows      []highlight.Row `json:"rows,omitempty"`
	Total     int             `json:"total,omitempty"`
	NodeCount string          `json:"node_count,omitempty"`

	// Graph
	SVG string `json:"svg,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}
