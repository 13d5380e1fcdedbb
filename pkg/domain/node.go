package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const unshareableSuffix = " (unshareable)"

// Node is a single Skyframe graph node.
type Node struct {
	Hash string `json:"hash,omitempty"`
	// NodeType is the raw SkyFunction name, e.g. "ACTION_EXECUTION".
	NodeType string `json:"nodeType"`
	// NodeData is the printable SkyKey, the text searches match against.
	NodeData string `json:"nodeData"`
}

// DisplayType returns the formatted node type.
func (n Node) DisplayType() string {
	return FormatNodeType(n.NodeType)
}

// FormatNodeType turns an upper snake case SkyFunction name into camel case:
// "ACTION_EXECUTION" becomes "ActionExecution". The " (unshareable)" marker
// some functions carry is dropped.
func FormatNodeType(raw string) string {
	var sb strings.Builder
	for _, word := range strings.FieldsFunc(raw, func(r rune) bool { return r == '_' }) {
		runes := []rune(word)
		sb.WriteString(strings.ToUpper(string(runes[:1])))
		sb.WriteString(strings.ToLower(string(runes[1:])))
	}
	return strings.ReplaceAll(sb.String(), unshareableSuffix, "")
}

// FindResult is the backend reply to a search. Total counts every match,
// Nodes holds the page actually returned, keyed by hash.
type FindResult struct {
	Total int
	Nodes map[string]Node
}

// UnmarshalJSON decodes the backend tuple [total, {hash: node}].
func (r *FindResult) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("find result: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("find result: expected [total, nodes], got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Total); err != nil {
		return fmt.Errorf("find result total: %w", err)
	}
	nodes := make(map[string]Node)
	if err := json.Unmarshal(tuple[1], &nodes); err != nil {
		return fmt.Errorf("find result nodes: %w", err)
	}
	for hash, n := range nodes {
		n.Hash = hash
		nodes[hash] = n
	}
	r.Nodes = nodes
	return nil
}

// MarshalJSON encodes the result in the backend tuple form.
func (r FindResult) MarshalJSON() ([]byte, error) {
	nodes := make(map[string]Node, len(r.Nodes))
	for hash, n := range r.Nodes {
		n.Hash = ""
		nodes[hash] = n
	}
	return json.Marshal([]any{r.Total, nodes})
}

// Sorted returns the nodes ordered by hash.
func (r *FindResult) Sorted() []Node {
	if r == nil {
		return nil
	}
	out := make([]Node, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// SearchPattern wraps a user pattern in '%' wildcards so it matches anywhere
// in the node data, the form sent to the backend's /find endpoint.
func SearchPattern(pattern string) string {
	return "%" + pattern + "%"
}
