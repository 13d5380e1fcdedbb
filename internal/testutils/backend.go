package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/highlight"
)

// FakeBackend is an in-memory ports.GraphBackend. Find applies LIKE matching
// to node data the way the Skyframe server does. Render returns a tiny SVG
// naming the requested hashes.
type FakeBackend struct {
	mu         sync.Mutex
	nodes      map[string]domain.Node
	total      int
	findErr    error
	renderErr  error
	deleteErrs map[string]error
	gate       chan struct{}

	finds   []string
	renders [][]string
	deletes []string
}

// NewFakeBackend returns a backend serving nodes.
func NewFakeBackend(nodes ...domain.Node) *FakeBackend {
	b := &FakeBackend{
		nodes:      make(map[string]domain.Node, len(nodes)),
		deleteErrs: make(map[string]error),
	}
	for _, n := range nodes {
		b.nodes[n.Hash] = n
	}
	return b
}

// SetTotal overrides the total reported by Find when it exceeds the number
// of matches, as the real server does when it truncates a page.
func (b *FakeBackend) SetTotal(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
}

// SetFindErr makes subsequent Find calls fail with err (nil restores).
func (b *FakeBackend) SetFindErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findErr = err
}

// SetRenderErr makes subsequent Render calls fail with err (nil restores).
func (b *FakeBackend) SetRenderErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renderErr = err
}

// FailDelete makes Delete of path fail with err.
func (b *FakeBackend) FailDelete(path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteErrs[path] = err
}

// Hold makes Find and Render block until Release is called or their context
// ends.
func (b *FakeBackend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
}

// Release unblocks calls waiting since Hold.
func (b *FakeBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

func (b *FakeBackend) wait(ctx context.Context) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *FakeBackend) Find(ctx context.Context, pattern string) (*domain.FindResult, error) {
	b.mu.Lock()
	b.finds = append(b.finds, pattern)
	err := b.findErr
	b.mu.Unlock()

	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackend, err)
	}

	m, err := highlight.Compile(pattern)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	res := &domain.FindResult{Nodes: make(map[string]domain.Node)}
	for hash, n := range b.nodes {
		if m.Matches(n.NodeData) {
			res.Nodes[hash] = n
		}
	}
	res.Total = max(len(res.Nodes), b.total)
	return res, nil
}

func (b *FakeBackend) Render(ctx context.Context, hashes []string) ([]byte, error) {
	b.mu.Lock()
	cp := make([]string, len(hashes))
	copy(cp, hashes)
	b.renders = append(b.renders, cp)
	err := b.renderErr
	b.mu.Unlock()

	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackend, err)
	}
	return []byte(fmt.Sprintf(`<svg data-nodes="%s"/>`, strings.Join(hashes, ","))), nil
}

func (b *FakeBackend) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, path)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.deleteErrs[path]; err != nil {
		return fmt.Errorf("%w: DELETE %s: %w", domain.ErrBackend, path, err)
	}
	return nil
}

// Finds returns the patterns passed to Find so far.
func (b *FakeBackend) Finds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.finds...)
}

// Renders returns the hash lists passed to Render so far.
func (b *FakeBackend) Renders() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.renders...)
}

// Deletes returns the paths passed to Delete so far, in call order.
func (b *FakeBackend) Deletes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deletes...)
}

// Handler serves b over the Skyframe HTTP protocol, for tests of the real
// client.
func (b *FakeBackend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /find", func(w http.ResponseWriter, r *http.Request) {
		var pattern string
		if err := json.NewDecoder(r.Body).Decode(&pattern); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := b.Find(r.Context(), pattern)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("POST /render", func(w http.ResponseWriter, r *http.Request) {
		var hashes []string
		if err := json.NewDecoder(r.Body).Decode(&hashes); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		svg, err := b.Render(r.Context(), hashes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(svg)
	})
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) {
		if err := b.Delete(r.Context(), r.URL.Path); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
