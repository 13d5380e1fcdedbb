package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/skyscope/pkg/debounce"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/highlight"
	"github.com/aretw0/skyscope/pkg/ports"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultSearchDelay = 250 * time.Millisecond
	DefaultRenderDelay = 1000 * time.Millisecond
)

// Request is the payload of both action streams: searches carry Pattern,
// renders carry the visible Hashes captured when the render was requested.
type Request struct {
	Pattern string
	Hashes  []string
	Seq     uint64
}

// Key returns the scheduler identity of a view stream.
func Key(viewID string, s Stream) string {
	return viewID + "/" + string(s)
}

// streamLabel reduces a scheduler identity to its stream name so metric
// labels do not grow with the number of views.
func streamLabel(id any) string {
	s := fmt.Sprint(id)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Explorer is the view model of one view.
type Explorer struct {
	id      string
	backend ports.GraphBackend
	sched   *debounce.Scheduler[string, Request]
	persist func(context.Context) error
	sink    func(Event)
	logger  *slog.Logger
	lang    language.Tag

	searchDelay time.Duration
	renderDelay time.Duration

	// emitMu is held from reading state until its event is delivered, so
	// subscribers see events in state order. Taken before mu.
	emitMu sync.Mutex

	mu        sync.RWMutex
	view      *domain.View
	results   *domain.FindResult
	resultSeq uint64
	seq       uint64
	matcher   *highlight.Matcher
	svg       []byte
	hasGraph  bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// ID returns the view ID.
func (e *Explorer) ID() string {
	return e.id
}

// View returns a snapshot of the view state.
func (e *Explorer) View() *domain.View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Snapshot()
}

// Search records pattern, expands the view and schedules a search.
func (e *Explorer) Search(pattern string) {
	e.search(pattern, nil)
}

// search schedules under mu so sequence numbers follow scheduling order.
// onSeq, if set, sees the request's number before it can run.
func (e *Explorer) search(pattern string, onSeq func(uint64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.Pattern = pattern
	e.view.Expanded = true
	e.view.UpdatedAt = time.Now()
	seq := e.nextSeqLocked(onSeq)
	e.sched.Schedule(e.searchDelay, Request{Pattern: pattern, Seq: seq}, Key(e.id, StreamSearch), e.runSearch)
}

// scheduleRenderLocked schedules a render of the visible set. Caller holds mu.
func (e *Explorer) scheduleRenderLocked(onSeq func(uint64)) {
	seq := e.nextSeqLocked(onSeq)
	req := Request{Hashes: e.view.Visible.Hashes(), Seq: seq}
	e.sched.Schedule(e.renderDelay, req, Key(e.id, StreamRender), e.runRender)
}

func (e *Explorer) nextSeqLocked(onSeq func(uint64)) uint64 {
	e.seq++
	if onSeq != nil {
		onSeq(e.seq)
	}
	return e.seq
}

// Toggle flips the visibility of the node with the given hash and schedules a
// render of the new visible set. The node must be among the current results
// or already visible. It reports whether the node is visible afterwards.
func (e *Explorer) Toggle(ctx context.Context, hash string) (bool, error) {
	e.emitMu.Lock()
	e.mu.Lock()
	node, ok := e.view.Visible[hash]
	if !ok && e.results != nil {
		node, ok = e.results.Nodes[hash]
	}
	if !ok {
		e.mu.Unlock()
		e.emitMu.Unlock()
		return false, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, hash)
	}
	visible := e.view.Visible.Toggle(node)
	e.view.UpdatedAt = time.Now()
	e.scheduleRenderLocked(nil)
	ev, hasResults := e.resultsEventLocked()
	e.mu.Unlock()

	if hasResults {
		e.emit(ev)
	}
	e.emitMu.Unlock()

	if err := e.persist(ctx); err != nil {
		return visible, fmt.Errorf("failed to save view: %w", err)
	}
	return visible, nil
}

// Refresh schedules a render of the current visible set.
func (e *Explorer) Refresh() {
	e.refresh(nil)
}

func (e *Explorer) refresh(onSeq func(uint64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduleRenderLocked(onSeq)
}

// Collapse clears the pattern and the results. The node count falls back to
// the largest total seen.
func (e *Explorer) Collapse(ctx context.Context) error {
	e.emitMu.Lock()
	e.mu.Lock()
	e.view.Pattern = ""
	e.view.Expanded = false
	e.view.UpdatedAt = time.Now()
	e.results = nil
	e.matcher = nil
	ev, _ := e.resultsEventLocked()
	e.mu.Unlock()

	e.emit(ev)
	e.emitMu.Unlock()
	if err := e.persist(ctx); err != nil {
		return fmt.Errorf("failed to save view: %w", err)
	}
	return nil
}

// NodeCountLabel returns the node count as shown next to the search box,
// e.g. "1,234 nodes".
func (e *Explorer) NodeCountLabel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodeCountLocked()
}

// Total returns the match count of the current results, or zero.
func (e *Explorer) Total() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.results == nil {
		return 0
	}
	return e.results.Total
}

// Rows returns the current results prepared for display.
func (e *Explorer) Rows() []highlight.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rowsLocked()
}

// Graph returns the latest rendered SVG. The second result is false until a
// render has succeeded.
func (e *Explorer) Graph() ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.svg, e.hasGraph
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs on the goroutine that produced the event. It must
// not block and must not call back into the Explorer.
func (e *Explorer) Subscribe(fn func(Event)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

// SearchAndWait schedules a search like Search and blocks until it or a
// later search produces results, the search stream fails, or ctx ends.
// Results re-sent for an earlier search are not accepted.
func (e *Explorer) SearchAndWait(ctx context.Context, pattern string) (Event, error) {
	return e.await(ctx, StreamSearch, EventResults, func(onSeq func(uint64)) {
		e.search(pattern, onSeq)
	})
}

// RefreshAndWait schedules a render like Refresh and blocks until it or a
// later render produces a graph, the render stream fails, or ctx ends.
func (e *Explorer) RefreshAndWait(ctx context.Context) (Event, error) {
	return e.await(ctx, StreamRender, EventGraph, e.refresh)
}

func (e *Explorer) await(ctx context.Context, stream Stream, want EventKind, start func(onSeq func(uint64))) (Event, error) {
	// Nothing is accepted until start has numbered the request.
	var from atomic.Uint64
	from.Store(math.MaxUint64)

	ch := make(chan Event, 1)
	unsubscribe := e.Subscribe(func(ev Event) {
		if ev.Stream != stream || ev.Seq < from.Load() {
			return
		}
		if ev.Kind != want && ev.Kind != EventError {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	defer unsubscribe()

	start(from.Store)
	select {
	case ev := <-ch:
		if ev.Kind == EventError {
			return ev, fmt.Errorf("%w: %s", domain.ErrBackend, ev.Error)
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (e *Explorer) runSearch(ctx context.Context, req Request) error {
	matcher, err := highlight.Compile(req.Pattern)
	if err != nil {
		e.fail(StreamSearch, req.Seq, err)
		return err
	}
	res, err := e.backend.Find(ctx, domain.SearchPattern(req.Pattern))
	if err != nil {
		e.fail(StreamSearch, req.Seq, err)
		return err
	}

	e.emitMu.Lock()
	e.mu.Lock()
	if !e.view.Expanded {
		// Collapsed while the search was in flight.
		e.mu.Unlock()
		e.emitMu.Unlock()
		return nil
	}
	e.results = res
	e.resultSeq = req.Seq
	e.matcher = matcher
	e.view.MaxTotal = max(e.view.MaxTotal, res.Total)
	ev, _ := e.resultsEventLocked()
	e.mu.Unlock()

	e.emit(ev)
	e.emitMu.Unlock()
	if err := e.persist(ctx); err != nil {
		e.logger.Warn("Failed to save view", "view_id", e.id, "err", err)
	}
	return nil
}

func (e *Explorer) runRender(ctx context.Context, req Request) error {
	svg, err := e.backend.Render(ctx, req.Hashes)
	if err != nil {
		e.fail(StreamRender, req.Seq, err)
		return err
	}

	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	e.svg = svg
	e.hasGraph = true
	e.mu.Unlock()

	e.emit(Event{Kind: EventGraph, ViewID: e.id, Stream: StreamRender, Seq: req.Seq, SVG: string(svg)})
	return nil
}

func (e *Explorer) fail(stream Stream, seq uint64, err error) {
	e.logger.Warn("Action failed", "view_id", e.id, "stream", stream, "err", err)
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.emit(Event{Kind: EventError, ViewID: e.id, Stream: stream, Seq: seq, Error: err.Error()})
}

func (e *Explorer) emit(ev Event) {
	e.subMu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	if e.sink != nil {
		e.sink(ev)
	}
}

// resultsEventLocked builds a results event. The second value is false when
// there are no current results. Caller holds e.mu.
func (e *Explorer) resultsEventLocked() (Event, bool) {
	ev := Event{
		Kind:      EventResults,
		ViewID:    e.id,
		Stream:    StreamSearch,
		Rows:      e.rowsLocked(),
		NodeCount: e.nodeCountLocked(),
	}
	if e.results == nil {
		return ev, false
	}
	ev.Seq = e.resultSeq
	ev.Total = e.results.Total
	if e.matcher != nil {
		ev.Pattern = e.matcher.Pattern()
	}
	return ev, true
}

func (e *Explorer) rowsLocked() []highlight.Row {
	if e.results == nil || e.matcher == nil {
		return nil
	}
	nodes := e.results.Sorted()
	rows := make([]highlight.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, e.matcher.Row(n, e.view.Visible.Contains(n.Hash)))
	}
	return rows
}

func (e *Explorer) nodeCountLocked() string {
	count := e.view.MaxTotal
	if e.results != nil {
		count = e.results.Total
	}
	return message.NewPrinter(e.lang).Sprintf("%d nodes", count)
}
