package debounce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Action is the asynchronous operation driven by a Scheduler.
// Returning is the completion signal; a non-nil error marks a failure.
type Action[P any] func(ctx context.Context, payload P) error

// actionState is the per-identity record. It is created on the first Schedule
// call for an identity and kept for the lifetime of the Scheduler.
type actionState[P any] struct {
	timer      Timer
	generation uint64
	inProgress bool
	queued     P
	// queuedAction is the action passed with queued. It runs instead of the
	// action the drain loop started with.
	queuedAction Action[P]
	hasQueued    bool
}

func (st *actionState[P]) clearQueued() {
	var zero P
	st.queued, st.queuedAction, st.hasQueued = zero, nil, false
}

// Scheduler coalesces and serializes actions per identity.
// Safe for concurrent use.
type Scheduler[K comparable, P any] struct {
	cfg config

	mu      sync.Mutex
	states  map[K]*actionState[P]
	stopped bool
	running sync.WaitGroup
}

// New creates a Scheduler with an empty action registry.
func New[K comparable, P any](opts ...Option) *Scheduler[K, P] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scheduler[K, P]{
		cfg:    cfg,
		states: make(map[K]*actionState[P]),
	}
}

// state returns the record for id, creating it if needed. Caller holds s.mu.
func (s *Scheduler[K, P]) state(id K) *actionState[P] {
	st, ok := s.states[id]
	if !ok {
		st = &actionState[P]{}
		s.states[id] = st
	}
	return st
}

// Schedule requests that action run with payload once delay has elapsed without
// another Schedule call for the same id. It never blocks on the action and never
// reports its error; see the package documentation for the full contract.
func (s *Scheduler[K, P]) Schedule(delay time.Duration, payload P, id K, action Action[P]) {
	label := s.cfg.label(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.cfg.logger.Debug("Schedule ignored after stop", "action", label)
		return
	}

	st := s.state(id)
	replaced := st.timer != nil
	if replaced {
		st.timer.Stop()
		st.timer = nil
	}

	// A timer whose callback already started cannot be stopped; bumping the
	// generation makes that callback a no-op.
	st.generation++
	gen := st.generation
	st.timer = s.cfg.clock.AfterFunc(delay, func() {
		s.fire(id, gen, payload, action)
	})

	s.cfg.metrics.onScheduled(label, replaced)
	s.cfg.logger.Debug("Action scheduled", "action", label, "delay", delay, "replaced", replaced)
}

func (s *Scheduler[K, P]) fire(id K, gen uint64, payload P, action Action[P]) {
	label := s.cfg.label(id)

	s.mu.Lock()
	st := s.states[id]
	if s.stopped || st == nil || st.generation != gen {
		s.mu.Unlock()
		return
	}
	st.timer = nil

	if st.inProgress {
		if st.hasQueued {
			s.cfg.metrics.onSuperseded(label)
		}
		st.queued, st.queuedAction, st.hasQueued = payload, action, true
		s.mu.Unlock()
		s.cfg.logger.Debug("Action busy, payload queued", "action", label)
		return
	}

	st.inProgress = true
	s.running.Add(1)
	s.mu.Unlock()

	go s.drain(id, st, payload, action)
}

// drain runs action with payload, then keeps running queued payloads back to
// back until none is left. The in-progress flag stays set for the whole chain.
func (s *Scheduler[K, P]) drain(id K, st *actionState[P], payload P, action Action[P]) {
	defer s.running.Done()

	for {
		s.invoke(id, payload, action)

		s.mu.Lock()
		if !st.hasQueued || s.stopped {
			st.clearQueued()
			st.inProgress = false
			s.mu.Unlock()
			return
		}
		payload, action = st.queued, st.queuedAction
		st.clearQueued()
		s.mu.Unlock()
	}
}

func (s *Scheduler[K, P]) invoke(id K, payload P, action Action[P]) {
	label := s.cfg.label(id)

	ctx := context.Background()
	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	ctx, span := s.cfg.tracer.Start(ctx, "debounce.invoke",
		trace.WithAttributes(attribute.String("debounce.action", label)),
	)
	defer span.End()

	s.cfg.metrics.onStart(label)
	start := time.Now()
	err := call(ctx, payload, action)
	s.cfg.metrics.onFinish(label, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.cfg.logger.Debug("Action failed", "action", label, "err", err)
		if s.cfg.onError != nil {
			s.cfg.onError(label, err)
		}
	}
}

// call runs action, turning a panic into an error so the identity is never
// left marked in progress.
func call[P any](ctx context.Context, payload P, action Action[P]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(ctx, payload)
}

// Pending reports whether a timer is outstanding for id.
func (s *Scheduler[K, P]) Pending(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return ok && st.timer != nil
}

// InProgress reports whether an invocation is executing for id.
func (s *Scheduler[K, P]) InProgress(id K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return ok && st.inProgress
}

// Stop cancels every pending timer, discards queued payloads and rejects
// further Schedule calls. Invocations already running complete normally.
func (s *Scheduler[K, P]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, st := range s.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.generation++
	}
}

// Wait blocks until every invocation chain started so far has finished.
func (s *Scheduler[K, P]) Wait() {
	s.running.Wait()
}
