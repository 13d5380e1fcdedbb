package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/debounce"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/ports"
	"golang.org/x/text/language"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the explorers of every open view. All explorers share one
// scheduler; their identities are distinct per view and stream.
//
// Store access for a view is serialized through a per-ID lock that is
// garbage collected by reference counting, and optionally through a
// DistributedLocker when several replicas share the store.
type Manager struct {
	backend ports.GraphBackend
	store   ports.ViewStore
	sched   *debounce.Scheduler[string, Request]

	mu        sync.Mutex
	locks     map[string]*lockEntry
	explorers map[string]*Explorer

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	lang    language.Tag

	searchDelay time.Duration
	renderDelay time.Duration
	schedOpts   []debounce.Option

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock is held before it expires.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager and its explorers.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDelays sets the quiet periods of the search and render streams.
func WithDelays(search, render time.Duration) Option {
	return func(m *Manager) {
		m.searchDelay = search
		m.renderDelay = render
	}
}

// WithLanguage sets the locale used for digit grouping in node counts.
func WithLanguage(tag language.Tag) Option {
	return func(m *Manager) {
		m.lang = tag
	}
}

// WithSchedulerOptions passes options to the shared scheduler.
func WithSchedulerOptions(opts ...debounce.Option) Option {
	return func(m *Manager) {
		m.schedOpts = append(m.schedOpts, opts...)
	}
}

// NewManager creates a Manager that searches and renders through backend and
// persists views in store.
func NewManager(backend ports.GraphBackend, store ports.ViewStore, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		store:       store,
		locks:       make(map[string]*lockEntry),
		explorers:   make(map[string]*Explorer),
		lockTTL:     30 * time.Second,
		logger:      logging.NewNop(),
		lang:        language.English,
		searchDelay: DefaultSearchDelay,
		renderDelay: DefaultRenderDelay,
		subs:        make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}

	schedOpts := append([]debounce.Option{
		debounce.WithLogger(m.logger),
		debounce.WithLabeler(streamLabel),
	}, m.schedOpts...)
	m.sched = debounce.New[string, Request](schedOpts...)
	return m
}

// Scheduler returns the scheduler shared by all explorers.
func (m *Manager) Scheduler() *debounce.Scheduler[string, Request] {
	return m.sched
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes fn while holding the lock for the view.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"view_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) cached(id string) *Explorer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explorers[id]
}

// Open returns the explorer of view id, loading the view from the store or
// creating it when absent. A newly opened explorer schedules a render of its
// visible set, and a search if the view was left expanded.
func (m *Manager) Open(ctx context.Context, id string) (*Explorer, error) {
	if err := domain.ValidateViewID(id); err != nil {
		return nil, err
	}

	var ex *Explorer
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		if ex = m.cached(id); ex != nil {
			return nil
		}

		view, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrViewNotFound) {
			view = domain.NewView(id)
			view.UpdatedAt = time.Now()
			if err := m.store.Save(ctx, view); err != nil {
				return fmt.Errorf("failed to initialize view: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to load view: %w", err)
		}

		ex = m.newExplorer(view)
		m.mu.Lock()
		m.explorers[id] = ex
		m.mu.Unlock()
		m.logger.Debug("View opened", "view_id", id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ex.mu.RLock()
	resume, pattern := ex.view.Expanded, ex.view.Pattern
	ex.mu.RUnlock()
	if resume && ex.Total() == 0 {
		ex.Search(pattern)
	}
	if _, ok := ex.Graph(); !ok {
		ex.Refresh()
	}
	return ex, nil
}

// Get returns the explorer of an existing view. Unlike Open it never creates
// the view.
func (m *Manager) Get(ctx context.Context, id string) (*Explorer, error) {
	if err := domain.ValidateViewID(id); err != nil {
		return nil, err
	}
	if ex := m.cached(id); ex != nil {
		return ex, nil
	}
	if _, err := m.store.Load(ctx, id); err != nil {
		return nil, err
	}
	return m.Open(ctx, id)
}

func (m *Manager) newExplorer(view *domain.View) *Explorer {
	ex := &Explorer{
		id:          view.ID,
		backend:     m.backend,
		sched:       m.sched,
		logger:      m.logger,
		lang:        m.lang,
		searchDelay: m.searchDelay,
		renderDelay: m.renderDelay,
		view:        view,
		subs:        make(map[int]func(Event)),
		sink:        m.publish,
	}
	if ex.view.Visible == nil {
		ex.view.Visible = make(domain.VisibleSet)
	}
	ex.persist = func(ctx context.Context) error {
		return m.WithLock(ctx, ex.id, func(ctx context.Context) error {
			if m.cached(ex.id) != ex {
				// Closed or deleted.
				return nil
			}
			return m.store.Save(ctx, ex.View())
		})
	}
	return ex
}

// Subscribe registers fn for the events of every view, including views opened
// later. It returns a function that removes fn.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// List returns the IDs of every stored view.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Active returns the IDs of the views open in this process, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.explorers))
	for id := range m.explorers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close saves the view and drops its explorer from memory. Actions already
// scheduled for the view still run against the detached explorer.
func (m *Manager) Close(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		m.mu.Lock()
		ex, ok := m.explorers[id]
		delete(m.explorers, id)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrViewNotFound, id)
		}
		return m.store.Save(ctx, ex.View())
	})
}

// Delete drops the explorer and removes the view from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := domain.ValidateViewID(id); err != nil {
		return err
	}
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		m.mu.Lock()
		delete(m.explorers, id)
		m.mu.Unlock()
		return m.store.Delete(ctx, id)
	})
}

// Shutdown stops the scheduler and waits for running actions to finish or ctx
// to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.sched.Stop()
	done := make(chan struct{})
	go func() {
		m.sched.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
