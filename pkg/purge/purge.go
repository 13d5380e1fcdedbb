// Package purge models the bulk delete page of the Skyframe server: a list of
// entries with checkboxes and a single button that first selects everything
// and then deletes the selection.
package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/ports"
	"golang.org/x/sync/errgroup"
)

const (
	LabelSelectAll = "Select All"
	LabelDelete    = "Delete"

	// DefaultParallelism bounds concurrent DELETE requests.
	DefaultParallelism = 8
)

// ErrUnknownPath is returned when checking a path that is not listed.
var ErrUnknownPath = errors.New("unknown path")

// Action is what a button press did.
type Action string

const (
	ActionSelectAll Action = "select_all"
	ActionDeleted   Action = "deleted"
)

// Failure pairs a path with the error its delete returned.
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Report lists the outcome of a delete press. Deleted keeps selection order.
type Report struct {
	Deleted []string  `json:"deleted"`
	Failed  []Failure `json:"failed,omitempty"`
}

// OK reports whether every delete succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Selection is the checkbox state of the page. All entries start unchecked.
// Safe for concurrent use.
type Selection struct {
	backend     ports.GraphBackend
	logger      *slog.Logger
	parallelism int
	onDone      func(Report)

	mu      sync.Mutex
	paths   []string
	checked map[string]bool
}

// Option configures a Selection.
type Option func(*Selection)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selection) {
		s.logger = logger
	}
}

// WithParallelism bounds concurrent deletes. Values below one mean unbounded.
func WithParallelism(n int) Option {
	return func(s *Selection) {
		s.parallelism = n
	}
}

// OnDone registers the callback that runs once every delete of a press has
// succeeded; the page reloads at that point.
func OnDone(fn func(Report)) Option {
	return func(s *Selection) {
		s.onDone = fn
	}
}

// NewSelection lists paths, all unchecked. Duplicates are dropped.
func NewSelection(backend ports.GraphBackend, paths []string, opts ...Option) *Selection {
	s := &Selection{
		backend:     backend,
		logger:      logging.NewNop(),
		parallelism: DefaultParallelism,
		checked:     make(map[string]bool, len(paths)),
	}
	for _, p := range paths {
		if _, dup := s.checked[p]; dup {
			continue
		}
		s.paths = append(s.paths, p)
		s.checked[p] = false
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns every listed path in order.
func (s *Selection) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Check sets the checkbox of path.
func (s *Selection) Check(path string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checked[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	s.checked[path] = checked
	return nil
}

// Checked returns the checked paths in listing order.
func (s *Selection) Checked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkedLocked()
}

func (s *Selection) checkedLocked() []string {
	var out []string
	for _, p := range s.paths {
		if s.checked[p] {
			out = append(out, p)
		}
	}
	return out
}

// CheckedCount returns how many paths are checked.
func (s *Selection) CheckedCount() int {
	return len(s.Checked())
}

// Label returns the button label.
func (s *Selection) Label() string {
	if s.CheckedCount() == 0 {
		return LabelSelectAll
	}
	return LabelDelete
}

// Press acts like the page button. With nothing checked it checks every path.
// Otherwise it deletes the checked paths concurrently and waits for all of
// them; the done callback runs only when none failed. Failed paths stay
// checked, deleted ones leave the listing.
func (s *Selection) Press(ctx context.Context) (Action, Report, error) {
	s.mu.Lock()
	targets := s.checkedLocked()
	if len(targets) == 0 {
		for _, p := range s.paths {
			s.checked[p] = true
		}
		s.mu.Unlock()
		return ActionSelectAll, Report{}, nil
	}
	s.mu.Unlock()

	// A failed delete does not cancel the others, so errors are collected
	// per path instead of returned to the group.
	errs := make([]error, len(targets))
	var g errgroup.Group
	if s.parallelism > 0 {
		g.SetLimit(s.parallelism)
	}
	for i, path := range targets {
		g.Go(func() error {
			errs[i] = s.backend.Delete(ctx, path)
			return nil
		})
	}
	g.Wait()

	var report Report
	for i, path := range targets {
		if errs[i] != nil {
			s.logger.Warn("Delete failed", "path", path, "err", errs[i])
			report.Failed = append(report.Failed, Failure{Path: path, Err: errs[i].Error()})
			continue
		}
		report.Deleted = append(report.Deleted, path)
	}
	s.forget(report.Deleted)

	if !report.OK() {
		return ActionDeleted, report, fmt.Errorf("%d of %d deletes failed", len(report.Failed), len(targets))
	}
	s.logger.Info("Deleted entries", "count", len(report.Deleted))
	if s.onDone != nil {
		s.onDone(report)
	}
	return ActionDeleted, report, nil
}

func (s *Selection) forget(paths []string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gone := make(map[string]bool, len(paths))
	for _, p := range paths {
		gone[p] = true
		delete(s.checked, p)
	}
	kept := s.paths[:0]
	for _, p := range s.paths {
		if !gone[p] {
			kept = append(kept, p)
		}
	}
	s.paths = kept
}
