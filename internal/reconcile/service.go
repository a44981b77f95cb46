// Package reconcile imports evaluation workbooks into projects. One run goes
// STAGING → LINKING → MERGING → DONE, or ends REJECTED when the workbook
// itself is unusable.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/staff-eval/internal/resolve"
	"github.com/sells-group/staff-eval/internal/scorer"
	"github.com/sells-group/staff-eval/internal/store"
	"github.com/sells-group/staff-eval/pkg/callmetrics"
)

// MetricsLookup returns the removed-call and pause counters of a call route
// over a period. pkg/callmetrics.Client implements it.
type MetricsLookup interface {
	Lookup(ctx context.Context, routeID string, from, to time.Time) (*callmetrics.Counters, error)
}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	// Threshold is the minimum name similarity for a roster match.
	Threshold float64
	// LinkWorkers bounds the goroutines matching rows during LINKING.
	LinkWorkers int
	// Metrics is consulted for removed/pause counters during MERGING. Nil
	// disables the lookup.
	Metrics MetricsLookup
}

// Service runs ingestion and the edits that share its invariants.
type Service struct {
	store   store.Store
	rules   scorer.RuleSource
	metrics MetricsLookup

	threshold float64
	workers   int
	locks     projectLocks
	now       func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store, rules scorer.RuleSource, opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = resolve.DefaultThreshold
	}
	if opts.LinkWorkers <= 0 {
		opts.LinkWorkers = 4
	}
	return &Service{
		store:     st,
		rules:     rules,
		metrics:   opts.Metrics,
		threshold: opts.Threshold,
		workers:   opts.LinkWorkers,
		locks:     projectLocks{locks: make(map[string]*projectLock)},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// projectLocks serializes writers of the same project inside one process.
// Writers in other processes are caught by the store's version check.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	mu   sync.Mutex
	refs int
}

func (l *projectLocks) lock(projectID string) func() {
	l.mu.Lock()
	pl, ok := l.locks[projectID]
	if !ok {
		pl = &projectLock{}
		l.locks[projectID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, projectID)
		}
		l.mu.Unlock()
	}
}
