package sheetforge

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sheetforge/sheetforge/internal/recalculator"
)

// recalcLocks is the Fork Registry's per-fork exclusive-lock table: a
// plain mutex protecting a map whose values are
// handed out as shared *sync.Mutex so two recalcs on the same fork
// serialize while recalcs on distinct forks run concurrently under the
// RecalcGate's global permit. Holding mu across the acquisition of a
// fork's own lock is forbidden — Acquire releases mu before returning the
// per-fork mutex.
type recalcLocks struct {
	mu    sync.Mutex
	byID  map[string]*sync.Mutex
}

func newRecalcLocks() *recalcLocks {
	return &recalcLocks{byID: make(map[string]*sync.Mutex)}
}

// Acquire returns (creating if absent) the mutex for forkID.
func (l *recalcLocks) Acquire(forkID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byID[forkID]
	if !ok {
		m = &sync.Mutex{}
		l.byID[forkID] = m
	}
	return m
}

// Drop removes forkID's lock entry if nothing currently holds it. Called
// from fork discard/eviction.
func (l *recalcLocks) Drop(forkID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.byID[forkID]; ok {
		if m.TryLock() {
			m.Unlock()
			delete(l.byID, forkID)
		}
	}
}

// RecalcGate is a two-level gate: a global counting semaphore
// (golang.org/x/sync/semaphore.Weighted) bounds how many external
// recalcs run simultaneously across the process, and a per-fork mutex
// (from the registry's recalcLocks table) prevents two recalcs racing
// on one fork.
type RecalcGate struct {
	sem   *semaphore.Weighted
	locks *recalcLocks
}

// newRecalcGate returns a gate permitting at most maxConcurrent
// simultaneous recalcs, sharing locks' per-fork lock table.
func newRecalcGate(maxConcurrent int64, locks *recalcLocks) *RecalcGate {
	return &RecalcGate{sem: semaphore.NewWeighted(maxConcurrent), locks: locks}
}

// NewRecalcGate builds a RecalcGate bound to this registry's per-fork
// recalc-lock table, permitting at most maxConcurrent simultaneous
// recalcs across the process.
func (r *ForkRegistry) NewRecalcGate(maxConcurrent int64) *RecalcGate {
	return newRecalcGate(maxConcurrent, r.locks)
}

// ErrRecalcTimeout is returned in place of the error of a recalc that
// exceeded its deadline; its code is Timeout.
var ErrRecalcTimeout error = Error{Code: Timeout, Err: errors.New("recalc: timed out")}

// Recalc acquires the global permit and the fork's exclusive lock, runs
// r.Recalc against workbookPath, and releases both in reverse order
// regardless of outcome.
func (g *RecalcGate) Recalc(ctx context.Context, r recalculator.Recalculator, forkID, workbookPath string, timeout time.Duration) (recalculator.Result, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return recalculator.Result{}, err
	}
	defer g.sem.Release(1)

	forkLock := g.locks.Acquire(forkID)
	forkLock.Lock()
	defer forkLock.Unlock()

	result, err := r.Recalc(ctx, workbookPath, timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		return recalculator.Result{}, ErrRecalcTimeout
	}
	if errors.Is(err, recalculator.ErrBackendUnavailable) {
		return recalculator.Result{}, NewError(BackendUnavailable, err)
	}
	return result, err
}
