package sheetforge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sheetforge/sheetforge/internal/guard"
	"github.com/sheetforge/sheetforge/internal/retryio"
	"github.com/sheetforge/sheetforge/internal/taskrunner"
)

// evictionFanout bounds how many expired forks the TTL sweep discards
// concurrently in one pass.
const evictionFanout = 8

// ForkRegistry is the process-wide map of fork id -> Fork Context: a
// read-write-locked map, a mutex-protected recalc-lock
// table, and the resolved configuration. It is the sole owner of every
// live Fork Context and, transitively, of every file a context owns.
type ForkRegistry struct {
	cfg Configuration

	mu    sync.RWMutex
	forks map[string]*ForkContext

	locks *recalcLocks
}

// NewForkRegistry constructs an empty registry bound to cfg.
func NewForkRegistry(cfg Configuration) *ForkRegistry {
	return &ForkRegistry{
		cfg:   cfg,
		forks: make(map[string]*ForkContext),
		locks: newRecalcLocks(),
	}
}

// ForkSummary is the list_forks projection: id, base, age,
// edits, version.
type ForkSummary struct {
	ID      string
	Base    string
	Age     time.Duration
	Edits   int
	Version uint64
}

// Create validates preconditions, evicts expired forks, allocates a
// collision-free id, copies the base workbook into a fresh working copy
// under a creation guard, and inserts the new context. Any failure rolls
// the guard back and leaves the registry and filesystem untouched.
func (r *ForkRegistry) Create(ctx context.Context, basePath string) (string, error) {
	if err := r.validateCreatePreconditions(basePath); err != nil {
		return "", err
	}

	r.evictExpiredLocked(ctx)

	if r.forkCount() >= r.cfg.Limits.MaxConcurrentForks {
		return "", NewErrorf(Capacity, "maximum concurrent forks (%d) reached", r.cfg.Limits.MaxConcurrentForks)
	}

	id, err := r.allocateForkID()
	if err != nil {
		return "", err
	}

	workingCopy := filepath.Join(r.cfg.ForkScratch, id+".xlsx")
	checkpointDir := filepath.Join(r.cfg.CheckpointRoot, id)

	g := guard.NewForkCreation(r, id, workingCopy)
	defer g.Close(ctx)

	if err := retryio.CopyFile(ctx, basePath, workingCopy); err != nil {
		return "", NewError(IO, fmt.Errorf("fork create: copy base: %w", err))
	}

	fc, err := NewForkContext(ctx, id, basePath, workingCopy, checkpointDir)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.forks[id] = fc
	r.mu.Unlock()

	g.Commit()
	return id, nil
}

func (r *ForkRegistry) validateCreatePreconditions(basePath string) error {
	if strings.ToLower(filepath.Ext(basePath)) != ".xlsx" {
		return NewErrorf(PolicyDenied, "base path %q does not have a .xlsx extension", basePath)
	}
	if err := checkWithinWorkspace(r.cfg.WorkspaceRoot, basePath); err != nil {
		return NewErrorf(PolicyDenied, "base path %q escapes workspace root", basePath)
	}
	info, err := os.Stat(basePath)
	if err != nil {
		return NewError(NotFound, fmt.Errorf("base workbook: %w", err))
	}
	if info.Size() > r.cfg.Limits.MaxWorkingCopyBytes {
		return NewErrorf(Capacity, "base workbook exceeds maximum size of %d bytes", r.cfg.Limits.MaxWorkingCopyBytes)
	}
	return nil
}

// allocateForkID retries up to 20 times until both the registry and the
// filesystem show no collision.
func (r *ForkRegistry) allocateForkID() (string, error) {
	for i := 0; i < 20; i++ {
		id := newScratchID()
		r.mu.RLock()
		_, taken := r.forks[id]
		r.mu.RUnlock()
		if taken {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.cfg.ForkScratch, id+".xlsx")); err == nil {
			continue
		}
		return id, nil
	}
	return "", NewErrorf(IO, "could not allocate a unique fork id after 20 attempts")
}

func (r *ForkRegistry) forkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forks)
}

// GetFork refreshes last-accessed and returns a cloned snapshot of the
// context.
func (r *ForkRegistry) GetFork(id string) (ForkContext, error) {
	r.mu.RLock()
	fc, ok := r.forks[id]
	r.mu.RUnlock()
	if !ok {
		return ForkContext{}, NewErrorf(NotFound, "fork %q not found", id)
	}
	fc.touch()
	return r.cloneContext(fc), nil
}

func (r *ForkRegistry) cloneContext(fc *ForkContext) ForkContext {
	clone := ForkContext{
		ID:            fc.ID,
		BasePath:      fc.BasePath,
		WorkingCopy:   fc.WorkingCopy,
		CheckpointDir: fc.CheckpointDir,
		baseHash:      fc.baseHash,
		baseModTime:   fc.baseModTime,
		createdAt:     fc.createdAt,
	}
	clone.lastAccessed.Store(fc.lastAccessed.Load())
	clone.version.Store(fc.version.Load())
	clone.EditLog = append([]EditOp(nil), fc.EditLog...)
	clone.Checkpoints = append([]Checkpoint(nil), fc.Checkpoints...)
	clone.StagedChanges = append([]StagedChange(nil), fc.StagedChanges...)
	return clone
}

// WithForkMut takes the registry write lock, runs fn against the stored
// context, and on success unconditionally increments the version and
// refreshes last-accessed.
func (r *ForkRegistry) WithForkMut(id string, fn func(fc *ForkContext) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fc, ok := r.forks[id]
	if !ok {
		return NewErrorf(NotFound, "fork %q not found", id)
	}
	if err := fn(fc); err != nil {
		return err
	}
	fc.incrementVersion()
	fc.touch()
	return nil
}

// WithForkMutVersioned additionally validates the version before running
// fn — the optimistic-locking entry point for clients holding a stale
// view.
func (r *ForkRegistry) WithForkMutVersioned(id string, expected uint64, fn func(fc *ForkContext) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fc, ok := r.forks[id]
	if !ok {
		return NewErrorf(NotFound, "fork %q not found", id)
	}
	if err := fc.ValidateVersion(expected); err != nil {
		return err
	}
	if err := fn(fc); err != nil {
		return err
	}
	fc.incrementVersion()
	fc.touch()
	return nil
}

// Discard removes the context from the registry and, holding the fork's
// recalc lock across file cleanup, blocks until any in-flight Recalc
// releases it before deleting the working copy out from under it. Drops
// the lock table entry afterward if it is unheld. Idempotent: discarding
// a missing fork is not an error.
func (r *ForkRegistry) Discard(ctx context.Context, id string) error {
	r.mu.Lock()
	fc, ok := r.forks[id]
	if ok {
		delete(r.forks, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	forkLock := r.locks.Acquire(id)
	forkLock.Lock()
	err := fc.CleanupFiles(ctx, r.cfg.CheckpointRoot)
	forkLock.Unlock()

	r.locks.Drop(id)
	return err
}

// RemoveForkID satisfies guard.ForkRegistry, used by the fork-creation
// guard to roll back a tentatively inserted id on failure.
func (r *ForkRegistry) RemoveForkID(id string) {
	r.mu.Lock()
	delete(r.forks, id)
	r.mu.Unlock()
}

// AcquireRecalcLock returns (creating if absent) the shared mutex keyed
// on fork id.
func (r *ForkRegistry) AcquireRecalcLock(id string) *sync.Mutex {
	return r.locks.Acquire(id)
}

// EvictExpired sweeps every fork whose TTL has lapsed in a single pass,
// the same path followed by an explicit Discard.
func (r *ForkRegistry) EvictExpired(ctx context.Context) {
	r.evictExpiredLocked(ctx)
}

func (r *ForkRegistry) evictExpiredLocked(ctx context.Context) {
	if r.cfg.Limits.ForkTTL == 0 {
		return
	}
	r.mu.RLock()
	var expired []string
	for id, fc := range r.forks {
		if fc.IsExpired(r.cfg.Limits.ForkTTL) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	runner, runnerCtx := taskrunner.New(ctx, evictionFanout)
	for _, id := range expired {
		id := id
		runner.Go(func() error {
			return r.Discard(runnerCtx, id)
		})
	}
	if err := runner.Wait(); err != nil {
		slog.Warn("fork registry: TTL sweep discard failed", "error", err)
	}
}

// ListForks returns a summary of every live fork.
func (r *ForkRegistry) ListForks() []ForkSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ForkSummary, 0, len(r.forks))
	for _, fc := range r.forks {
		out = append(out, ForkSummary{
			ID:      fc.ID,
			Base:    fc.BasePath,
			Age:     time.Since(fc.createdAt),
			Edits:   len(fc.EditLog),
			Version: fc.Version(),
		})
	}
	return out
}
