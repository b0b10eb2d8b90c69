// Package guard implements scoped acquisition of scratch disk resources
// with guaranteed release on abnormal exit.
//
// Every guard here follows the same contract: a successful caller must call
// Commit (or Disarm) before returning; any other return path lets the
// deferred Close run and the resource is removed. It is a two-phase-commit
// shape reduced to a single disk resource: roll back on any failure,
// otherwise commit exactly once.
package guard

import (
	"context"
	"log/slog"
	"os"

	"github.com/sheetforge/sheetforge/internal/retryio"
)

// TempFile guards a single scratch file path. On Close, unless committed
// (disarmed), the file is removed. Used for pre-write backups
// and restore-checkpoint's safety copy.
type TempFile struct {
	path      string
	committed bool
}

// NewTempFile arms a guard over path. The file need not exist yet.
func NewTempFile(path string) *TempFile {
	return &TempFile{path: path}
}

// Path returns the guarded path.
func (g *TempFile) Path() string { return g.path }

// Disarm marks the guard committed, returning the path and suppressing
// cleanup on Close.
func (g *TempFile) Disarm() string {
	g.committed = true
	return g.path
}

// Close removes the guarded file unless Disarm was called. Safe to call
// multiple times; safe to call on a path that was never created.
func (g *TempFile) Close(ctx context.Context) {
	if g.committed {
		return
	}
	if err := retryio.Remove(ctx, g.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("guard: failed to remove temp file on rollback", "path", g.path, "error", err)
	}
}

// Checkpoint guards a single checkpoint snapshot file, making checkpoint
// creation atomic.
type Checkpoint struct {
	path      string
	committed bool
}

// NewCheckpoint arms a guard over a checkpoint snapshot path.
func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// Path returns the guarded path.
func (g *Checkpoint) Path() string { return g.path }

// Commit marks the checkpoint as successfully created, suppressing cleanup.
func (g *Checkpoint) Commit() { g.committed = true }

// Close removes the guarded snapshot unless Commit was called.
func (g *Checkpoint) Close(ctx context.Context) {
	if g.committed {
		return
	}
	if err := retryio.Remove(ctx, g.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("guard: failed to remove checkpoint snapshot on rollback", "path", g.path, "error", err)
	}
}

// ForkRegistry is the minimal surface a ForkCreation guard needs from the
// Fork Registry to roll a failed creation back. Kept as an interface here so this package never imports the
// root package (which imports guard), avoiding an import cycle.
type ForkRegistry interface {
	RemoveForkID(id string)
}

// ForkCreation guards the all-or-nothing creation of a fork: a fork id, its
// working-copy path, and a back-reference to the registry it was (tentatively)
// inserted into.
type ForkCreation struct {
	registry    ForkRegistry
	forkID      string
	workingCopy string
	committed   bool
}

// NewForkCreation arms a guard for a fork in the middle of being created.
func NewForkCreation(registry ForkRegistry, forkID, workingCopy string) *ForkCreation {
	return &ForkCreation{registry: registry, forkID: forkID, workingCopy: workingCopy}
}

// Commit marks fork creation successful, suppressing rollback.
func (g *ForkCreation) Commit() { g.committed = true }

// Close, unless Commit was called, removes the fork id from the registry
// and deletes the working copy — making fork creation all-or-nothing.
func (g *ForkCreation) Close(ctx context.Context) {
	if g.committed {
		return
	}
	if g.registry != nil {
		g.registry.RemoveForkID(g.forkID)
	}
	if err := retryio.Remove(ctx, g.workingCopy); err != nil && !os.IsNotExist(err) {
		slog.Warn("guard: failed to remove working copy on fork creation rollback", "fork_id", g.forkID, "path", g.workingCopy, "error", err)
	}
}
