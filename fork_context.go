package sheetforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sheetforge/sheetforge/internal/hashutil"
	"github.com/sheetforge/sheetforge/internal/retryio"
)

// ForkContext is the per-fork state of a fork: base path,
// working-copy path, base content hash, base mtime, edit log, checkpoint
// list, staged-change list, and a monotonic version counter. The paths,
// base hash/mtime and creation time are set once at construction.
// EditLog, Checkpoints, StagedChanges and version change only under the
// registry's write lock (WithForkMut); version and lastAccessed are
// sequentially consistent atomics.
type ForkContext struct {
	ID             string
	BasePath       string
	WorkingCopy    string
	CheckpointDir  string
	baseHash       string
	baseModTime    time.Time
	createdAt      time.Time
	lastAccessed   atomic.Int64 // unix nanos, set with atomic ops so get_fork's refresh never races a reader
	version        atomic.Uint64

	EditLog       []EditOp
	Checkpoints   []Checkpoint
	StagedChanges []StagedChange
}

// NewForkContext snapshots basePath's mtime and content hash and
// constructs a fresh Fork Context. workingCopy must already exist
// (copied into place by the registry's Create sequence before this is
// called).
func NewForkContext(ctx context.Context, id, basePath, workingCopy, checkpointDir string) (*ForkContext, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, NewError(IO, fmt.Errorf("fork context: stat base: %w", err))
	}
	hash, err := hashutil.HashFile(ctx, basePath)
	if err != nil {
		return nil, NewError(IO, fmt.Errorf("fork context: hash base: %w", err))
	}

	fc := &ForkContext{
		ID:            id,
		BasePath:      basePath,
		WorkingCopy:   workingCopy,
		CheckpointDir: checkpointDir,
		baseHash:      hash,
		baseModTime:   info.ModTime(),
		createdAt:     time.Now(),
	}
	fc.touch()
	return fc, nil
}

func (fc *ForkContext) touch() {
	fc.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns the last-accessed instant.
func (fc *ForkContext) LastAccessed() time.Time {
	return time.Unix(0, fc.lastAccessed.Load())
}

// CreatedAt returns the creation instant.
func (fc *ForkContext) CreatedAt() time.Time { return fc.createdAt }

// Version reads the current version counter.
func (fc *ForkContext) Version() uint64 { return fc.version.Load() }

// incrementVersion atomically increments the version counter and returns
// the new value. Called exactly once per successful mutating operation.
func (fc *ForkContext) incrementVersion() uint64 {
	return fc.version.Add(1)
}

// ValidateVersion fails with a Conflict error if the current version
// differs from expected.
func (fc *ForkContext) ValidateVersion(expected uint64) error {
	if got := fc.version.Load(); got != expected {
		return NewErrorf(Conflict, "version mismatch: expected %d, got %d", expected, got)
	}
	return nil
}

// IsExpired reports whether ttl is non-zero and the fork has not been
// accessed within it.
func (fc *ForkContext) IsExpired(ttl time.Duration) bool {
	if ttl == 0 {
		return false
	}
	return time.Since(fc.LastAccessed()) > ttl
}

// ValidateBaseUnchanged re-reads the base file's mtime and, if it
// differs from the snapshot taken at creation, re-hashes and fails with
// BaseChanged if either the mtime or the content hash differ.
func (fc *ForkContext) ValidateBaseUnchanged(ctx context.Context) error {
	info, err := os.Stat(fc.BasePath)
	if err != nil {
		return NewError(IO, fmt.Errorf("validate base: stat: %w", err))
	}
	if info.ModTime().Equal(fc.baseModTime) {
		return nil
	}
	hash, err := hashutil.HashFile(ctx, fc.BasePath)
	if err != nil {
		return NewError(IO, fmt.Errorf("validate base: hash: %w", err))
	}
	if hash != fc.baseHash || !info.ModTime().Equal(fc.baseModTime) {
		return NewErrorf(BaseChanged, "base modified since fork creation")
	}
	return nil
}

// CleanupFiles deletes every file this context exclusively owns: the
// working copy, every staged change's side snapshot, and the fork-scoped
// checkpoint directory. checkpointRoot guards
// against a CheckpointDir that somehow escaped its intended root.
func (fc *ForkContext) CleanupFiles(ctx context.Context, checkpointRoot string) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := retryio.Remove(ctx, fc.WorkingCopy); err != nil && !os.IsNotExist(err) {
		record(err)
	}
	for _, sc := range fc.StagedChanges {
		if sc.SideSnapshotPath == "" {
			continue
		}
		if err := retryio.Remove(ctx, sc.SideSnapshotPath); err != nil && !os.IsNotExist(err) {
			record(err)
		}
	}

	rel, err := filepath.Rel(checkpointRoot, fc.CheckpointDir)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		record(NewErrorf(PolicyDenied, "checkpoint dir %q escapes checkpoint root %q", fc.CheckpointDir, checkpointRoot))
	} else if err := retryio.RemoveAll(ctx, fc.CheckpointDir); err != nil && !os.IsNotExist(err) {
		record(err)
	}

	return firstErr
}
