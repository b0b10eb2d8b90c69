package sheetforge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sheetforge/sheetforge/internal/guard"
	"github.com/sheetforge/sheetforge/internal/hashutil"
	"github.com/sheetforge/sheetforge/internal/retryio"
)

// CreateCheckpoint copies the working copy to a fork-scoped checkpoint
// file under a checkpoint guard, records it in the context, and enforces
// the per-fork count/byte caps by discarding the oldest checkpoints (but
// never below one).
func (r *ForkRegistry) CreateCheckpoint(ctx context.Context, forkID, label string) (Checkpoint, int, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return Checkpoint{}, 0, err
	}

	id := newScratchID()
	path := filepath.Join(fc.CheckpointDir, id+".xlsx")

	g := guard.NewCheckpoint(path)
	defer g.Close(ctx)

	if err := retryio.CopyFile(ctx, fc.WorkingCopy, path); err != nil {
		return Checkpoint{}, 0, NewError(IO, fmt.Errorf("checkpoint: copy: %w", err))
	}

	cp := Checkpoint{ID: id, CreatedAt: time.Now(), Label: label, Path: path}

	var total int
	if err := r.WithForkMut(forkID, func(fc *ForkContext) error {
		fc.Checkpoints = append(fc.Checkpoints, cp)
		r.enforceCheckpointCapsLocked(ctx, fc)
		total = len(fc.Checkpoints)
		return nil
	}); err != nil {
		return Checkpoint{}, 0, err
	}

	g.Commit()
	return cp, total, nil
}

// enforceCheckpointCapsLocked discards the oldest checkpoints until the
// per-fork count and total-byte caps are satisfied, but never below one
// remaining checkpoint. Must be called while the registry write lock
// (held by WithForkMut) protects fc.
func (r *ForkRegistry) enforceCheckpointCapsLocked(ctx context.Context, fc *ForkContext) {
	sort.Slice(fc.Checkpoints, func(i, j int) bool {
		return fc.Checkpoints[i].CreatedAt.Before(fc.Checkpoints[j].CreatedAt)
	})

	totalBytes := func() int64 {
		var sum int64
		for _, cp := range fc.Checkpoints {
			if info, err := fileSize(cp.Path); err == nil {
				sum += info
			}
		}
		return sum
	}

	for len(fc.Checkpoints) > 1 &&
		(len(fc.Checkpoints) > r.cfg.Limits.MaxCheckpointsPerFork || totalBytes() > r.cfg.Limits.MaxCheckpointTotalBytes) {
		oldest := fc.Checkpoints[0]
		if err := retryio.Remove(ctx, oldest.Path); err != nil {
			break
		}
		fc.Checkpoints = fc.Checkpoints[1:]
	}
}

// ListCheckpoints returns a fork's checkpoint list.
func (r *ForkRegistry) ListCheckpoints(forkID string) ([]Checkpoint, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return nil, err
	}
	return fc.Checkpoints, nil
}

// RestoreCheckpoint validates the checkpoint, backs up the current
// working copy under a temp-file guard, overwrites the working copy with
// the checkpoint, truncates the edit log, and drops staged changes newer
// than the checkpoint. On any failure the backup is restored and the
// error surfaced unchanged.
func (r *ForkRegistry) RestoreCheckpoint(ctx context.Context, forkID, checkpointID string) (Checkpoint, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return Checkpoint{}, err
	}

	var target Checkpoint
	found := false
	for _, cp := range fc.Checkpoints {
		if cp.ID == checkpointID {
			target, found = cp, true
			break
		}
	}
	if !found {
		return Checkpoint{}, NewErrorf(NotFound, "checkpoint %q not found", checkpointID)
	}

	if err := hashutil.ValidateArchive(target.Path); err != nil {
		return Checkpoint{}, NewError(IO, fmt.Errorf("restore checkpoint: %w", err))
	}

	backupPath := fc.WorkingCopy + ".restore-backup"
	backup := guard.NewTempFile(backupPath)
	defer backup.Close(ctx)

	if err := retryio.CopyFile(ctx, fc.WorkingCopy, backupPath); err != nil {
		return Checkpoint{}, NewError(IO, fmt.Errorf("restore checkpoint: backup: %w", err))
	}

	if err := retryio.CopyFile(ctx, target.Path, fc.WorkingCopy); err != nil {
		r.rollbackRestore(ctx, fc.WorkingCopy, backupPath)
		return Checkpoint{}, NewError(IO, fmt.Errorf("restore checkpoint: copy: %w", err))
	}

	restoreErr := r.WithForkMut(forkID, func(fc *ForkContext) error {
		truncated := fc.EditLog[:0]
		for _, e := range fc.EditLog {
			if !e.Timestamp.After(target.CreatedAt) {
				truncated = append(truncated, e)
			}
		}
		fc.EditLog = truncated

		var kept []StagedChange
		for _, sc := range fc.StagedChanges {
			if sc.CreatedAt.After(target.CreatedAt) {
				if sc.SideSnapshotPath != "" {
					retryio.Remove(ctx, sc.SideSnapshotPath)
				}
				continue
			}
			kept = append(kept, sc)
		}
		fc.StagedChanges = kept
		return nil
	})
	if restoreErr != nil {
		r.rollbackRestore(ctx, fc.WorkingCopy, backupPath)
		return Checkpoint{}, restoreErr
	}

	backup.Disarm()
	return target, nil
}

func (r *ForkRegistry) rollbackRestore(ctx context.Context, workingCopy, backupPath string) {
	if err := retryio.CopyFile(ctx, backupPath, workingCopy); err != nil {
		slog.Warn("checkpoint: failed to restore working copy from backup after a failed restore", "path", workingCopy, "error", err)
	}
}

// DeleteCheckpoint removes a checkpoint from the list and its snapshot
// file.
func (r *ForkRegistry) DeleteCheckpoint(ctx context.Context, forkID, checkpointID string) error {
	var path string
	err := r.WithForkMut(forkID, func(fc *ForkContext) error {
		for i, cp := range fc.Checkpoints {
			if cp.ID == checkpointID {
				path = cp.Path
				fc.Checkpoints = append(fc.Checkpoints[:i], fc.Checkpoints[i+1:]...)
				return nil
			}
		}
		return NewErrorf(NotFound, "checkpoint %q not found", checkpointID)
	})
	if err != nil {
		return err
	}
	return retryio.Remove(ctx, path)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
