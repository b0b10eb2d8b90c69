package sheetforge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sheetforge/sheetforge/internal/guard"
	"github.com/sheetforge/sheetforge/internal/retryio"
	"github.com/sheetforge/sheetforge/internal/workbook"
)

// previewStyleOps implements "Preview mode": take a side
// snapshot of the working copy under a checkpoint guard, apply ops to the
// snapshot, and record a Staged Change referencing it. The working copy
// itself is never touched.
func (r *ForkRegistry) previewStyleOps(ctx context.Context, forkID, workingCopy string, ops []StyleOp, label string) (StyleBatchResult, error) {
	changeID := newChangeID()
	snapshotPath := filepath.Join(r.cfg.StagedRoot, fmt.Sprintf("%s_%s.xlsx", forkID, changeID))

	g := guard.NewCheckpoint(snapshotPath)
	defer g.Close(ctx)

	if err := retryio.CopyFile(ctx, workingCopy, snapshotPath); err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style preview: snapshot: %w", err))
	}

	book, err := workbook.Open(snapshotPath)
	if err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style preview: open snapshot: %w", err))
	}
	summary, err := applyStyleOps(book, ops)
	if err != nil {
		return StyleBatchResult{}, err
	}
	data, err := book.Bytes()
	if err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style preview: serialize: %w", err))
	}
	if err := retryio.WriteFileAtomic(ctx, snapshotPath, data, 0o644); err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style preview: write snapshot: %w", err))
	}

	change := StagedChange{
		ID:               changeID,
		CreatedAt:        time.Now(),
		Label:            label,
		Ops:              []StagedOp{{Kind: StagedOpStyleBatch, StyleOps: ops}},
		Summary:          summary,
		SideSnapshotPath: snapshotPath,
	}

	if err := r.addStagedChange(forkID, change); err != nil {
		return StyleBatchResult{}, err
	}

	g.Commit()
	return StyleBatchResult{ChangeID: changeID, OpsApplied: len(ops), Summary: summary}, nil
}

// addStagedChange appends change to the fork's list and evicts the
// oldest entries (removing their side snapshots) until the list is at
// most the configured cap.
func (r *ForkRegistry) addStagedChange(forkID string, change StagedChange) error {
	var evicted []StagedChange
	err := r.WithForkMut(forkID, func(fc *ForkContext) error {
		fc.StagedChanges = append(fc.StagedChanges, change)
		for len(fc.StagedChanges) > r.cfg.Limits.MaxStagedChangesPerFork {
			evicted = append(evicted, fc.StagedChanges[0])
			fc.StagedChanges = fc.StagedChanges[1:]
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, sc := range evicted {
		if sc.SideSnapshotPath != "" {
			retryio.Remove(context.Background(), sc.SideSnapshotPath)
		}
	}
	return nil
}

// ListStagedChanges returns a fork's staged-change list.
func (r *ForkRegistry) ListStagedChanges(forkID string) ([]StagedChange, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return nil, err
	}
	return fc.StagedChanges, nil
}

// ApplyStagedChange implements "apply": locate the change,
// replay its ops against the working copy (not the side snapshot) in
// list order, and on success remove the change and its side snapshot.
// The first failing op aborts without partial-commit guarantees beyond
// the Edit Applier's rename-in-place.
func (r *ForkRegistry) ApplyStagedChange(ctx context.Context, forkID, changeID string) (ChangeSummary, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return ChangeSummary{}, err
	}

	var change StagedChange
	found := false
	for _, sc := range fc.StagedChanges {
		if sc.ID == changeID {
			change, found = sc, true
			break
		}
	}
	if !found {
		return ChangeSummary{}, NewErrorf(NotFound, "staged change %q not found", changeID)
	}

	var aggregate ChangeSummary
	aggregate.AffectedBounds = map[string]string{}
	for _, op := range change.Ops {
		switch op.Kind {
		case StagedOpEditBatch:
			edits := make([]CellEdit, len(op.Edits))
			copy(edits, op.Edits)
			if _, err := r.ApplyEditBatch(ctx, forkID, op.Sheet, edits); err != nil {
				return ChangeSummary{}, err
			}
			aggregate.CellsTouched += len(edits)
		case StagedOpStyleBatch:
			result, err := r.applyStyleOpsInPlace(ctx, forkID, fc.WorkingCopy, op.StyleOps)
			if err != nil {
				return ChangeSummary{}, err
			}
			aggregate.CellsTouched += result.Summary.CellsTouched
			aggregate.CellsStyleChanged += result.Summary.CellsStyleChanged
		default:
			return ChangeSummary{}, NewErrorf(MalformedInput, "unknown staged op kind %q", op.Kind)
		}
	}

	if err := r.removeStagedChange(forkID, changeID, true); err != nil {
		return ChangeSummary{}, err
	}
	return aggregate, nil
}

// DiscardStagedChange removes the change and deletes its side snapshot.
// Idempotent: discarding a missing change is not an error.
func (r *ForkRegistry) DiscardStagedChange(ctx context.Context, forkID, changeID string) error {
	return r.removeStagedChange(forkID, changeID, false)
}

func (r *ForkRegistry) removeStagedChange(forkID, changeID string, requireFound bool) error {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return err
	}
	present := false
	for _, sc := range fc.StagedChanges {
		if sc.ID == changeID {
			present = true
			break
		}
	}
	if !present {
		if requireFound {
			return NewErrorf(NotFound, "staged change %q not found", changeID)
		}
		return nil // discarding a missing staged change is a no-op, not an error
	}

	var snapshotPath string
	if err := r.WithForkMut(forkID, func(fc *ForkContext) error {
		for i, sc := range fc.StagedChanges {
			if sc.ID == changeID {
				snapshotPath = sc.SideSnapshotPath
				fc.StagedChanges = append(fc.StagedChanges[:i], fc.StagedChanges[i+1:]...)
				return nil
			}
		}
		return NewErrorf(NotFound, "staged change %q not found", changeID)
	}); err != nil {
		return err
	}
	if snapshotPath != "" {
		return retryio.Remove(context.Background(), snapshotPath)
	}
	return nil
}
