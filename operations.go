package sheetforge

import (
	"context"
	"fmt"
	"time"

	"github.com/sheetforge/sheetforge/internal/diffengine"
	"github.com/sheetforge/sheetforge/internal/recalculator"
	"github.com/sheetforge/sheetforge/internal/workbook"
)

// GetEdits returns a fork's edit log.
func (r *ForkRegistry) GetEdits(forkID string) ([]EditOp, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return nil, err
	}
	return fc.EditLog, nil
}

// GetChangeset implements "get_changeset": diff the fork's
// working copy against its base archive, optionally restricted to one
// sheet.
func (r *ForkRegistry) GetChangeset(ctx context.Context, forkID, sheet string) (diffengine.ChangeSet, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return diffengine.ChangeSet{}, err
	}

	base, err := workbook.Open(fc.BasePath)
	if err != nil {
		return diffengine.ChangeSet{}, NewError(IO, fmt.Errorf("get changeset: open base: %w", err))
	}
	fork, err := workbook.Open(fc.WorkingCopy)
	if err != nil {
		return diffengine.ChangeSet{}, NewError(IO, fmt.Errorf("get changeset: open working copy: %w", err))
	}

	cs, err := diffengine.Diff(ctx, base, fork, sheet)
	if err != nil {
		return diffengine.ChangeSet{}, NewError(IO, fmt.Errorf("get changeset: diff: %w", err))
	}
	return cs, nil
}

// Recalculate implements "recalculate": run the external
// recalculator against a fork's working copy under the process-wide
// Recalc Gate.
func (r *ForkRegistry) Recalculate(ctx context.Context, gate *RecalcGate, rc recalculator.Recalculator, forkID string, timeout time.Duration) (recalculator.Result, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return recalculator.Result{}, err
	}
	result, err := gate.Recalc(ctx, rc, forkID, fc.WorkingCopy, timeout)
	if err != nil {
		return recalculator.Result{}, err
	}
	if err := r.WithForkMut(forkID, func(*ForkContext) error { return nil }); err != nil {
		return recalculator.Result{}, err
	}
	return result, nil
}
