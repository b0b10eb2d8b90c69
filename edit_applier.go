package sheetforge

import (
	"context"
	"fmt"
	"time"

	"github.com/sheetforge/sheetforge/internal/retryio"
	"github.com/sheetforge/sheetforge/internal/workbook"
)

// ApplyEditBatch resolves the working copy outside the registry lock,
// mutates the workbook archive, writes it back atomically, then appends
// the edit log and bumps the version under the registry write lock.
// Returns the fork's new total edit count.
func (r *ForkRegistry) ApplyEditBatch(ctx context.Context, forkID, sheet string, edits []CellEdit) (int, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return 0, err
	}

	book, err := workbook.Open(fc.WorkingCopy)
	if err != nil {
		return 0, NewError(IO, fmt.Errorf("edit batch: open working copy: %w", err))
	}
	s, ok := book.Sheet(sheet)
	if !ok {
		return 0, NewErrorf(NotFound, "sheet %q not found", sheet)
	}

	now := time.Now()
	logEntries := make([]EditOp, 0, len(edits))
	for _, e := range edits {
		addr, err := workbook.ParseA1(e.Address)
		if err != nil {
			return 0, NewError(MalformedInput, fmt.Errorf("edit batch: %w", err))
		}
		cell, _ := s.Get(addr)
		if e.IsFormula {
			cell.Formula = e.Value
		} else {
			cell.Formula = ""
			cell.Value = e.Value
		}
		s.Set(addr, cell)
		logEntries = append(logEntries, EditOp{
			Timestamp: now, Sheet: sheet, Address: e.Address, Value: e.Value, IsFormula: e.IsFormula,
		})
	}

	data, err := book.Bytes()
	if err != nil {
		return 0, NewError(IO, fmt.Errorf("edit batch: serialize: %w", err))
	}
	if err := retryio.WriteFileAtomic(ctx, fc.WorkingCopy, data, 0o644); err != nil {
		return 0, NewError(IO, fmt.Errorf("edit batch: write working copy: %w", err))
	}

	total := 0
	if err := r.WithForkMut(forkID, func(fc *ForkContext) error {
		fc.EditLog = append(fc.EditLog, logEntries...)
		total = len(fc.EditLog)
		return nil
	}); err != nil {
		return 0, err
	}
	return total, nil
}

// StyleBatchMode selects how ApplyStyleBatch treats the working copy.
type StyleBatchMode string

const (
	StyleBatchPreview StyleBatchMode = "preview"
	StyleBatchApply   StyleBatchMode = "apply"
)

// StyleBatchResult is the outcome of ApplyStyleBatch.
type StyleBatchResult struct {
	ChangeID  string // set only in preview mode
	OpsApplied int
	Summary   ChangeSummary
}

// ApplyStyleBatch runs the style batch pipeline. In apply mode it
// mutates the working copy directly; in preview mode it mutates a side
// snapshot under a checkpoint guard and records a Staged Change
// referencing it, leaving the working copy untouched.
func (r *ForkRegistry) ApplyStyleBatch(ctx context.Context, forkID string, ops []StyleOp, mode StyleBatchMode, label string) (StyleBatchResult, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return StyleBatchResult{}, err
	}

	switch mode {
	case StyleBatchApply:
		return r.applyStyleOpsInPlace(ctx, forkID, fc.WorkingCopy, ops)
	case StyleBatchPreview:
		return r.previewStyleOps(ctx, forkID, fc.WorkingCopy, ops, label)
	default:
		return StyleBatchResult{}, NewErrorf(MalformedInput, "invalid style batch mode %q", mode)
	}
}

func (r *ForkRegistry) applyStyleOpsInPlace(ctx context.Context, forkID, workingCopy string, ops []StyleOp) (StyleBatchResult, error) {
	book, err := workbook.Open(workingCopy)
	if err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style batch: open: %w", err))
	}

	summary, err := applyStyleOps(book, ops)
	if err != nil {
		return StyleBatchResult{}, err
	}

	data, err := book.Bytes()
	if err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style batch: serialize: %w", err))
	}
	if err := retryio.WriteFileAtomic(ctx, workingCopy, data, 0o644); err != nil {
		return StyleBatchResult{}, NewError(IO, fmt.Errorf("style batch: write: %w", err))
	}

	if err := r.WithForkMut(forkID, func(*ForkContext) error { return nil }); err != nil {
		return StyleBatchResult{}, err
	}
	return StyleBatchResult{OpsApplied: len(ops), Summary: summary}, nil
}

// applyStyleOps mutates book in place according to ops, resolving each
// op's target against book's current detected regions and returning the
// aggregate change summary.
func applyStyleOps(book *workbook.Book, ops []StyleOp) (ChangeSummary, error) {
	summary := ChangeSummary{AffectedBounds: map[string]string{}}
	sheetsSeen := map[string]bool{}

	for _, op := range ops {
		sheet, ok := book.Sheet(op.Sheet)
		if !ok {
			return ChangeSummary{}, NewErrorf(NotFound, "sheet %q not found", op.Sheet)
		}

		addrs, err := resolveStyleTarget(sheet, op.Target)
		if err != nil {
			return ChangeSummary{}, err
		}

		if !sheetsSeen[op.Sheet] {
			sheetsSeen[op.Sheet] = true
			summary.AffectedSheets = append(summary.AffectedSheets, op.Sheet)
		}
		summary.OpKindTags = append(summary.OpKindTags, string(op.Mode))

		for _, addr := range addrs {
			cell, _ := sheet.Get(addr)
			before := book.Styles().Get(cell.StyleID)
			after, err := workbook.Apply(before, op.Patch, op.Mode)
			if err != nil {
				return ChangeSummary{}, NewError(MalformedInput, err)
			}
			newID := book.Styles().Put(after)

			summary.CellsTouched++
			if newID != cell.StyleID {
				summary.CellsStyleChanged++
				cell.StyleID = newID
				sheet.Set(addr, cell)
			}
		}
	}
	return summary, nil
}

// resolveStyleTarget resolves a StyleTarget to concrete addresses,
// resolving region_id targets against the sheet's current detected
// regions.
func resolveStyleTarget(sheet *workbook.Sheet, target StyleTarget) ([]workbook.Address, error) {
	switch target.Kind {
	case StyleTargetRange:
		start, end, err := workbook.ParseRange(target.Range)
		if err != nil {
			return nil, NewError(MalformedInput, err)
		}
		return workbook.AddressesIn(start, end), nil
	case StyleTargetCells:
		out := make([]workbook.Address, 0, len(target.Cells))
		for _, a := range target.Cells {
			addr, err := workbook.ParseA1(a)
			if err != nil {
				return nil, NewError(MalformedInput, err)
			}
			out = append(out, addr)
		}
		return out, nil
	case StyleTargetRegionID:
		region, ok := workbook.ResolveRegion(sheet, target.RegionID)
		if !ok {
			return nil, NewErrorf(MalformedInput, "region id %d not found", target.RegionID)
		}
		return workbook.AddressesIn(region.Start, region.End), nil
	default:
		return nil, NewErrorf(MalformedInput, "invalid style target kind %q", target.Kind)
	}
}
