package sheetforge

import (
	"time"

	"github.com/sheetforge/sheetforge/internal/workbook"
)

// EditOp is one recorded cell mutation. The edit log
// is append-only during a fork's life and truncated to entries at or
// before a checkpoint's created-at on restore.
type EditOp struct {
	Timestamp time.Time
	Sheet     string
	Address   string
	Value     string
	IsFormula bool
}

// StagedOpKind discriminates a Staged Op's payload.
type StagedOpKind string

const (
	StagedOpEditBatch  StagedOpKind = "edit_batch"
	StagedOpStyleBatch StagedOpKind = "style_batch"
)

// CellEdit is a single cell mutation within an edit-batch Staged Op.
type CellEdit struct {
	Address   string
	Value     string
	IsFormula bool
}

// StyleTargetKind discriminates how a StyleOp's target resolves to cells.
type StyleTargetKind string

const (
	StyleTargetRange    StyleTargetKind = "range"
	StyleTargetCells    StyleTargetKind = "cells"
	StyleTargetRegionID StyleTargetKind = "region_id"
)

// StyleTarget names the cells a StyleOp applies to.
type StyleTarget struct {
	Kind     StyleTargetKind
	Range    string   // set when Kind == StyleTargetRange, an A1:B2 range
	Cells    []string // set when Kind == StyleTargetCells, a list of A1 addresses
	RegionID int      // set when Kind == StyleTargetRegionID
}

// StyleOp is one style patch within a style-batch Staged Op.
type StyleOp struct {
	Sheet  string
	Target StyleTarget
	Patch  workbook.Descriptor
	Mode   workbook.OpMode
}

// StagedOp is a discriminated record: an edit batch or a style batch,
// exactly one of the edit-batch fields (Sheet, Edits) or StyleOps is
// populated according to Kind.
type StagedOp struct {
	Kind       StagedOpKind
	Sheet      string // edit-batch payload: {sheet, edits[]}
	Edits      []CellEdit
	StyleOps   []StyleOp // style-batch payload: {ops[]}
}

// ChangeSummary reports the effect of applying a batch of Staged Ops
//.
type ChangeSummary struct {
	AffectedSheets    []string
	AffectedBounds    map[string]string // sheet -> A1:B2 bounding range touched
	OpKindTags        []string
	CellsTouched      int
	CellsStyleChanged int
	Warnings          []string
}

// StagedChange is a reversible, previewable batch of ops. SideSnapshotPath is non-empty iff the change was
// produced by a preview; discarding a change with a side snapshot must
// remove that file.
type StagedChange struct {
	ID               string
	CreatedAt        time.Time
	Label            string
	Ops              []StagedOp
	Summary          ChangeSummary
	SideSnapshotPath string
}

// Checkpoint is a named, restorable snapshot of a fork's working copy
//.
type Checkpoint struct {
	ID        string
	CreatedAt time.Time
	Label     string
	Path      string
}
