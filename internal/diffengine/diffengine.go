// Package diffengine implements the Diff Engine: given two opened
// workbooks, walk their cells in address order and emit a typed change
// set. Both workbooks are fully loaded in memory (workbook.Book) and each
// sheet's addresses are collected and sorted before the walk; cells are
// not streamed from the archives.
//
// Each sheet's comparison is independent, so sheets run concurrently
// (one goroutine per sheet, bounded by an errgroup.Group) while each
// sheet's own cell stream stays a simple sequential merge-join.
package diffengine

import (
	"context"
	"math"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/sheetforge/sheetforge/internal/workbook"
)

// ModKind classifies a Modified cell diff.
type ModKind string

const (
	FormulaEdit  ModKind = "formula_edit"
	RecalcResult ModKind = "recalc_result"
	ValueEdit    ModKind = "value_edit"
	StyleEdit    ModKind = "style_edit"
)

// CellDiffKind classifies whether a cell, table, or name was added,
// deleted, or modified.
type CellDiffKind string

const (
	Added    CellDiffKind = "added"
	Deleted  CellDiffKind = "deleted"
	Modified CellDiffKind = "modified"
)

// CellDiff is one cell-level change within a sheet.
type CellDiff struct {
	Sheet   string
	Address string
	Kind    CellDiffKind
	Mod     ModKind // set only when Kind == Modified

	Value, Formula, StyleID             string // fork-side state (Added/Modified)
	PrevValue, PrevFormula, PrevStyleID string // base-side state (Deleted/Modified)
}

// ChangeSet is the ordered, typed output of a diff.
type ChangeSet struct {
	Cells  []CellDiff
	Tables []TableDiff
	Names  []NameDiff
}

const numericEpsilon = 1e-9

// Diff compares two workbooks and returns their change set. sheetFilter,
// if non-empty, restricts comparison (cells, tables, and names) to that
// single sheet.
func Diff(ctx context.Context, base, fork *workbook.Book, sheetFilter string) (ChangeSet, error) {
	sheetSet := map[string]bool{}
	for _, s := range base.SheetNames() {
		sheetSet[s] = true
	}
	for _, s := range fork.SheetNames() {
		sheetSet[s] = true
	}
	sheets := make([]string, 0, len(sheetSet))
	for s := range sheetSet {
		if sheetFilter != "" && s != sheetFilter {
			continue
		}
		sheets = append(sheets, s)
	}
	sort.Strings(sheets)

	perSheet := make([][]CellDiff, len(sheets))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range sheets {
		i, name := i, name
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			perSheet[i] = diffSheet(base, fork, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ChangeSet{}, err
	}

	var cs ChangeSet
	for _, sheetDiffs := range perSheet {
		cs.Cells = append(cs.Cells, sheetDiffs...)
	}
	cs.Tables = diffTables(base, fork, sheetFilter)
	cs.Names = diffNames(base, fork, sheetFilter)
	return cs, nil
}

// localSheetName resolves a definedName's localSheetId against a book's
// own sheet order (OOXML defines localSheetId as an index into that
// book's <sheets> list), returning "" for a workbook-scoped name.
func localSheetName(b *workbook.Book, localSheetID int) string {
	if localSheetID < 0 {
		return ""
	}
	order := b.SheetNames()
	if localSheetID >= len(order) {
		return ""
	}
	return order[localSheetID]
}

// diffSheet is the fast-path-guarded, per-sheet merge-join described in
// the fast-path hash skip, the merge-join, and subtype classification.
func diffSheet(base, fork *workbook.Book, name string) []CellDiff {
	baseHash, forkHash := base.SheetBlobHash(name), fork.SheetBlobHash(name)
	if baseHash != "" && forkHash != "" && baseHash == forkHash &&
		base.SharedStringsBlobHash() == fork.SharedStringsBlobHash() {
		return nil
	}

	baseSheet, hasBase := base.Sheet(name)
	forkSheet, hasFork := fork.Sheet(name)

	var baseAddrs, forkAddrs []workbook.Address
	if hasBase {
		baseAddrs = baseSheet.SortedAddresses()
	}
	if hasFork {
		forkAddrs = forkSheet.SortedAddresses()
	}

	var diffs []CellDiff
	i, j := 0, 0
	for i < len(baseAddrs) || j < len(forkAddrs) {
		switch {
		case j >= len(forkAddrs) || (i < len(baseAddrs) && baseAddrs[i].Less(forkAddrs[j])):
			// Present on base only -> Deleted.
			a := baseAddrs[i]
			c, _ := baseSheet.Get(a)
			diffs = append(diffs, CellDiff{
				Sheet: name, Address: a.String(), Kind: Deleted,
				PrevValue: c.Value, PrevFormula: c.Formula, PrevStyleID: c.StyleID,
			})
			i++
		case i >= len(baseAddrs) || forkAddrs[j].Less(baseAddrs[i]):
			// Present on fork only -> Added.
			a := forkAddrs[j]
			c, _ := forkSheet.Get(a)
			diffs = append(diffs, CellDiff{
				Sheet: name, Address: a.String(), Kind: Added,
				Value: c.Value, Formula: c.Formula, StyleID: c.StyleID,
			})
			j++
		default:
			a := baseAddrs[i]
			bc, _ := baseSheet.Get(a)
			fc, _ := forkSheet.Get(a)
			if d, changed := compareCells(name, a.String(), bc, fc); changed {
				diffs = append(diffs, d)
			}
			i++
			j++
		}
	}
	return diffs
}

func compareCells(sheet, addr string, base, fork workbook.Cell) (CellDiff, bool) {
	formulaChanged := base.Formula != fork.Formula
	styleChanged := base.StyleID != fork.StyleID
	valueChanged := !valuesEqual(base.Value, fork.Value)

	if !formulaChanged && !valueChanged && !styleChanged {
		return CellDiff{}, false
	}

	d := CellDiff{
		Sheet: sheet, Address: addr, Kind: Modified,
		Value: fork.Value, Formula: fork.Formula, StyleID: fork.StyleID,
		PrevValue: base.Value, PrevFormula: base.Formula, PrevStyleID: base.StyleID,
	}

	switch {
	case !formulaChanged && !valueChanged && styleChanged:
		d.Mod = StyleEdit
	case formulaChanged:
		d.Mod = FormulaEdit
	case fork.IsFormula():
		d.Mod = RecalcResult
	default:
		d.Mod = ValueEdit
	}
	return d, true
}

func valuesEqual(a, b string) bool {
	if a == b {
		return true
	}
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		return math.Abs(af-bf) < numericEpsilon
	}
	return false
}
