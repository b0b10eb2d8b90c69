package diffengine

import "github.com/sheetforge/sheetforge/internal/workbook"

// TableDiff is a workbook-scoped table-level change.
type TableDiff struct {
	Name, Sheet string
	Kind        CellDiffKind
	Range       string
	PrevRange   string
}

func diffTables(base, fork *workbook.Book, sheetFilter string) []TableDiff {
	baseByName := map[string]workbook.Table{}
	for _, t := range base.Tables() {
		baseByName[t.Name] = t
	}
	forkByName := map[string]workbook.Table{}
	for _, t := range fork.Tables() {
		forkByName[t.Name] = t
	}

	var diffs []TableDiff
	for name, bt := range baseByName {
		if sheetFilter != "" && bt.Sheet != sheetFilter {
			continue
		}
		if ft, ok := forkByName[name]; !ok {
			diffs = append(diffs, TableDiff{Name: name, Sheet: bt.Sheet, Kind: Deleted, PrevRange: bt.Range})
		} else if ft.Range != bt.Range {
			diffs = append(diffs, TableDiff{Name: name, Sheet: bt.Sheet, Kind: Modified, Range: ft.Range, PrevRange: bt.Range})
		}
	}
	for name, ft := range forkByName {
		if sheetFilter != "" && ft.Sheet != sheetFilter {
			continue
		}
		if _, ok := baseByName[name]; !ok {
			diffs = append(diffs, TableDiff{Name: name, Sheet: ft.Sheet, Kind: Added, Range: ft.Range})
		}
	}
	return diffs
}
