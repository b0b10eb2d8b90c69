package diffengine

import (
	"strconv"

	"github.com/sheetforge/sheetforge/internal/workbook"
)

// NameDiff is a defined-name-level change, honoring localSheetId scoping.
type NameDiff struct {
	Name         string
	LocalSheetID int
	Kind         CellDiffKind
	RefersTo     string
	PrevRefersTo string
}

// nameKey scopes a defined name by its localSheetId, honoring 
// ("defined names (with localSheetId scoping)").
func nameKey(name string, localSheetID int) string {
	return strconv.Itoa(localSheetID) + "\x00" + name
}

func diffNames(base, fork *workbook.Book, sheetFilter string) []NameDiff {
	baseByKey := map[string]workbook.DefinedName{}
	for _, n := range base.Names() {
		baseByKey[nameKey(n.Name, n.LocalSheetID)] = n
	}
	forkByKey := map[string]workbook.DefinedName{}
	for _, n := range fork.Names() {
		forkByKey[nameKey(n.Name, n.LocalSheetID)] = n
	}

	var diffs []NameDiff
	for key, bn := range baseByKey {
		if sheetFilter != "" && localSheetName(base, bn.LocalSheetID) != "" && localSheetName(base, bn.LocalSheetID) != sheetFilter {
			continue
		}
		if fn, ok := forkByKey[key]; !ok {
			diffs = append(diffs, NameDiff{Name: bn.Name, LocalSheetID: bn.LocalSheetID, Kind: Deleted, PrevRefersTo: bn.RefersTo})
		} else if fn.RefersTo != bn.RefersTo {
			diffs = append(diffs, NameDiff{Name: bn.Name, LocalSheetID: bn.LocalSheetID, Kind: Modified, RefersTo: fn.RefersTo, PrevRefersTo: bn.RefersTo})
		}
	}
	for key, fn := range forkByKey {
		if sheetFilter != "" && localSheetName(fork, fn.LocalSheetID) != "" && localSheetName(fork, fn.LocalSheetID) != sheetFilter {
			continue
		}
		if _, ok := baseByKey[key]; !ok {
			diffs = append(diffs, NameDiff{Name: fn.Name, LocalSheetID: fn.LocalSheetID, Kind: Added, RefersTo: fn.RefersTo})
		}
	}
	return diffs
}
