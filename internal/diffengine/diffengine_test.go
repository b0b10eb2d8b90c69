package diffengine

import (
	"context"
	"testing"

	"github.com/sheetforge/sheetforge/internal/workbook"
)

func TestDiffAddedDeletedModified(t *testing.T) {
	base := workbook.New("Sheet1")
	baseSheet, _ := base.Sheet("Sheet1")
	a1, _ := workbook.ParseA1("A1")
	a2, _ := workbook.ParseA1("A2")
	a3, _ := workbook.ParseA1("A3")
	baseSheet.Set(a1, workbook.Cell{Value: "10"})
	baseSheet.Set(a2, workbook.Cell{Value: "old"})

	fork := workbook.New("Sheet1")
	forkSheet, _ := fork.Sheet("Sheet1")
	forkSheet.Set(a1, workbook.Cell{Value: "10.0000000001"}) // within epsilon, unchanged
	forkSheet.Set(a3, workbook.Cell{Value: "new"})           // added
	// a2 deleted by omission

	cs, err := Diff(context.Background(), base, fork, "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	var added, deleted int
	for _, c := range cs.Cells {
		switch c.Kind {
		case Added:
			added++
			if c.Address != "A3" {
				t.Errorf("unexpected added address %s", c.Address)
			}
		case Deleted:
			deleted++
			if c.Address != "A2" {
				t.Errorf("unexpected deleted address %s", c.Address)
			}
		case Modified:
			t.Errorf("A1 should be within numeric epsilon, got modified: %+v", c)
		}
	}
	if added != 1 || deleted != 1 {
		t.Fatalf("want 1 added, 1 deleted; got added=%d deleted=%d (cells=%+v)", added, deleted, cs.Cells)
	}
}

func TestDiffModificationSubtypes(t *testing.T) {
	base := workbook.New("Sheet1")
	fork := workbook.New("Sheet1")
	bs, _ := base.Sheet("Sheet1")
	fs, _ := fork.Sheet("Sheet1")

	addr := func(a string) workbook.Address {
		parsed, _ := workbook.ParseA1(a)
		return parsed
	}

	bs.Set(addr("A1"), workbook.Cell{Formula: "SUM(B1:B2)", Value: "3"})
	fs.Set(addr("A1"), workbook.Cell{Formula: "SUM(B1:B2)", Value: "5"}) // recalced result, same formula

	bs.Set(addr("A2"), workbook.Cell{Formula: "A1+1", Value: "4"})
	fs.Set(addr("A2"), workbook.Cell{Formula: "A1+2", Value: "4"}) // formula changed

	bs.Set(addr("A3"), workbook.Cell{Value: "plain"})
	fs.Set(addr("A3"), workbook.Cell{Value: "edited"}) // literal value edit

	bs.Set(addr("A4"), workbook.Cell{Value: "x"})
	fs.Set(addr("A4"), workbook.Cell{Value: "x", StyleID: "abc123"}) // style only

	cs, err := Diff(context.Background(), base, fork, "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	got := map[string]ModKind{}
	for _, c := range cs.Cells {
		if c.Kind == Modified {
			got[c.Address] = c.Mod
		}
	}

	want := map[string]ModKind{
		"A1": RecalcResult,
		"A2": FormulaEdit,
		"A3": ValueEdit,
		"A4": StyleEdit,
	}
	for addr, mod := range want {
		if got[addr] != mod {
			t.Errorf("address %s: want mod %s, got %s", addr, mod, got[addr])
		}
	}
}

func TestDiffSkipsUnchangedSheetViaBlobHash(t *testing.T) {
	book := workbook.New("Sheet1")
	sheet, _ := book.Sheet("Sheet1")
	addr, _ := workbook.ParseA1("A1")
	sheet.Set(addr, workbook.Cell{Value: "1"})

	raw, err := book.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	base, err := workbook.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	fork, err := workbook.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	cs, err := Diff(context.Background(), base, fork, "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(cs.Cells) != 0 {
		t.Fatalf("expected no cell diffs for byte-identical archives, got %+v", cs.Cells)
	}
}

// TestDiffSkipsUnchangedSheetViaBlobHashIgnoresInMemoryDivergence proves the
// fast path is actually taken, not just that two identical archives happen
// to diff to nothing. It forces the fork's in-memory cell map to disagree
// with base (which a cell-level compare would report as Modified) while
// leaving the archive's raw sheet bytes — and so the blob hash both books
// were opened with — untouched. A real merge-join would catch the
// divergence; only the hash-based skip can produce an empty result here.
func TestDiffSkipsUnchangedSheetViaBlobHashIgnoresInMemoryDivergence(t *testing.T) {
	book := workbook.New("Sheet1")
	sheet, _ := book.Sheet("Sheet1")
	addr, _ := workbook.ParseA1("A1")
	sheet.Set(addr, workbook.Cell{Value: "1"})

	raw, err := book.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	base, err := workbook.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes (base): %v", err)
	}
	fork, err := workbook.OpenBytes(raw)
	if err != nil {
		t.Fatalf("OpenBytes (fork): %v", err)
	}
	if base.SheetBlobHash("Sheet1") == "" || base.SheetBlobHash("Sheet1") != fork.SheetBlobHash("Sheet1") {
		t.Fatalf("test setup expects both books to share a nonempty Sheet1 blob hash")
	}

	// Mutate the fork's in-memory cell map without touching the archive it
	// was opened from — the blob hash this test relies on is computed from
	// the raw bytes captured at decode, not from the live cell map.
	forkSheet, _ := fork.Sheet("Sheet1")
	forkSheet.Set(addr, workbook.Cell{Value: "999"})

	cs, err := Diff(context.Background(), base, fork, "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(cs.Cells) != 0 {
		t.Fatalf("expected the blob-hash fast path to skip Sheet1 despite the in-memory divergence, got %+v", cs.Cells)
	}
}

func TestDiffTablesAndNames(t *testing.T) {
	base := workbook.New("Sheet1")
	fork := workbook.New("Sheet1")

	cs, err := Diff(context.Background(), base, fork, "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(cs.Tables) != 0 || len(cs.Names) != 0 {
		t.Fatalf("expected no table/name diffs between two fresh books, got %+v / %+v", cs.Tables, cs.Names)
	}
}
