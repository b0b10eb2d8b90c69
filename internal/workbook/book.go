package workbook

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

func blobHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Cell is a single spreadsheet cell's in-memory state.
type Cell struct {
	Value   string // literal value, or the last computed/cached value for a formula cell
	Formula string // empty if this cell holds a literal value
	StyleID string // stable style id (internal/workbook/style.go), empty for the default style
}

// IsFormula reports whether the cell holds a formula.
func (c Cell) IsFormula() bool { return c.Formula != "" }

// Sheet is one worksheet's cells, kept in a map for O(1) access;
// SortedAddresses sorts the populated addresses on each call.
type Sheet struct {
	Name  string
	cells map[Address]Cell

	// dirty tracks whether this sheet has been mutated since it was
	// decoded from an archive. A clean sheet's original XML blob can be
	// written back verbatim instead of regenerated, which is what lets
	// the Diff Engine's blob-hash fast path keep matching an untouched
	// sheet across repeated saves of the same fork.
	dirty bool
}

func newSheet(name string) *Sheet {
	return &Sheet{Name: name, cells: make(map[Address]Cell)}
}

// Get returns the cell at addr, and whether it is present (an absent cell
// is equivalent to an empty default cell).
func (s *Sheet) Get(addr Address) (Cell, bool) {
	c, ok := s.cells[addr]
	return c, ok
}

// Set stores (or overwrites) the cell at addr.
func (s *Sheet) Set(addr Address, c Cell) {
	s.cells[addr] = c
	s.dirty = true
}

// Delete removes the cell at addr, restoring it to the implicit default.
func (s *Sheet) Delete(addr Address) {
	delete(s.cells, addr)
	s.dirty = true
}

// SortedAddresses returns every populated address in row-major order.
func (s *Sheet) SortedAddresses() []Address {
	out := make([]Address, 0, len(s.cells))
	for a := range s.cells {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Book is the in-memory representation of a .xlsx archive: the workbook
// reader/writer, implemented directly over archive/zip + encoding/xml.
type Book struct {
	sheetOrder    []string
	sheets        map[string]*Sheet
	sharedStrings []string
	stringIndex   map[string]int
	styles        *StyleTable
	tables        []Table
	names         []DefinedName

	// rawSheetXML/rawSharedStrings hold the as-read bytes for the Diff
	// Engine's fast-path hash skip; nil/empty for a Book built with New.
	rawSheetXML      map[string][]byte
	rawSharedStrings []byte
}

// Table is a workbook-scoped table definition.
type Table struct {
	Name  string
	Sheet string
	Range string
}

// DefinedName is a workbook- or sheet-scoped name ("defined
// names (with localSheetId scoping)").
type DefinedName struct {
	Name          string
	RefersTo      string
	LocalSheetID  int // -1 means workbook-scoped
}

// New creates an empty workbook with one sheet, used by tests and by
// callers building a workbook from scratch.
func New(firstSheet string) *Book {
	b := &Book{
		sheets:      make(map[string]*Sheet),
		stringIndex: make(map[string]int),
		styles:      NewStyleTable(),
	}
	b.AddSheet(firstSheet)
	return b
}

// AddSheet appends a new, empty sheet.
func (b *Book) AddSheet(name string) *Sheet {
	s := newSheet(name)
	b.sheets[name] = s
	b.sheetOrder = append(b.sheetOrder, name)
	return s
}

// SheetNames returns sheet names in workbook order.
func (b *Book) SheetNames() []string {
	out := make([]string, len(b.sheetOrder))
	copy(out, b.sheetOrder)
	return out
}

// Sheet looks up a sheet by name.
func (b *Book) Sheet(name string) (*Sheet, bool) {
	s, ok := b.sheets[name]
	return s, ok
}

// Styles returns the workbook's style table.
func (b *Book) Styles() *StyleTable { return b.styles }

// Tables returns the workbook's table definitions.
func (b *Book) Tables() []Table { return b.tables }

// Names returns the workbook's defined names.
func (b *Book) Names() []DefinedName { return b.names }

// Open reads a .xlsx archive from path into memory.
func Open(path string) (*Book, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("workbook: open %s: %w", path, err)
	}
	defer r.Close()
	return decode(&r.Reader)
}

// OpenBytes parses a .xlsx archive already held in memory, without
// opening a file.
func OpenBytes(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("workbook: parse archive: %w", err)
	}
	return decode(zr)
}

func decode(zr *zip.Reader) (*Book, error) {
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files[f.Name] = data
	}

	b := &Book{
		sheets:      make(map[string]*Sheet),
		stringIndex: make(map[string]int),
		styles:      NewStyleTable(),
		rawSheetXML: make(map[string][]byte),
	}

	if raw, ok := files["xl/sharedStrings.xml"]; ok {
		b.sharedStrings, _ = parseSharedStrings(raw)
		b.rawSharedStrings = raw
		for i, s := range b.sharedStrings {
			// First index wins: a workbook produced elsewhere is not
			// guaranteed to dedupe its own shared-string table, but our
			// lookups must still resolve to one stable index per string.
			if _, ok := b.stringIndex[s]; !ok {
				b.stringIndex[s] = i
			}
		}
	}
	if raw, ok := files["xl/styles.xml"]; ok {
		b.styles, _ = parseStyles(raw)
	}

	sheetNameToTarget, order, err := parseWorkbookXML(files["xl/workbook.xml"], files["xl/_rels/workbook.xml.rels"])
	if err != nil {
		return nil, err
	}
	b.sheetOrder = order

	for _, name := range order {
		target := sheetNameToTarget[name]
		raw, ok := files["xl/"+target]
		if !ok {
			b.sheets[name] = newSheet(name)
			continue
		}
		sheet, err := parseSheetXML(name, raw, b.sharedStrings)
		if err != nil {
			return nil, fmt.Errorf("workbook: sheet %s: %w", name, err)
		}
		sheet.dirty = false // filled by decoding, not mutated since
		b.sheets[name] = sheet
		b.rawSheetXML[name] = raw
	}

	b.tables = parseTables(files)
	b.names = parseDefinedNames(files["xl/workbook.xml"])

	return b, nil
}

// SheetBlobHash returns the SHA-256 hex digest of the raw per-sheet XML
// blob as read from disk, or "" if the sheet wasn't loaded from an
// archive (e.g. a Book built with New). The Diff Engine's fast-path skip
// compares this between two books before doing any
// cell-level work.
func (b *Book) SheetBlobHash(name string) string {
	raw, ok := b.rawSheetXML[name]
	if !ok {
		return ""
	}
	return blobHash(raw)
}

// SharedStringsBlobHash returns the SHA-256 hex digest of the raw shared
// string table blob, or "" if the workbook has none.
func (b *Book) SharedStringsBlobHash() string {
	if b.rawSharedStrings == nil {
		return ""
	}
	return blobHash(b.rawSharedStrings)
}

// Save serializes the workbook back to a .xlsx archive at path, writing
// through a sibling temp file and renaming into place so a crash never
// leaves a partial archive.
func (b *Book) Save(path string) error {
	data, err := b.Bytes()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Bytes serializes the workbook to an in-memory .xlsx archive.
func (b *Book) Bytes() ([]byte, error) {
	// Intern every non-formula, non-numeric cell value up front so the
	// shared-strings part is complete before any sheet part is written;
	// sheetXML only looks strings up after this, it never appends.
	for _, name := range b.sheetOrder {
		sheet := b.sheets[name]
		for _, a := range sheet.SortedAddresses() {
			c, _ := sheet.Get(a)
			if !c.IsFormula() && !isNumeric(c.Value) {
				b.internedString(c.Value)
			}
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeFile(zw, "[Content_Types].xml", contentTypesXML(b)); err != nil {
		return nil, err
	}
	if err := writeFile(zw, "_rels/.rels", rootRelsXML()); err != nil {
		return nil, err
	}
	if err := writeFile(zw, "xl/workbook.xml", workbookXML(b)); err != nil {
		return nil, err
	}
	if err := writeFile(zw, "xl/_rels/workbook.xml.rels", workbookRelsXML(b)); err != nil {
		return nil, err
	}
	if err := writeFile(zw, "xl/sharedStrings.xml", sharedStringsXML(b.sharedStrings)); err != nil {
		return nil, err
	}
	if err := writeFile(zw, "xl/styles.xml", b.styles.xml()); err != nil {
		return nil, err
	}
	for i, name := range b.sheetOrder {
		sheetPath := fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		sheet := b.sheets[name]
		var data []byte
		if raw, ok := b.rawSheetXML[name]; ok && !sheet.dirty {
			// Untouched since it was decoded: write the original bytes back
			// verbatim instead of our own regenerated XML, so the Diff
			// Engine's blob-hash fast path still matches a base authored by
			// a foreign writer after unrelated sheets in this fork changed.
			data = raw
		} else {
			data = sheetXML(sheet, b)
		}
		if err := writeFile(zw, sheetPath, data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// internedString returns the shared-string index for s, adding it to the
// table if not already present. New strings are only ever appended, never
// reordered or removed, so an index handed out earlier stays valid for the
// lifetime of the Book — including inside a preserved raw sheet XML blob
// whose cell references were resolved against an earlier, shorter table.
func (b *Book) internedString(s string) int {
	if i, ok := b.lookupInternedStringOK(s); ok {
		return i
	}
	b.sharedStrings = append(b.sharedStrings, s)
	i := len(b.sharedStrings) - 1
	b.stringIndex[s] = i
	return i
}

// lookupInternedString returns the shared-string index for s, assuming it
// was already interned (Bytes interns every value up front). Falls back to
// 0 for the pathological case of an empty string table.
func (b *Book) lookupInternedString(s string) int {
	if i, ok := b.lookupInternedStringOK(s); ok {
		return i
	}
	return 0
}

// lookupInternedStringOK is a map lookup rather than a linear scan so that
// Bytes, called on every edit/style/checkpoint write, stays O(n) in the
// number of populated cells instead of O(n^2).
func (b *Book) lookupInternedStringOK(s string) (int, bool) {
	i, ok := b.stringIndex[s]
	return i, ok
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
