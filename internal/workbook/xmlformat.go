package workbook

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// --- parsing ---------------------------------------------------------

type sstXML struct {
	XMLName xml.Name `xml:"sst"`
	SI      []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

func parseSharedStrings(raw []byte) ([]string, error) {
	var sst sstXML
	if err := xml.Unmarshal(raw, &sst); err != nil {
		return nil, err
	}
	out := make([]string, len(sst.SI))
	for i, si := range sst.SI {
		out[i] = si.T
	}
	return out, nil
}

type workbookXMLDoc struct {
	XMLName xml.Name `xml:"workbook"`
	Sheets  struct {
		Sheet []struct {
			Name  string `xml:"name,attr"`
			RID   string `xml:"id,attr"`
			SheetID string `xml:"sheetId,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
	DefinedNames struct {
		DefinedName []struct {
			Name         string `xml:"name,attr"`
			LocalSheetID string `xml:"localSheetId,attr"`
			Value        string `xml:",chardata"`
		} `xml:"definedName"`
	} `xml:"definedNames"`
}

type relsXMLDoc struct {
	XMLName       xml.Name `xml:"Relationships"`
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func parseWorkbookXML(wbRaw, relsRaw []byte) (map[string]string, []string, error) {
	var wb workbookXMLDoc
	if len(wbRaw) > 0 {
		if err := xml.Unmarshal(wbRaw, &wb); err != nil {
			return nil, nil, err
		}
	}
	idToTarget := map[string]string{}
	if len(relsRaw) > 0 {
		var rels relsXMLDoc
		if err := xml.Unmarshal(relsRaw, &rels); err != nil {
			return nil, nil, err
		}
		for _, r := range rels.Relationships {
			idToTarget[r.ID] = r.Target
		}
	}

	nameToTarget := map[string]string{}
	order := make([]string, 0, len(wb.Sheets.Sheet))
	for _, s := range wb.Sheets.Sheet {
		order = append(order, s.Name)
		if t, ok := idToTarget[s.RID]; ok {
			nameToTarget[s.Name] = t
		} else {
			nameToTarget[s.Name] = fmt.Sprintf("worksheets/sheet%s.xml", s.SheetID)
		}
	}
	return nameToTarget, order, nil
}

func parseDefinedNames(wbRaw []byte) []DefinedName {
	var wb workbookXMLDoc
	if len(wbRaw) == 0 {
		return nil
	}
	if err := xml.Unmarshal(wbRaw, &wb); err != nil {
		return nil
	}
	out := make([]DefinedName, 0, len(wb.DefinedNames.DefinedName))
	for _, dn := range wb.DefinedNames.DefinedName {
		localID := -1
		if dn.LocalSheetID != "" {
			localID = mustAtoi(dn.LocalSheetID)
		}
		out = append(out, DefinedName{Name: dn.Name, RefersTo: dn.Value, LocalSheetID: localID})
	}
	return out
}

// parseTables is a stub: table parts live under xl/tables/tableN.xml in a
// real workbook; this pack contains no archives to validate against, so we
// parse the minimal subset the engine's diff actually needs (name + ref)
// when present, and otherwise report no tables.
func parseTables(files map[string][]byte) []Table {
	var out []Table
	for name, raw := range files {
		if !isTablePart(name) {
			continue
		}
		var t struct {
			XMLName xml.Name `xml:"table"`
			Name    string   `xml:"name,attr"`
			Ref     string   `xml:"ref,attr"`
		}
		if err := xml.Unmarshal(raw, &t); err == nil && t.Name != "" {
			out = append(out, Table{Name: t.Name, Range: t.Ref})
		}
	}
	return out
}

func isTablePart(name string) bool {
	return len(name) > len("xl/tables/") && name[:len("xl/tables/")] == "xl/tables/"
}

type sheetDataXML struct {
	XMLName   xml.Name `xml:"worksheet"`
	SheetData struct {
		Row []struct {
			R  string `xml:"r,attr"`
			C  []struct {
				R string `xml:"r,attr"`
				T string `xml:"t,attr"`
				S string `xml:"s,attr"`
				F string `xml:"f"`
				V string `xml:"v"`
			} `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
}

func parseSheetXML(name string, raw []byte, sharedStrings []string) (*Sheet, error) {
	var doc sheetDataXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	s := newSheet(name)
	for _, row := range doc.SheetData.Row {
		for _, c := range row.C {
			addr, err := ParseA1(c.R)
			if err != nil {
				continue
			}
			cell := Cell{Formula: c.F, StyleID: c.S}
			switch c.T {
			case "s":
				idx := mustAtoi(c.V)
				if idx >= 0 && idx < len(sharedStrings) {
					cell.Value = sharedStrings[idx]
				}
			default:
				cell.Value = c.V
			}
			s.Set(addr, cell)
		}
	}
	return s, nil
}

// --- serialization -----------------------------------------------------

func contentTypesXML(b *Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	buf.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	buf.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	buf.WriteString(`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>`)
	buf.WriteString(`<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>`)
	buf.WriteString(`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>`)
	for i := range b.sheetOrder {
		fmt.Fprintf(&buf, `<Override PartName="/xl/worksheets/sheet%d.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>`, i+1)
	}
	buf.WriteString(`</Types>`)
	return buf.Bytes()
}

func rootRelsXML() []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
		`</Relationships>`)
}

func workbookXML(b *Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString(`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">`)
	buf.WriteString(`<sheets>`)
	for i, name := range b.sheetOrder {
		fmt.Fprintf(&buf, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, xmlEscape(name), i+1, i+1)
	}
	buf.WriteString(`</sheets>`)
	if len(b.names) > 0 {
		buf.WriteString(`<definedNames>`)
		for _, n := range b.names {
			if n.LocalSheetID >= 0 {
				fmt.Fprintf(&buf, `<definedName name="%s" localSheetId="%d">%s</definedName>`, xmlEscape(n.Name), n.LocalSheetID, xmlEscape(n.RefersTo))
			} else {
				fmt.Fprintf(&buf, `<definedName name="%s">%s</definedName>`, xmlEscape(n.Name), xmlEscape(n.RefersTo))
			}
		}
		buf.WriteString(`</definedNames>`)
	}
	buf.WriteString(`</workbook>`)
	return buf.Bytes()
}

func workbookRelsXML(b *Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i := range b.sheetOrder {
		fmt.Fprintf(&buf, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`, i+1, i+1)
	}
	buf.WriteString(`</Relationships>`)
	return buf.Bytes()
}

func sharedStringsXML(strs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	fmt.Fprintf(&buf, `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`, len(strs), len(strs))
	for _, s := range strs {
		fmt.Fprintf(&buf, `<si><t xml:space="preserve">%s</t></si>`, xmlEscape(s))
	}
	buf.WriteString(`</sst>`)
	return buf.Bytes()
}

func sheetXML(s *Sheet, b *Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)

	addrs := s.SortedAddresses()
	row := -1
	for _, a := range addrs {
		if a.Row != row {
			if row != -1 {
				buf.WriteString(`</row>`)
			}
			fmt.Fprintf(&buf, `<row r="%d">`, a.Row)
			row = a.Row
		}
		c, _ := s.Get(a)
		attrs := fmt.Sprintf(` r="%s"`, a.String())
		if c.StyleID != "" {
			attrs += fmt.Sprintf(` s="%s"`, xmlEscape(c.StyleID))
		}
		if c.IsFormula() {
			fmt.Fprintf(&buf, `<c%s><f>%s</f><v>%s</v></c>`, attrs, xmlEscape(c.Formula), xmlEscape(c.Value))
			continue
		}
		if isNumeric(c.Value) {
			fmt.Fprintf(&buf, `<c%s><v>%s</v></c>`, attrs, xmlEscape(c.Value))
			continue
		}
		idx := b.lookupInternedString(c.Value)
		fmt.Fprintf(&buf, `<c%s t="s"><v>%d</v></c>`, attrs, idx)
	}
	if row != -1 {
		buf.WriteString(`</row>`)
	}
	buf.WriteString(`</sheetData></worksheet>`)
	return buf.Bytes()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
