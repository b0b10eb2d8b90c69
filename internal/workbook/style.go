package workbook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
)

// FontStyle is the subset of font attributes the style engine understands.
// Pointer fields distinguish "unset" (nil, leave as-is on merge) from an
// explicit false/zero value.
type FontStyle struct {
	Bold   *bool   `json:"bold,omitempty"`
	Italic *bool   `json:"italic,omitempty"`
	Color  *string `json:"color,omitempty"`
	Size   *float64 `json:"size,omitempty"`
}

// FillStyle is the subset of fill attributes the style engine understands.
type FillStyle struct {
	Color *string `json:"color,omitempty"`
}

// BorderStyle is the subset of border attributes the style engine
// understands.
type BorderStyle struct {
	Style *string `json:"style,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Descriptor is a canonical style patch/descriptor: every
// field is optional so it doubles as both a stored descriptor and an
// incoming patch.
type Descriptor struct {
	Font         *FontStyle   `json:"font,omitempty"`
	Fill         *FillStyle   `json:"fill,omitempty"`
	Border       *BorderStyle `json:"border,omitempty"`
	NumberFormat *string      `json:"number_format,omitempty"`
}

// StableID computes the style engine's stable style id: the first 12 hex
// characters of a SHA-256 over the descriptor's canonical JSON encoding
//. encoding/json already emits struct fields in
// declaration order and map keys sorted, which is the canonical form we
// need — no extra normalization step required.
func (d Descriptor) StableID() string {
	raw, _ := json.Marshal(d)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:12]
}

// OpMode selects how a patch is combined with an existing descriptor
//.
type OpMode string

const (
	OpMerge OpMode = "merge"
	OpSet   OpMode = "set"
	OpClear OpMode = "clear"
)

// Apply combines patch onto base according to mode:
//   - merge: layer patch's present fields onto base
//   - set: patch replaces base entirely
//   - clear: reset to the default (zero) descriptor
func Apply(base Descriptor, patch Descriptor, mode OpMode) (Descriptor, error) {
	switch mode {
	case OpMerge:
		out := base
		if patch.Font != nil {
			out.Font = mergeFont(out.Font, patch.Font)
		}
		if patch.Fill != nil {
			out.Fill = mergeFill(out.Fill, patch.Fill)
		}
		if patch.Border != nil {
			out.Border = mergeBorder(out.Border, patch.Border)
		}
		if patch.NumberFormat != nil {
			out.NumberFormat = patch.NumberFormat
		}
		return out, nil
	case OpSet:
		return patch, nil
	case OpClear:
		return Descriptor{}, nil
	default:
		return Descriptor{}, fmt.Errorf("invalid style op_mode %q", mode)
	}
}

func mergeFont(base, patch *FontStyle) *FontStyle {
	if base == nil {
		cp := *patch
		return &cp
	}
	out := *base
	if patch.Bold != nil {
		out.Bold = patch.Bold
	}
	if patch.Italic != nil {
		out.Italic = patch.Italic
	}
	if patch.Color != nil {
		out.Color = patch.Color
	}
	if patch.Size != nil {
		out.Size = patch.Size
	}
	return &out
}

func mergeFill(base, patch *FillStyle) *FillStyle {
	if base == nil {
		cp := *patch
		return &cp
	}
	out := *base
	if patch.Color != nil {
		out.Color = patch.Color
	}
	return &out
}

func mergeBorder(base, patch *BorderStyle) *BorderStyle {
	if base == nil {
		cp := *patch
		return &cp
	}
	out := *base
	if patch.Style != nil {
		out.Style = patch.Style
	}
	if patch.Color != nil {
		out.Color = patch.Color
	}
	return &out
}

// StyleTable is the workbook's registry of style descriptors, keyed by
// their StableID. The empty id denotes the implicit default (zero)
// descriptor and is never stored explicitly.
type StyleTable struct {
	byID map[string]Descriptor
}

// NewStyleTable returns an empty style table.
func NewStyleTable() *StyleTable {
	return &StyleTable{byID: make(map[string]Descriptor)}
}

// Get returns the descriptor for id, or the zero Descriptor if id is empty
// or unknown.
func (t *StyleTable) Get(id string) Descriptor {
	if id == "" {
		return Descriptor{}
	}
	return t.byID[id]
}

// Put registers d and returns its stable id. Registering the zero
// descriptor returns "" rather than storing a redundant entry.
func (t *StyleTable) Put(d Descriptor) string {
	if d == (Descriptor{}) {
		return ""
	}
	id := d.StableID()
	t.byID[id] = d
	return id
}

func (t *StyleTable) xml() []byte {
	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString(`<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">`)
	for _, id := range ids {
		d := t.byID[id]
		raw, _ := json.Marshal(d)
		fmt.Fprintf(&buf, `<style id="%s">%s</style>`, xmlEscape(id), xmlEscape(string(raw)))
	}
	buf.WriteString(`</styleSheet>`)
	return buf.Bytes()
}

func parseStyles(raw []byte) (*StyleTable, error) {
	var doc struct {
		XMLName xml.Name `xml:"styleSheet"`
		Style   []struct {
			ID    string `xml:"id,attr"`
			Value string `xml:",chardata"`
		} `xml:"style"`
	}
	t := NewStyleTable()
	if len(raw) == 0 {
		return t, nil
	}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return t, err
	}
	for _, s := range doc.Style {
		var d Descriptor
		if err := json.Unmarshal([]byte(s.Value), &d); err == nil {
			t.byID[s.ID] = d
		}
	}
	return t, nil
}
