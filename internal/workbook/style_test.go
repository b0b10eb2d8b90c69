package workbook

import "testing"

func boolPtr(b bool) *bool       { return &b }
func strPtr(s string) *string    { return &s }

func TestStableIDIsDeterministicAndContentSensitive(t *testing.T) {
	d1 := Descriptor{Font: &FontStyle{Bold: boolPtr(true)}}
	d2 := Descriptor{Font: &FontStyle{Bold: boolPtr(true)}}
	if d1.StableID() != d2.StableID() {
		t.Fatal("expected two equivalent descriptors to produce the same stable id")
	}

	d3 := Descriptor{Font: &FontStyle{Bold: boolPtr(false)}}
	if d1.StableID() == d3.StableID() {
		t.Fatal("expected a different descriptor to produce a different stable id")
	}
}

func TestApplyMerge(t *testing.T) {
	base := Descriptor{Font: &FontStyle{Bold: boolPtr(true), Color: strPtr("red")}}
	patch := Descriptor{Font: &FontStyle{Color: strPtr("blue")}}

	out, err := Apply(base, patch, OpMerge)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Font == nil || out.Font.Bold == nil || !*out.Font.Bold {
		t.Fatalf("expected merge to preserve bold from base, got %+v", out.Font)
	}
	if out.Font.Color == nil || *out.Font.Color != "blue" {
		t.Fatalf("expected merge to overwrite color from patch, got %+v", out.Font)
	}
}

func TestApplySetReplacesEntirely(t *testing.T) {
	base := Descriptor{Font: &FontStyle{Bold: boolPtr(true), Color: strPtr("red")}}
	patch := Descriptor{Font: &FontStyle{Color: strPtr("blue")}}

	out, err := Apply(base, patch, OpSet)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.Font.Bold != nil {
		t.Fatalf("expected set to discard fields absent from patch, got %+v", out.Font)
	}
	if out.Font.Color == nil || *out.Font.Color != "blue" {
		t.Fatalf("expected set to take patch's color, got %+v", out.Font)
	}
}

func TestApplyClearResetsToZeroValue(t *testing.T) {
	base := Descriptor{Font: &FontStyle{Bold: boolPtr(true)}}
	out, err := Apply(base, Descriptor{}, OpClear)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != (Descriptor{}) {
		t.Fatalf("expected clear to reset to the zero descriptor, got %+v", out)
	}
}

func TestApplyRejectsUnknownMode(t *testing.T) {
	if _, err := Apply(Descriptor{}, Descriptor{}, OpMode("bogus")); err == nil {
		t.Fatal("expected an unknown op_mode to be rejected")
	}
}

func TestStyleTablePutAndGet(t *testing.T) {
	tbl := NewStyleTable()
	if id := tbl.Put(Descriptor{}); id != "" {
		t.Fatalf("expected putting the zero descriptor to return an empty id, got %q", id)
	}

	d := Descriptor{Font: &FontStyle{Bold: boolPtr(true)}}
	id := tbl.Put(d)
	if id == "" {
		t.Fatal("expected a non-empty id for a non-zero descriptor")
	}
	got := tbl.Get(id)
	if got.Font == nil || got.Font.Bold == nil || !*got.Font.Bold {
		t.Fatalf("expected Get to return the stored descriptor, got %+v", got)
	}

	if empty := tbl.Get(""); empty != (Descriptor{}) {
		t.Fatalf("expected Get(\"\") to return the zero descriptor, got %+v", empty)
	}
	if unknown := tbl.Get("does-not-exist"); unknown != (Descriptor{}) {
		t.Fatalf("expected Get of an unknown id to return the zero descriptor, got %+v", unknown)
	}
}

func TestStyleTableXMLRoundTrip(t *testing.T) {
	tbl := NewStyleTable()
	d := Descriptor{Font: &FontStyle{Bold: boolPtr(true)}, NumberFormat: strPtr("0.00")}
	id := tbl.Put(d)

	raw := tbl.xml()
	reparsed, err := parseStyles(raw)
	if err != nil {
		t.Fatalf("parseStyles: %v", err)
	}
	got := reparsed.Get(id)
	if got.Font == nil || got.Font.Bold == nil || !*got.Font.Bold {
		t.Fatalf("expected the reparsed style table to preserve font.bold, got %+v", got)
	}
	if got.NumberFormat == nil || *got.NumberFormat != "0.00" {
		t.Fatalf("expected the reparsed style table to preserve number_format, got %+v", got)
	}
}
