package workbook

import "testing"

func TestParseA1RoundTrips(t *testing.T) {
	cases := map[string]Address{
		"A1":   {Col: 1, Row: 1},
		"B2":   {Col: 2, Row: 2},
		"AA17": {Col: 27, Row: 17},
		"Z1":   {Col: 26, Row: 1},
	}
	for in, want := range cases {
		got, err := ParseA1(in)
		if err != nil {
			t.Fatalf("ParseA1(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseA1(%q) = %+v, want %+v", in, got, want)
		}
		if s := got.String(); s != in {
			t.Fatalf("Address{%+v}.String() = %q, want %q", got, s, in)
		}
	}
}

func TestParseA1RejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "1A", "A", "A0", "A-1", "!!"} {
		if _, err := ParseA1(in); err == nil {
			t.Fatalf("expected ParseA1(%q) to fail", in)
		}
	}
}

func TestParseRangeNormalizesCorners(t *testing.T) {
	start, end, err := ParseRange("B2:A1")
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if start != (Address{Col: 1, Row: 1}) || end != (Address{Col: 2, Row: 2}) {
		t.Fatalf("expected corners normalized to top-left/bottom-right, got start=%+v end=%+v", start, end)
	}
}

func TestAddressesInRowMajorOrder(t *testing.T) {
	start, end, err := ParseRange("A1:B2")
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	got := AddressesIn(start, end)
	want := []Address{{1, 1}, {2, 1}, {1, 2}, {2, 2}}
	if len(got) != len(want) {
		t.Fatalf("expected %d addresses, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("address %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAddressLess(t *testing.T) {
	a := Address{Col: 5, Row: 1}
	b := Address{Col: 1, Row: 2}
	if !a.Less(b) {
		t.Fatal("expected row to take priority over column in ordering")
	}
	if b.Less(a) {
		t.Fatal("Less must not be symmetric here")
	}
}
