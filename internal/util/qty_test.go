package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "unit adjacent", input: "Sunflower Oil 5L 12 TIN", want: 12},
		{name: "decimal dot", input: "Olive Oil Pomace 4.5 CAN", want: 4.5},
		{name: "decimal comma", input: "Canola Oil 2,5 CTN", want: 2.5},
		{name: "thousand with space", input: "Napkins 1 000 PCS", want: 1000},
		{name: "bare trailing number", input: "FRYING OIL BUNGE PRO F10 20", want: 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if *parsed.Qty != tc.want {
				t.Fatalf("got %v want %v", *parsed.Qty, tc.want)
			}
		})
	}
}

func TestParseQtyUnit(t *testing.T) {
	parsed := ParseQty("RAPESEED OIL 4 PKT")
	if parsed.Unit == nil || *parsed.Unit != "PKT" {
		t.Fatalf("unit=%v", parsed.Unit)
	}
}

func TestNormalizeName(t *testing.T) {
	got := NormalizeName(`  "Frying oil"  Bunge×Pro,  F10 `)
	want := "FRYING OIL BUNGEXPRO F10"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
