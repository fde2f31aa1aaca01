package parser

import (
	"testing"
	"time"
)

func TestParseDate_Formats(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-03-05", "05/03/2025", "5/3/2025", "05/03/25", "05-03-2025", "05.03.2025", "2025/03/05", "45721", " 45721 "} {
		got, ok := ParseDate(raw)
		if !ok {
			t.Fatalf("%q: expected ok", raw)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %s want %s", raw, got, want)
		}
	}
}

func TestParseDate_WithTime(t *testing.T) {
	t.Parallel()

	got, ok := ParseDate("45721.5")
	if !ok || got.Hour() != 12 || got.Day() != 5 {
		t.Fatalf("serial with time: %s ok=%v", got, ok)
	}
	got, ok = ParseDate("05/03/2025 14:30")
	if !ok || got.Hour() != 14 || got.Minute() != 30 {
		t.Fatalf("text with time: %s ok=%v", got, ok)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "pas une date", "32/01/2025", "NaN", "-3", "2025-13-01"} {
		if got, ok := ParseDate(raw); ok {
			t.Fatalf("%q: expected invalid, got %s", raw, got)
		}
	}
}

func TestParseWeight(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"120":        120,
		"12,5":       12.5,
		"12.5":       12.5,
		"1 234,5":    1234.5,
		"1.234,5":    1234.5,
		"1,234.5":    1234.5,
		"1,234,567":  1234567,
		"35 kg":      35,
		"0":          0,
		"1 200": 1200,
	}
	for raw, want := range cases {
		got, ok := ParseWeight(raw)
		if !ok || got != want {
			t.Fatalf("%q: got %v ok=%v want %v", raw, got, ok, want)
		}
	}

	for _, raw := range []string{"", "abc", "-5", "NaN", "Inf", "kg"} {
		if got, ok := ParseWeight(raw); ok {
			t.Fatalf("%q: expected invalid, got %v", raw, got)
		}
	}
}

func TestNormalizeColumnName(t *testing.T) {
	t.Parallel()

	if got := NormalizeColumnName("  Lieu\n  collecte "); got != "Lieu collecte" {
		t.Fatalf("got %q", got)
	}
}
