package parser

import "testing"

func TestSheetRecognizer_ExactHeader(t *testing.T) {
	t.Parallel()

	r := NewSheetRecognizer()
	res := r.Recognize("Collectes", [][]string{
		{"Date", "Lieu collecte", "Catégorie", "Sous Catégorie", "Flux", "Orientation", "Poids", "Commentaire"},
	})
	if res.SheetType != SheetTypeCollectes {
		t.Fatalf("unexpected type: %s missing=%v", res.SheetType, res.Missing)
	}
	if res.Columns[ColWeight] != 6 || res.Columns[ColOrientation] != 5 {
		t.Fatalf("unexpected columns: %v", res.Columns)
	}
	if res.HeaderRow != 1 || res.Confidence != 1 {
		t.Fatalf("unexpected header row/conf: %d %.2f", res.HeaderRow, res.Confidence)
	}
}

func TestSheetRecognizer_CaseInsensitiveAndTitleRow(t *testing.T) {
	t.Parallel()

	r := NewSheetRecognizer()
	res := r.Recognize("Export", [][]string{
		{"EXPORT COLLECTES 2025"},
		{},
		{" poids ", "DATE", "lieu collecte", "catégorie", "sous catégorie", "flux"},
	})
	if res.SheetType != SheetTypeCollectes {
		t.Fatalf("unexpected type: %s missing=%v", res.SheetType, res.Missing)
	}
	if res.HeaderRow != 3 {
		t.Fatalf("header row: %d", res.HeaderRow)
	}
	if _, ok := res.Columns[ColOrientation]; ok {
		t.Fatalf("orientation should be absent")
	}
	if res.Columns[ColWeight] != 0 || res.Columns[ColFlux] != 5 {
		t.Fatalf("unexpected columns: %v", res.Columns)
	}
}

func TestSheetRecognizer_MissingColumns(t *testing.T) {
	t.Parallel()

	r := NewSheetRecognizer()
	res := r.Recognize("Synthese", [][]string{{"Date", "Lieu collecte", "Poids"}})
	if res.SheetType != SheetTypeUnknown {
		t.Fatalf("unexpected type: %s", res.SheetType)
	}
	if len(res.Missing) != 3 {
		t.Fatalf("missing: %v", res.Missing)
	}

	if got := r.Recognize("Vide", nil); got.SheetType != SheetTypeEmpty {
		t.Fatalf("empty sheet type: %s", got.SheetType)
	}
}
