package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"collectes/internal/model"
	"collectes/internal/testutil"
)

func TestParseFile_ValidAndExcludedRows(t *testing.T) {
	t.Parallel()

	path := testutil.WriteWorkbook(t, "collectes.xlsx",
		testutil.Sheet{Name: "Mars", Rows: [][]any{
			testutil.Header,
			testutil.Row("05/03/2025", "Dech. La Pépiniere", "4.MEUBLES", "", "MEUBLES", "", 120),
			testutil.Row(time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC), "Dech. Sanssac", "EVACUATION DECHETS", "", "", "DECHETS ULTIMES", "300"),
			testutil.Row("pas une date", "Dech. Sanssac", "4.LIVRES", "", "", "", 40),
			testutil.Row("07/03/2025", "", "4.LIVRES", "", "", "MASSICOT", "n/a"),
			testutil.Row("", "", "", "", "", "", ""),
			testutil.Row("07/03/2025", "", "4.LIVRES", "", "", "MASSICOT", "50"),
		}},
		testutil.Sheet{Name: "Notes", Rows: [][]any{{"Commentaire"}, {"rien"}}},
	)

	wb, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if wb.Filename != "collectes.xlsx" || len(wb.Sheets) != 2 {
		t.Fatalf("unexpected workbook: %s %d", wb.Filename, len(wb.Sheets))
	}

	mars := wb.Sheets[0]
	if mars.Status != StatusImported || mars.ImportedRows != 3 || mars.ErrorRows != 2 || mars.BlankRows != 1 {
		t.Fatalf("unexpected sheet result: %+v", mars)
	}
	if mars.ImportedKg != 470 {
		t.Fatalf("imported kg: %v", mars.ImportedKg)
	}

	first := mars.Records[0]
	if first.RowIndex != 2 || first.SourceSheet != "Mars" || first.SourceFile != "collectes.xlsx" {
		t.Fatalf("provenance: %+v", first)
	}
	if !first.Date.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date: %s", first.Date)
	}
	if mars.Records[1].Date.Day() != 6 || mars.Records[1].WeightKg != 300 {
		t.Fatalf("serial date row: %+v", mars.Records[1])
	}

	byReason := map[model.ExclusionReason]model.ExcludedRow{}
	for _, ex := range mars.Excluded {
		byReason[ex.Reason] = ex
	}
	badDate := byReason[model.ExcludedInvalidDate]
	if badDate.RowIndex != 4 || !badDate.WeightValid || badDate.WeightKg != 40 {
		t.Fatalf("invalid date row: %+v", badDate)
	}
	badWeight := byReason[model.ExcludedInvalidWeight]
	if badWeight.RowIndex != 5 || badWeight.WeightValid || badWeight.Year != 2025 {
		t.Fatalf("invalid weight row: %+v", badWeight)
	}

	notes := wb.Sheets[1]
	if notes.Status != StatusSkipped || len(notes.Missing) == 0 {
		t.Fatalf("notes sheet should be skipped: %+v", notes)
	}
	if !strings.Contains(notes.Errors[0], ErrMissingColumns.Error()) {
		t.Fatalf("missing columns error: %v", notes.Errors)
	}
}

func TestParseFile_Unreadable(t *testing.T) {
	t.Parallel()

	_, err := ParseFile("does-not-exist.xlsx")
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, ErrMissingColumns) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestParseSheet_NoValidRows(t *testing.T) {
	t.Parallel()

	path := testutil.WriteWorkbook(t, "vide.xlsx", testutil.Sheet{Name: "S", Rows: [][]any{
		testutil.Header,
		testutil.Row("??", "Polignac", "4.CHINE", "", "", "", 10),
	}})

	wb, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := wb.Sheets[0]
	if s.Status != StatusSkipped || s.ErrorRows != 1 || len(wb.Excluded()) != 1 || len(wb.Records()) != 0 {
		t.Fatalf("unexpected: %+v", s)
	}
}
