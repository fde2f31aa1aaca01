package insights

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"collectes/internal/model"
	"collectes/internal/store"
	"collectes/internal/taxonomy"
)

type row struct {
	date        string
	site        taxonomy.Site
	location    string
	category    string
	sub         string
	flux        string
	orientation string
	kg          float64
}

func records(rows ...row) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, 0, len(rows))
	for i, r := range rows {
		d, err := time.Parse("2006-01-02", r.date)
		if err != nil {
			panic(err)
		}
		out = append(out, model.NormalizedRecord{
			RawRecord: model.RawRecord{
				Date:           d,
				LocationRaw:    r.location,
				CategoryRaw:    r.category,
				SubCategoryRaw: r.sub,
				FluxRaw:        r.flux,
				OrientationRaw: r.orientation,
				WeightKg:       r.kg,
				SourceFile:     "mars.xlsx",
				SourceSheet:    "Mars",
				RowIndex:       i + 2,
			},
			Site:     r.site,
			Category: taxonomy.Chine,
			Year:     d.Year(),
			Month:    int(d.Month()),
		})
	}
	return out
}

func sample() []model.NormalizedRecord {
	return records(
		row{"2025-03-03", taxonomy.SitePepiniere, "Pépinière", "4.CHINE", "Assiettes", "CHINE", "", 10},
		row{"2025-03-03", taxonomy.SitePepiniere, "Pépinière", "4.CHINE", "Assiettes", "CHINE", "REEMPLOI", 5},
		row{"2025-03-05", taxonomy.SiteSanssac, "Sanssac", "4.LIVRES", "", "LIVRES", "MASSICOT", 40},
		row{"2025-03-10", taxonomy.SitePepiniere, "Pépinière", "4.MEUBLES", "Chaises", "MEUBLES", "", 30},
	)
}

func TestTimeSeries_ZeroFilled(t *testing.T) {
	t.Parallel()

	got := TimeSeries(sample(), Week)
	want := []SeriesPoint{
		{Period: "2025-W10", Site: taxonomy.SitePepiniere, TotalKg: 15},
		{Period: "2025-W10", Site: taxonomy.SiteSanssac, TotalKg: 40},
		{Period: "2025-W11", Site: taxonomy.SitePepiniere, TotalKg: 30},
		{Period: "2025-W11", Site: taxonomy.SiteSanssac, TotalKg: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("week series mismatch (-want +got):\n%s", diff)
	}

	days := TimeSeries(sample(), Day)
	if len(days) != 8*2 {
		t.Fatalf("expected 8 days x 2 sites, got %d", len(days))
	}
	if days[2].Period != "2025-03-04" || days[2].TotalKg != 0 {
		t.Fatalf("zero fill: %+v", days[2])
	}

	months := TimeSeries(sample(), Month)
	if len(months) != 2 || months[0].Period != "2025-03" || months[0].TotalKg != 45 {
		t.Fatalf("month series: %+v", months)
	}

	if got := TimeSeries(nil, Day); len(got) != 0 {
		t.Fatalf("expected empty series, got %+v", got)
	}
}

func TestParseGranularity(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Granularity{"": Day, "DAY": Day, " week ": Week, "month": Month} {
		got, err := ParseGranularity(in)
		if err != nil || got != want {
			t.Fatalf("ParseGranularity(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseGranularity("year"); !errors.Is(err, ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}
}

func TestCategoryAndFluxStats(t *testing.T) {
	t.Parallel()

	cats := CategoryStats(sample())
	wantCats := []CategoryStat{
		{Category: "4.LIVRES", SubCategory: "", TotalKg: 40, Rows: 1},
		{Category: "4.MEUBLES", SubCategory: "Chaises", TotalKg: 30, Rows: 1},
		{Category: "4.CHINE", SubCategory: "Assiettes", TotalKg: 15, Rows: 2},
	}
	if diff := cmp.Diff(wantCats, cats); diff != "" {
		t.Fatalf("category stats mismatch (-want +got):\n%s", diff)
	}

	matrix := FluxOrientationMatrix(sample())
	wantMatrix := []FluxOrientation{
		{Flux: "LIVRES", Orientation: "MASSICOT", TotalKg: 40, Rows: 1},
		{Flux: "MEUBLES", Orientation: NotDefined, TotalKg: 30, Rows: 1},
		{Flux: "CHINE", Orientation: NotDefined, TotalKg: 10, Rows: 1},
		{Flux: "CHINE", Orientation: "REEMPLOI", TotalKg: 5, Rows: 1},
	}
	if diff := cmp.Diff(wantMatrix, matrix); diff != "" {
		t.Fatalf("flux matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestAnomaliesLimit(t *testing.T) {
	t.Parallel()

	got := Anomalies(sample(), 2)
	want := []Anomaly{
		{Date: "2025-03-05", Site: taxonomy.SiteSanssac, Flux: "LIVRES", TotalKg: 40, Rows: 1},
		{Date: "2025-03-10", Site: taxonomy.SitePepiniere, Flux: "MEUBLES", TotalKg: 30, Rows: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("anomalies mismatch (-want +got):\n%s", diff)
	}
}

func TestFindMissingDays(t *testing.T) {
	t.Parallel()

	got := FindMissingDays(sample())
	want := []MissingDays{
		{Site: taxonomy.SitePepiniere, Days: []string{"2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09"}},
		{Site: taxonomy.SiteSanssac, Days: []string{"2025-03-03", "2025-03-04", "2025-03-06", "2025-03-07", "2025-03-08", "2025-03-09", "2025-03-10"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("missing days mismatch (-want +got):\n%s", diff)
	}
}

func TestSiteComparison(t *testing.T) {
	t.Parallel()

	got := SiteComparison(sample())
	want := []SiteDelta{
		{Site: taxonomy.SitePepiniere, TotalKg: 45, DeltaVsAvg: 2.5},
		{Site: taxonomy.SiteSanssac, TotalKg: 40, DeltaVsAvg: -2.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("comparison mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicates(t *testing.T) {
	t.Parallel()

	got := Duplicates(sample(), 0)
	if len(got) != 1 {
		t.Fatalf("expected one duplicate group, got %+v", got)
	}
	g := got[0]
	if g.Count != 2 || g.TotalKg != 15 || g.Date != "2025-03-03" || g.Flux != "CHINE" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if g.Rows[0].RowIndex != 2 || g.Rows[1].Orientation != "REEMPLOI" {
		t.Fatalf("unexpected rows: %+v", g.Rows)
	}

	// 不同文件中的相同记录不算重复
	recs := sample()
	recs[1].SourceFile = "avril.xlsx"
	if got := Duplicates(recs, 0); len(got) != 0 {
		t.Fatalf("expected no duplicates across files, got %+v", got)
	}
}

func TestService_Compute(t *testing.T) {
	t.Parallel()

	st, err := store.New(filepath.Join(t.TempDir(), "collectes.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if _, err := st.ReplaceFileImport(&model.ImportFile{Filename: "mars.xlsx", FileHash: "h"}, sample(), nil); err != nil {
		t.Fatalf("import: %v", err)
	}

	svc := NewService(st, nil)
	for _, kind := range Kinds {
		if _, err := svc.Compute(kind, Query{Year: 2025}); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}

	res, err := svc.Compute(KindComparison, Query{Year: 2025})
	if err != nil {
		t.Fatalf("comparison: %v", err)
	}
	if deltas := res.([]SiteDelta); len(deltas) != 2 || deltas[0].TotalKg != 45 {
		t.Fatalf("comparison: %+v", deltas)
	}

	res, err = svc.Compute(KindTimeSeries, Query{Year: 2024})
	if err != nil || len(res.([]SeriesPoint)) != 0 {
		t.Fatalf("empty year: %+v err=%v", res, err)
	}

	if _, err := svc.Compute("bogus", Query{Year: 2025}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	dups, err := svc.Duplicates(2025, 5)
	if err != nil || len(dups) != 1 {
		t.Fatalf("duplicates: %+v err=%v", dups, err)
	}
}
