package calculator

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectes/internal/model"
	"collectes/internal/store"
	"collectes/internal/taxonomy"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func normalize(row int, date time.Time, location, category, flux, orientation string, kg float64) model.NormalizedRecord {
	return model.Normalize(model.RawRecord{
		Date:           date,
		LocationRaw:    location,
		CategoryRaw:    category,
		FluxRaw:        flux,
		OrientationRaw: orientation,
		WeightKg:       kg,
		SourceFile:     "collectes.xlsx",
		SourceSheet:    "Mars",
		RowIndex:       row,
	})
}

func scenario() []model.NormalizedRecord {
	return []model.NormalizedRecord{
		normalize(2, day(5), "Dech. La Pépiniere", "4.MEUBLES", "MEUBLES", "", 120),
		normalize(3, day(6), "Dech. Sanssac", "EVACUATION DECHETS", "", "DECHETS ULTIMES", 300),
		normalize(4, day(7), "", "4.LIVRES", "", "MASSICOT", 50),
	}
}

func TestAggregate_EndToEndScenario(t *testing.T) {
	t.Parallel()

	records := scenario()
	require.Equal(t, taxonomy.Meubles, records[0].Category)
	require.Equal(t, taxonomy.DechetsUltimes, records[1].Category)
	require.Equal(t, taxonomy.Massicot, records[2].Category)
	require.Equal(t, taxonomy.SitePepiniere, records[2].Site)

	s := Aggregate(records)
	assert.Equal(t, 470.0, s.Grand.Total)
	assert.Equal(t, 2025, s.Year)
	assert.Equal(t, []int{3}, s.Months)
	assert.Equal(t, []taxonomy.Site{taxonomy.SitePepiniere, taxonomy.SiteSanssac}, s.SiteNames())
	assert.Equal(t, 3, s.Records)
	assert.True(t, s.FirstDate.Equal(day(5)))
	assert.True(t, s.LastDate.Equal(day(7)))

	pep := s.Site(taxonomy.SitePepiniere)
	require.NotNil(t, pep)
	assert.Equal(t, 170.0, pep.Total.Total)
	assert.Equal(t, 120.0, pep.Total.TotalExclTerminal)
	assert.Equal(t, 50.0, pep.Month(3).Category(taxonomy.Massicot))

	san := s.Site(taxonomy.SiteSanssac)
	require.NotNil(t, san)
	assert.Equal(t, 300.0, san.Total.Total)
	// DECHETS ULTIMES 计入 TOTAL，也不从“不含终端流向”中扣除
	assert.Equal(t, 300.0, san.Total.TotalExclTerminal)
	assert.Equal(t, 300.0, san.Total.DechetsUltimes)
	assert.Equal(t, 0.0, san.Month(1).Total)
}

func TestAggregate_GrandEqualsSumOfSites(t *testing.T) {
	t.Parallel()

	var records []model.NormalizedRecord
	locations := []string{"Dech. Polignac", "Yssingeaux", "Dech. St Germain", "Monistrol", "Bas en Basset"}
	weights := []float64{12.3, 0.7, 45.25, 3.1, 8.85, 0.1, 0.2}
	for i := 0; i < 200; i++ {
		records = append(records, normalize(i+2, time.Date(2025, time.Month(i%12+1), i%28+1, 0, 0, 0, 0, time.UTC),
			locations[i%len(locations)], "4.CHINE", "", "", weights[i%len(weights)]))
	}

	s := Aggregate(records)
	var sites Mass
	for _, ss := range s.Sites {
		sites = sites.Add(MassOf(ss.Total.Total))
	}
	var raw Mass
	for _, r := range records {
		raw = raw.Add(MassOf(r.WeightKg))
	}
	assert.Equal(t, 0, sites.Cmp(MassOf(s.Grand.Total)))
	assert.Equal(t, 0, raw.Cmp(MassOf(s.Grand.Total)))
	assert.Len(t, s.Months, 12)
}

func TestAggregate_PercentagesSumToOne(t *testing.T) {
	t.Parallel()

	records := append(scenario(),
		normalize(5, day(8), "Dech. Sanssac", "4.MEUBLES", "", "", 80),
		normalize(6, day(9), "Polignac", "4.MEUBLES", "", "", 33.3),
	)
	s := Aggregate(records)

	for _, c := range taxonomy.AllCategories() {
		var sum float64
		for _, ss := range s.Sites {
			p := ss.Percentages[c]
			assert.False(t, math.IsNaN(p), "category %s site %s", c, ss.Site)
			sum += p
		}
		if s.Grand.Category(c) == 0 {
			assert.Equal(t, 0.0, sum, "category %s", c)
			continue
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "category %s", c)
	}

	var share float64
	for _, ss := range s.Sites {
		share += ss.Share
	}
	assert.InDelta(t, 1.0, share, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	t.Parallel()

	s := Aggregate(nil)
	assert.True(t, s.Empty())
	assert.Equal(t, 0.0, s.Grand.Total)
	assert.Empty(t, s.Sites)
}

func TestBuildCells(t *testing.T) {
	t.Parallel()

	records := append(scenario(), normalize(5, day(20), "Pépinière", "MEUBLES", "", "", 30))
	got := BuildCells(records)
	want := []model.AggregateCell{
		{Year: 2025, Month: 3, Site: taxonomy.SitePepiniere, Category: taxonomy.Massicot, WeightKg: 50, Rows: 1},
		{Year: 2025, Month: 3, Site: taxonomy.SitePepiniere, Category: taxonomy.Meubles, WeightKg: 150, Rows: 2},
		{Year: 2025, Month: 3, Site: taxonomy.SiteSanssac, Category: taxonomy.DechetsUltimes, WeightKg: 300, Rows: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnose_InvalidDateExclusion(t *testing.T) {
	t.Parallel()

	records := scenario()
	excluded := []model.ExcludedRow{
		{Reason: model.ExcludedInvalidDate, WeightKg: 40, WeightValid: true},
		{Reason: model.ExcludedInvalidDate, WeightKg: 2.5, WeightValid: true},
		{Reason: model.ExcludedInvalidDate},
		{Reason: model.ExcludedInvalidWeight, Year: 2025},
	}
	s := Aggregate(records)
	d := Diagnose(records, excluded, s.Grand.Total)

	assert.True(t, d.Balanced)
	assert.Equal(t, 512.5, d.RawTotalKg)
	assert.Equal(t, 42.5, d.ExcludedByDateKg)
	assert.Equal(t, 3, d.ExcludedByDateRows)
	assert.Equal(t, 1, d.ExcludedByWeightRows)
	assert.Equal(t, 470.0, d.AfterDateFilterKg)
	assert.Equal(t, 470.0, d.GrandTotalKg)
	assert.Equal(t, 350.0, d.TerminalKg)
	assert.Equal(t, 42.5, d.RawVsGrandGapKg())

	want := []CauseBreakdown{
		{Cause: CauseInvalidDate, WeightKg: 42.5, Rows: 3},
		{Cause: CauseInvalidWeight, Rows: 1},
		{Cause: CauseAutres, WeightKg: 0, Rows: 0},
	}
	if diff := cmp.Diff(want, d.Causes); diff != "" {
		t.Fatalf("causes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiagnose_AutresAttribution(t *testing.T) {
	t.Parallel()

	records := append(scenario(),
		normalize(5, day(10), "Polignac", "BIBELOTS INCONNUS", "X", "", 12),
		normalize(6, day(11), "Polignac", "BIBELOTS INCONNUS", "X", "", 8),
		normalize(7, day(12), "Polignac", "", "", "", 1),
	)
	d := Diagnose(records, nil, Aggregate(records).Grand.Total)

	assert.True(t, d.Balanced)
	assert.Equal(t, 21.0, d.AutresKg)
	assert.Equal(t, 3, d.AutresRows)
	assert.Equal(t, 470.0, d.AfterMappingKg)
	require.Len(t, d.AutresCombos, 2)
	assert.Equal(t, "BIBELOTS INCONNUS", d.AutresCombos[0].Category)
	assert.Equal(t, 20.0, d.AutresCombos[0].WeightKg)
	assert.Equal(t, 2, d.AutresCombos[0].Rows)
}

func TestDiagnose_DetectsGap(t *testing.T) {
	t.Parallel()

	records := scenario()
	d := Diagnose(records, nil, 420)
	assert.False(t, d.Balanced)
	assert.Equal(t, 50.0, d.GapKg)
}

func TestMass_ExactDecimalSums(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, SumKg(0.1, 0.2).Cmp(MassOf(0.3)))
	assert.Equal(t, "0.3", SumKg(0.1, 0.2).String())
	assert.True(t, MassOf(5).Sub(MassOf(5)).IsZero())
	assert.Equal(t, 1.5, MassOf(-1.5).Abs().Float64())
}

func newTestCalculator(t *testing.T) (*Calculator, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "collectes.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewCalculator(st, nil), st
}

func TestCalculator_RebuildAndTotals(t *testing.T) {
	t.Parallel()
	calc, st := newTestCalculator(t)

	excluded := []model.ExcludedRow{{SourceFile: "collectes.xlsx", SourceSheet: "Mars", RowIndex: 9, Reason: model.ExcludedInvalidDate, WeightKg: 40, WeightValid: true, Year: 2025}}
	_, err := st.ReplaceFileImport(&model.ImportFile{Filename: "collectes.xlsx", FileHash: "h"}, scenario(), excluded)
	require.NoError(t, err)

	res, err := calc.Rebuild(2025)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Cells)
	assert.Equal(t, 470.0, res.TotalKg)

	// 重建幂等
	_, err = calc.Rebuild(2025)
	require.NoError(t, err)
	cells, err := st.ListAggregates(2025)
	require.NoError(t, err)
	assert.Len(t, cells, 3)

	totals, err := calc.Totals(2025)
	require.NoError(t, err)
	assert.Equal(t, 470.0, totals.GrandTotalKg)
	require.Len(t, totals.PerSite, 2)
	assert.Equal(t, 170.0, totals.PerSite[0].Total.Total)
	assert.True(t, totals.Diagnostics.Balanced)
	assert.Equal(t, 40.0, totals.Diagnostics.ExcludedByDateKg)
	assert.NotNil(t, totals.LastRebuild)

	summary, err := calc.Summary(2025)
	require.NoError(t, err)
	assert.Equal(t, totals.GrandTotalKg, summary.Grand.Total)
}

func TestCalculator_StaleAggregatesAreFlagged(t *testing.T) {
	t.Parallel()
	calc, st := newTestCalculator(t)

	_, err := st.ReplaceFileImport(&model.ImportFile{Filename: "a.xlsx", FileHash: "a"}, scenario()[:1], nil)
	require.NoError(t, err)
	_, err = calc.Rebuild(2025)
	require.NoError(t, err)

	// 新数据写入后未重建
	_, err = st.ReplaceFileImport(&model.ImportFile{Filename: "b.xlsx", FileHash: "b"}, scenario()[1:], nil)
	require.NoError(t, err)

	d, err := calc.Diagnostics(2025)
	require.NoError(t, err)
	assert.False(t, d.Balanced)
	assert.Equal(t, 350.0, d.GapKg)
}

func TestCalculator_NoData(t *testing.T) {
	t.Parallel()
	calc, _ := newTestCalculator(t)

	_, err := calc.Totals(2030)
	assert.True(t, errors.Is(err, ErrNoData))
	_, err = calc.Summary(2030)
	assert.True(t, errors.Is(err, ErrNoData))
}
