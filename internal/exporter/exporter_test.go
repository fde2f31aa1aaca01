package exporter

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"collectes/internal/calculator"
	"collectes/internal/model"
	"collectes/internal/store"
)

func raw(date, location, category, orientation string, kg float64) model.NormalizedRecord {
	d, err := time.Parse("02/01/2006", date)
	if err != nil {
		panic(err)
	}
	return model.Normalize(model.RawRecord{
		Date:           d,
		DateRaw:        date,
		LocationRaw:    location,
		CategoryRaw:    category,
		OrientationRaw: orientation,
		WeightKg:       kg,
		SourceFile:     "mars.xlsx",
		SourceSheet:    "Mars",
	})
}

// 两个站点：PEPINIERE 区块 3-16 行，SANSSAC 区块 18-31 行，总计 34 行，百分比 36-37 行
func scenarioSummary() *calculator.Summary {
	return calculator.Aggregate([]model.NormalizedRecord{
		raw("05/03/2025", "Dech. La Pépiniere", "4.MEUBLES", "", 120),
		raw("06/03/2025", "Dech. Sanssac", "EVACUATION DECHETS", "DECHETS ULTIMES", 300),
		raw("07/03/2025", "", "4.LIVRES", "MASSICOT", 50),
	})
}

func cellFloat(t *testing.T, f *excelize.File, cell string) float64 {
	t.Helper()
	v, err := f.GetCellValue(SheetName, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	n, err := strconv.ParseFloat(v, 64)
	require.NoError(t, err, "cell %s = %q", cell, v)
	return n
}

func TestSynthesize_LayoutAndVerify(t *testing.T) {
	t.Parallel()

	s := scenarioSummary()
	f, err := NewExporter(nil, nil).Synthesize(s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	title, err := f.GetCellValue(SheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "COLLECTES DECHETTERIES 05/03/2025 - 07/03/2025", title)

	for cell, want := range map[string]string{
		"A3":  "PÉPINIÈRE",
		"A6":  "MARS",
		"A16": "Total",
		"A18": "SANSSAC",
		"A34": "TOTAL",
		"A36": "PEP",
		"A37": "SAN",
		"E40": "TOTAL COLLECTES",
		"E42": "MASSICOT",
		"E43": "DEMANTELEMENT",
		"E44": "DECHETS ULTIMES",
		"T3":  "TOTAL",
		"V3":  "DECHETS ULTIMES",
	} {
		got, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	assert.Equal(t, 470.0, cellFloat(t, f, "T34"))
	assert.Equal(t, 420.0, cellFloat(t, f, "U34"))
	assert.Equal(t, 300.0, cellFloat(t, f, "V34"))
	assert.Equal(t, 170.0, cellFloat(t, f, "T16"))
	assert.Equal(t, 120.0, cellFloat(t, f, "U16"))
	assert.Equal(t, 50.0, cellFloat(t, f, "G42"))
	assert.Equal(t, 2.0, cellFloat(t, f, "G40"))
	assert.Equal(t, 1.0, cellFloat(t, f, "B36"))
	assert.InDelta(t, 170.0/470.0, cellFloat(t, f, "T36"), Tolerance)

	for _, cell := range []string{"T6", "B16", "T16", "B34", "T34", "V34", "B36", "G42"} {
		formula, err := f.GetCellFormula(SheetName, cell)
		require.NoError(t, err)
		assert.NotEmpty(t, formula, cell)
	}
	formula, err := f.GetCellFormula(SheetName, "T34")
	require.NoError(t, err)
	assert.Equal(t, "SUM(B34:S34)+V34", formula)

	mismatches, err := Verify(f, s)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerify_DetectsTampering(t *testing.T) {
	t.Parallel()

	s := scenarioSummary()
	f, err := NewExporter(nil, nil).Synthesize(s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	// 覆盖总计单元格会清除公式
	require.NoError(t, f.SetCellFloat(SheetName, "T34", 470, -1, 64))
	// 改动明细值后公式结果不再等于计算结果
	require.NoError(t, f.SetCellFloat(SheetName, "B6", 999, -1, 64))

	mismatches, err := Verify(f, s)
	require.NoError(t, err)

	reasons := map[string]string{}
	for _, m := range mismatches {
		reasons[m.Cell] = m.Reason
	}
	assert.Equal(t, "missing formula", reasons["T34"])
	assert.Equal(t, "formula result differs", reasons["B16"])
	assert.Equal(t, "formula result differs", reasons["T6"])
}

func TestSynthesize_ManySitesAndEmptyPercentages(t *testing.T) {
	t.Parallel()

	s := calculator.Aggregate([]model.NormalizedRecord{
		raw("02/01/2025", "Monistrol", "4.CHINE", "", 12.3),
		raw("03/02/2025", "Polignac", "4.CHINE", "", 0.7),
		raw("04/12/2025", "Yssingeaux", "4.JOUETS", "", 45.25),
		raw("05/06/2025", "St Germain", "4.TEXTILE", "", 8.85),
	})
	f, err := NewExporter(nil, nil).Synthesize(s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	mismatches, err := Verify(f, s)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	// 标准站点在前，其余按字母顺序
	got, err := f.GetCellValue(SheetName, "A3")
	require.NoError(t, err)
	assert.Equal(t, "ST GERMAIN", got)
	got, err = f.GetCellValue(SheetName, "A18")
	require.NoError(t, err)
	assert.Equal(t, "POLIGNAC", got)
}

func TestExport_FromStoreAndSave(t *testing.T) {
	t.Parallel()

	st, err := store.New(filepath.Join(t.TempDir(), "collectes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := scenarioSummary()
	var records []model.NormalizedRecord
	for _, c := range []struct {
		date, location, category, orientation string
		kg                                    float64
	}{
		{"05/03/2025", "Dech. La Pépiniere", "4.MEUBLES", "", 120},
		{"06/03/2025", "Dech. Sanssac", "EVACUATION DECHETS", "DECHETS ULTIMES", 300},
		{"07/03/2025", "", "4.LIVRES", "MASSICOT", 50},
	} {
		r := raw(c.date, c.location, c.category, c.orientation, c.kg)
		r.RowIndex = len(records) + 2
		records = append(records, r)
	}
	_, err = st.ReplaceFileImport(&model.ImportFile{Filename: "mars.xlsx", FileHash: "h1"}, records, nil)
	require.NoError(t, err)

	var events []ProgressEvent
	exp := NewExporter(calculator.NewCalculator(st, nil), nil)
	f, summary, err := exp.Export(ExportOptions{Year: 2025, Progress: func(e ProgressEvent) { events = append(events, e) }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Equal(t, s.Grand.Total, summary.Grand.Total)
	require.NotEmpty(t, events)
	assert.Equal(t, 100, events[len(events)-1].Percent)

	path, err := SaveAs(f, filepath.Join(t.TempDir(), "exports"), 2025)
	require.NoError(t, err)

	reopened, err := excelize.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	mismatches, err := Verify(reopened, summary)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestExport_NoData(t *testing.T) {
	t.Parallel()

	st, err := store.New(filepath.Join(t.TempDir(), "collectes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, _, err = NewExporter(calculator.NewCalculator(st, nil), nil).Export(ExportOptions{Year: 2025})
	assert.ErrorIs(t, err, calculator.ErrNoData)
}

func TestColName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "A", colName(1))
	assert.Equal(t, "B", colName(firstCategoryCol))
	assert.Equal(t, "G", colName(summaryValueCol))
	for col := 1; col <= ultimesCol; col++ {
		assert.NotEmpty(t, colName(col), "column %d", col)
	}

	assert.Empty(t, colName(0))
	assert.Empty(t, colName(ultimesCol+1))

	f := excelize.NewFile()
	defer f.Close()
	assert.Error(t, f.SetCellValue("Sheet1", cellName(0, 3), 1))
}

func TestFileName(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 7, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "collectes_2025_20250307_090501.xlsx", FileName(2025, now))
	assert.Equal(t, "collectes_all_20250307_090501.xlsx", FileName(0, now))
}
