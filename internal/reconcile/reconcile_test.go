package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectes/internal/calculator"
	"collectes/internal/importer"
	"collectes/internal/model"
	"collectes/internal/store"
	"collectes/internal/taxonomy"
	"collectes/internal/testutil"
)

func summaryOf(weights map[taxonomy.Site]float64) *calculator.Summary {
	var records []model.NormalizedRecord
	for site, kg := range weights {
		records = append(records, model.NormalizedRecord{
			RawRecord: model.RawRecord{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), WeightKg: kg},
			Site:      site,
			Category:  taxonomy.Chine,
			Year:      2025,
			Month:     3,
		})
	}
	return calculator.Aggregate(records)
}

func TestCompare_Statuses(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	tests := []struct {
		name  string
		a, b  map[taxonomy.Site]float64
		grand Status
		sites []Status
		worst Status
	}{
		{
			name:  "identical",
			a:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200, taxonomy.SiteSanssac: 800},
			b:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200, taxonomy.SiteSanssac: 800},
			grand: StatusOK,
			sites: []Status{StatusOK, StatusOK},
			worst: StatusOK,
		},
		{
			name:  "below ok tolerance",
			a:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200},
			b:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1205},
			grand: StatusOK,
			sites: []Status{StatusOK},
			worst: StatusOK,
		},
		{
			name:  "site error grand warn",
			a:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200, taxonomy.SiteSanssac: 800},
			b:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1800, taxonomy.SiteSanssac: 800},
			grand: StatusWarn,
			sites: []Status{StatusError, StatusOK},
			worst: StatusError,
		},
		{
			name:  "site missing on one side",
			a:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200},
			b:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1200, taxonomy.SiteMonistrol: 300},
			grand: StatusWarn,
			sites: []Status{StatusOK, StatusWarn},
			worst: StatusWarn,
		},
		{
			name:  "grand error",
			a:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 5000},
			b:     map[taxonomy.Site]float64{taxonomy.SitePepiniere: 3000},
			grand: StatusError,
			sites: []Status{StatusError},
			worst: StatusError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Compare(summaryOf(tt.a), summaryOf(tt.b), th)
			assert.Equal(t, tt.grand, c.Grand.Status)
			require.Len(t, c.Sites, len(tt.sites))
			for i, want := range tt.sites {
				assert.Equal(t, want, c.Sites[i].Status, c.Sites[i].Name)
			}
			assert.Equal(t, tt.worst, c.Status)
		})
	}
}

func TestCompare_UnitsAndPercent(t *testing.T) {
	t.Parallel()

	a := summaryOf(map[taxonomy.Site]float64{taxonomy.SitePepiniere: 2000})
	b := summaryOf(map[taxonomy.Site]float64{taxonomy.SitePepiniere: 1500})

	c := Compare(a, b, DefaultThresholds())
	assert.Equal(t, UnitTonne, c.Unit)
	assert.InDelta(t, 2.0, c.Grand.A, 1e-9)
	assert.InDelta(t, 0.5, c.Grand.Diff, 1e-9)
	assert.InDelta(t, 25.0, c.Grand.DiffPercent, 1e-9)

	th := DefaultThresholds()
	th.Unit = UnitKg
	th.OKTolerance, th.ErrorThreshold, th.SiteErrorThreshold = 1, 1000, 1000
	c = Compare(a, b, th)
	assert.Equal(t, 500.0, c.Grand.Diff)
	assert.Equal(t, StatusWarn, c.Status)
}

func TestWorse(t *testing.T) {
	t.Parallel()
	assert.Equal(t, StatusWarn, Worse(StatusOK, StatusWarn))
	assert.Equal(t, StatusError, Worse(StatusError, StatusWarn))
	assert.Equal(t, StatusOK, Worse(StatusOK, StatusOK))
}

func newImportedStore(t *testing.T, files ...string) *calculator.Calculator {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "collectes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	calc := calculator.NewCalculator(st, nil)
	if len(files) > 0 {
		_, err = importer.NewCoordinator(st, calc, nil).Run(context.Background(), importer.ImportOptions{Files: files, Rebuild: true})
		require.NoError(t, err)
	}
	return calc
}

func marsWorkbook(t *testing.T) string {
	return testutil.WriteWorkbook(t, "mars.xlsx", testutil.Sheet{Name: "Mars", Rows: [][]any{
		testutil.Header,
		testutil.Row("05/03/2025", "Dech. La Pépiniere", "4.MEUBLES", "", "MEUBLES", "", 120),
		testutil.Row("06/03/2025", "Dech. Sanssac", "EVACUATION DECHETS", "", "", "DECHETS ULTIMES", 300),
		testutil.Row("07/03/2025", "", "4.LIVRES", "", "", "MASSICOT", 50),
		testutil.Row("??", "Dech. Sanssac", "4.CHINE", "", "", "", 40),
	}})
}

func TestRun_PathsAgree(t *testing.T) {
	t.Parallel()

	path := marsWorkbook(t)
	calc := newImportedStore(t, path)

	rep, err := New(calc, nil).Run(context.Background(), 2025, []string{path}, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, rep.Status())
	assert.Equal(t, 470.0, rep.Source.TotalKg)
	assert.Equal(t, 470.0, rep.Store.TotalKg)
	assert.Equal(t, []string{"mars.xlsx"}, rep.Source.Files)
	assert.True(t, rep.Source.Diagnostics.Balanced)
	assert.True(t, rep.Store.Diagnostics.Balanced)
	assert.Equal(t, 40.0, rep.Source.Diagnostics.ExcludedByDateKg)
	assert.Equal(t, rep.Source.Diagnostics.RawTotalKg, rep.Store.Diagnostics.RawTotalKg)
}

func TestRun_StoreMissingFile(t *testing.T) {
	t.Parallel()

	path := marsWorkbook(t)
	extra := testutil.WriteWorkbook(t, "avril.xlsx", testutil.Sheet{Name: "Avril", Rows: [][]any{
		testutil.Header,
		testutil.Row("02/04/2025", "Polignac", "4.CHINE", "", "", "", 1500),
	}})
	calc := newImportedStore(t, path)

	rep, err := New(calc, nil).Run(context.Background(), 2025, []string{path, extra}, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, StatusError, rep.Status())
	assert.Equal(t, StatusError, rep.Comparison.Grand.Status)
	assert.InDelta(t, 1.5, rep.Comparison.Grand.Diff, 1e-9)

	var polignac *Line
	for i := range rep.Comparison.Sites {
		if rep.Comparison.Sites[i].Name == string(taxonomy.SitePolignac) {
			polignac = &rep.Comparison.Sites[i]
		}
	}
	require.NotNil(t, polignac)
	assert.Equal(t, 0.0, polignac.B)
	assert.Equal(t, StatusError, polignac.Status)
}

func TestRun_EmptyStore(t *testing.T) {
	t.Parallel()

	path := marsWorkbook(t)
	rep, err := New(newImportedStore(t), nil).Run(context.Background(), 2025, []string{path}, DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.Store.TotalKg)
	assert.Equal(t, StatusWarn, rep.Status())
}

func TestRun_YearFilter(t *testing.T) {
	t.Parallel()

	path := marsWorkbook(t)
	src, err := SourcePath(context.Background(), 2024, []string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, src.Records)
	assert.Equal(t, 0.0, src.Diagnostics.ExcludedByDateKg)

	src, err = SourcePath(context.Background(), 0, []string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Records)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	calc := newImportedStore(t)

	_, err := New(calc, nil).Run(context.Background(), 2025, nil, DefaultThresholds())
	assert.Error(t, err)

	_, err = New(calc, nil).Run(context.Background(), 2025, []string{filepath.Join(t.TempDir(), "absent.xlsx")}, DefaultThresholds())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(calc, nil).Run(ctx, 2025, []string{marsWorkbook(t)}, DefaultThresholds())
	assert.ErrorIs(t, err, context.Canceled)
}
