package calculator

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"collectes/internal/store"
)

// ErrNoData 所选年份没有记录
var ErrNoData = errors.New("no data")

// Calculator 聚合计算器
type Calculator struct {
	store  *store.Store
	logger *zap.Logger

	rebuildMu sync.Mutex // 读取记录与替换聚合表之间不得交错
}

// NewCalculator 创建计算器
func NewCalculator(store *store.Store, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		store:  store,
		logger: logger,
	}
}

// RebuildResult 聚合表重建结果
type RebuildResult struct {
	Year     int           `json:"year"` // 0 表示全部年份
	Cells    int           `json:"cells"`
	Records  int           `json:"records"`
	TotalKg  float64       `json:"totalKg"`
	Duration time.Duration `json:"duration"`
}

// Rebuild 由归一化记录整体重建某年的聚合表（单事务）
func (c *Calculator) Rebuild(year int) (*RebuildResult, error) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	start := time.Now()

	records, err := c.store.ListRecords(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	cells := BuildCells(records)
	if err := c.store.ReplaceAggregates(year, cells); err != nil {
		return nil, fmt.Errorf("failed to rebuild aggregates for %d: %w", year, err)
	}

	var total Mass
	for _, cell := range cells {
		total = total.Add(MassOf(cell.WeightKg))
	}

	if err := c.store.SetConfigTime(lastRebuildKey(year), time.Now()); err != nil {
		c.logger.Warn("record rebuild time failed", zap.Int("year", year), zap.Error(err))
	}

	res := &RebuildResult{
		Year:     year,
		Cells:    len(cells),
		Records:  len(records),
		TotalKg:  total.Float64(),
		Duration: time.Since(start),
	}
	c.logger.Info("aggregates rebuilt",
		zap.Int("year", year),
		zap.Int("cells", res.Cells),
		zap.Int("records", res.Records),
		zap.Float64("total_kg", res.TotalKg),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Summary 由存储中的归一化记录计算完整汇总
func (c *Calculator) Summary(year int) (*Summary, error) {
	records, err := c.store.ListRecords(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("year %d: %w", year, ErrNoData)
	}
	return Aggregate(records), nil
}

// Totals 站点合计、总计、百分比与守恒诊断
type Totals struct {
	Year         int                    `json:"year"`
	PerSite      []*SiteSummary         `json:"perSite"`
	Grand        Row                    `json:"grand"`
	GrandTotalKg float64                `json:"grandTotalKg"`
	Diagnostics  ConservationDiagnostic `json:"diagnostics"`
	LastRebuild  *time.Time             `json:"lastRebuild,omitempty"`
}

// Totals 从聚合表读取合计，并与归一化记录比对守恒
func (c *Calculator) Totals(year int) (*Totals, error) {
	cells, err := c.store.ListAggregates(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}
	s := FromCells(cells)
	diag, err := c.diagnose(year, s.Grand.Total)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 && diag.RawTotalKg == 0 && diag.ExcludedByWeightRows == 0 {
		return nil, fmt.Errorf("year %d: %w", year, ErrNoData)
	}

	t := &Totals{
		Year:         year,
		PerSite:      s.Sites,
		Grand:        s.Grand,
		GrandTotalKg: s.Grand.Total,
		Diagnostics:  *diag,
	}
	if ts, err := c.store.GetConfigTime(lastRebuildKey(year)); err == nil {
		t.LastRebuild = &ts
	}
	return t, nil
}

// Diagnostics 守恒诊断：归一化记录 vs 聚合表
func (c *Calculator) Diagnostics(year int) (*ConservationDiagnostic, error) {
	cells, err := c.store.ListAggregates(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregates: %w", err)
	}
	return c.diagnose(year, FromCells(cells).Grand.Total)
}

func (c *Calculator) diagnose(year int, grandTotalKg float64) (*ConservationDiagnostic, error) {
	records, err := c.store.ListRecords(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	excluded, err := c.store.ListExcluded(year)
	if err != nil {
		return nil, fmt.Errorf("failed to load excluded rows: %w", err)
	}

	d := Diagnose(records, excluded, grandTotalKg)
	if !d.Balanced {
		c.logger.Warn("conservation gap",
			zap.Int("year", year),
			zap.Float64("after_date_filter_kg", d.AfterDateFilterKg),
			zap.Float64("grand_total_kg", d.GrandTotalKg),
			zap.Float64("gap_kg", d.GapKg),
		)
	}
	if d.AutresRows > 0 {
		c.logger.Debug("autres bucket",
			zap.Int("year", year),
			zap.Int("rows", d.AutresRows),
			zap.Float64("weight_kg", d.AutresKg),
			zap.Int("combinations", len(d.AutresCombos)),
		)
	}
	return &d, nil
}

func lastRebuildKey(year int) string {
	if year <= 0 {
		return "last_rebuild_all"
	}
	return "last_rebuild_" + strconv.Itoa(year)
}
