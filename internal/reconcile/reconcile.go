package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"collectes/internal/calculator"
	"collectes/internal/model"
	"collectes/internal/parser"
)

// 计算路径名称
const (
	PathSource = "source"
	PathStore  = "store"
)

// PathResult 单条计算路径的结果
type PathResult struct {
	Name        string                            `json:"name"`
	Summary     *calculator.Summary               `json:"-"`
	TotalKg     float64                           `json:"totalKg"`
	Records     int                               `json:"records"`
	Files       []string                          `json:"files,omitempty"`
	Diagnostics calculator.ConservationDiagnostic `json:"diagnostics"`
	Duration    time.Duration                     `json:"duration"`
}

// Report 对账报告
type Report struct {
	Year        int         `json:"year"`
	Thresholds  Thresholds  `json:"thresholds"`
	Comparison  Comparison  `json:"comparison"`
	Source      *PathResult `json:"source"`
	Store       *PathResult `json:"store"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// Status 总体状态
func (r *Report) Status() Status {
	return r.Comparison.Status
}

// Reconciler 对比“直接读源文件”与“读数据库”两条计算路径
type Reconciler struct {
	calc   *calculator.Calculator
	logger *zap.Logger
}

// New 创建对账器
func New(calc *calculator.Calculator, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{calc: calc, logger: logger}
}

// Run 并发计算两条路径（只读）并比对
func (r *Reconciler) Run(ctx context.Context, year int, files []string, th Thresholds) (*Report, error) {
	if len(files) == 0 {
		return nil, errors.New("no source files to reconcile")
	}

	var source, stored *PathResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = SourcePath(gctx, year, files, r.logger)
		return err
	})
	g.Go(func() error {
		var err error
		stored, err = r.storePath(year)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		Year:        year,
		Thresholds:  th,
		Comparison:  Compare(source.Summary, stored.Summary, th),
		Source:      source,
		Store:       stored,
		GeneratedAt: time.Now(),
	}

	fields := []zap.Field{
		zap.Int("year", year),
		zap.String("status", string(rep.Status())),
		zap.Float64("source_kg", source.TotalKg),
		zap.Float64("store_kg", stored.TotalKg),
		zap.Float64("diff", rep.Comparison.Grand.Diff),
		zap.String("unit", th.Unit),
	}
	if rep.Status() == StatusOK {
		r.logger.Info("reconcile done", fields...)
	} else {
		r.logger.Warn("reconcile mismatch", fields...)
	}
	return rep, nil
}

func (r *Reconciler) storePath(year int) (*PathResult, error) {
	start := time.Now()

	summary, err := r.calc.Summary(year)
	if errors.Is(err, calculator.ErrNoData) {
		summary = calculator.Aggregate(nil)
	} else if err != nil {
		return nil, err
	}

	diag, err := r.calc.Diagnostics(year)
	if err != nil {
		return nil, err
	}

	return &PathResult{
		Name:        PathStore,
		Summary:     summary,
		TotalKg:     summary.Grand.Total,
		Records:     summary.Records,
		Diagnostics: *diag,
		Duration:    time.Since(start),
	}, nil
}

// SourcePath 直接解析源文件计算汇总，不经过数据库
func SourcePath(ctx context.Context, year int, files []string, logger *zap.Logger) (*PathResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	var (
		records  []model.NormalizedRecord
		excluded []model.ExcludedRow
		names    []string
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wb, err := parser.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		names = append(names, filepath.Base(path))

		fileRecords := NormalizeWorkbook(wb)
		fileExcluded := wb.Excluded()
		fileYear := model.FileYear(fileRecords)
		for _, rec := range fileRecords {
			if year <= 0 || rec.Year == year {
				records = append(records, rec)
			}
		}
		for _, ex := range fileExcluded {
			if ex.Year == 0 {
				ex.Year = fileYear
			}
			if year <= 0 || ex.Year == year {
				excluded = append(excluded, ex)
			}
		}
		logger.Debug("source file parsed",
			zap.String("file", filepath.Base(path)),
			zap.Int("records", len(fileRecords)),
			zap.Int("excluded", len(fileExcluded)),
		)
	}

	summary := calculator.Aggregate(records)
	return &PathResult{
		Name:        PathSource,
		Summary:     summary,
		TotalKg:     summary.Grand.Total,
		Records:     len(records),
		Files:       names,
		Diagnostics: calculator.Diagnose(records, excluded, summary.Grand.Total),
		Duration:    time.Since(start),
	}, nil
}

// NormalizeWorkbook 对工作簿中全部有效记录应用站点与品类规则
func NormalizeWorkbook(wb *parser.WorkbookResult) []model.NormalizedRecord {
	raws := wb.Records()
	out := make([]model.NormalizedRecord, len(raws))
	for i, raw := range raws {
		out[i] = model.Normalize(raw)
	}
	return out
}
