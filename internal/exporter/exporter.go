package exporter

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"collectes/internal/calculator"
	"collectes/internal/taxonomy"
)

// ErrReportMismatch 报表单元格与计算结果不一致
var ErrReportMismatch = errors.New("report does not match computed totals")

// Tolerance 校验容差（kg 或比例）
const Tolerance = 1e-6

// Exporter CALCUL POIDS 报表生成器
//
// 合计只由 calculator 计算一次；报表中的合计单元格写成公式，并以计算结果作为缓存值。
type Exporter struct {
	calc   *calculator.Calculator
	logger *zap.Logger
}

// NewExporter 创建导出器
func NewExporter(calc *calculator.Calculator, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		calc:   calc,
		logger: logger,
	}
}

// ExportOptions 导出选项
type ExportOptions struct {
	Year     int // 0 表示全部年份
	Progress func(ProgressEvent)
}

// Export 读取汇总、生成报表并校验数值契约
func (e *Exporter) Export(opts ExportOptions) (*excelize.File, *calculator.Summary, error) {
	reportProgress(opts.Progress, 5, "加载汇总数据")
	summary, err := e.calc.Summary(opts.Year)
	if err != nil {
		return nil, nil, err
	}

	f, err := e.Synthesize(summary, opts.Progress)
	if err != nil {
		return nil, nil, err
	}

	reportProgress(opts.Progress, 90, "校验报表")
	mismatches, err := Verify(f, summary)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if len(mismatches) > 0 {
		for _, m := range mismatches {
			e.logger.Error("report cell mismatch",
				zap.String("cell", m.Cell),
				zap.String("label", m.Label),
				zap.Float64("want", m.Want),
				zap.Float64("cached", m.Cached),
				zap.Float64("computed", m.Computed),
				zap.String("reason", m.Reason),
			)
		}
		_ = f.Close()
		return nil, nil, fmt.Errorf("%d cells: %w", len(mismatches), ErrReportMismatch)
	}

	reportProgress(opts.Progress, 100, "导出完成")
	return f, summary, nil
}

// Synthesize 由汇总生成 CALCUL POIDS 工作表
func (e *Exporter) Synthesize(s *calculator.Summary, progress func(ProgressEvent)) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	l := newLayout(s)
	if err := writeReport(f, s, l, st, progress); err != nil {
		_ = f.Close()
		return nil, err
	}

	f.SetActiveSheet(0)
	e.logger.Info("report synthesized",
		zap.Int("year", s.Year),
		zap.Int("sites", len(s.Sites)),
		zap.Float64("grand_total_kg", s.Grand.Total),
	)
	return f, nil
}

func writeReport(f *excelize.File, s *calculator.Summary, l layout, st styles, progress func(ProgressEvent)) error {
	if err := f.SetCellValue(SheetName, "A1", Title(s)); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "A1", st.title); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, colName(firstCategoryCol), colName(ultimesCol), 13); err != nil {
		return err
	}

	for i, b := range l.blocks {
		if err := writeSiteBlock(f, b, st); err != nil {
			return fmt.Errorf("failed to write site %s: %w", b.site.Site, err)
		}
		reportProgress(progress, 10+60*(i+1)/len(l.blocks), "写入站点 "+string(b.site.Site))
	}

	if err := writeLabelRow(f, l.grandRow, labelGrandTotal, st.total); err != nil {
		return err
	}
	for i, b := range l.blocks {
		if err := f.SetCellValue(SheetName, cellName(1, l.percentRows[i]), b.site.Site.Abbreviation()); err != nil {
			return err
		}
	}

	summaryLabels := []struct {
		row   int
		label string
	}{
		{l.collectsRow, labelTotalCollects},
		{l.massicotRow, string(taxonomy.Massicot)},
		{l.demantRow, string(taxonomy.Demantelement)},
		{l.ultimesRow, string(taxonomy.DechetsUltimes)},
	}
	for _, sl := range summaryLabels {
		if err := f.SetCellValue(SheetName, cellName(summaryLabelCol, sl.row), sl.label); err != nil {
			return err
		}
	}
	if err := f.SetCellValue(SheetName, cellName(summaryValueCol, l.collectsRow), len(s.Sites)); err != nil {
		return err
	}

	reportProgress(progress, 75, "写入合计与百分比")
	for _, c := range contractCells(s, l) {
		if err := writeFormulaCell(f, c); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Cell, err)
		}
		style := st.number
		if c.Percent {
			style = st.percent
		}
		if c.Emphasis {
			style = st.totalNumber
		}
		if err := f.SetCellStyle(SheetName, c.Cell, c.Cell, style); err != nil {
			return err
		}
	}
	return nil
}

func writeSiteBlock(f *excelize.File, b siteBlock, st styles) error {
	header := make([]interface{}, 0, ultimesCol)
	header = append(header, strings.ToUpper(string(b.site.Site)))
	for _, c := range taxonomy.ReportColumns {
		header = append(header, string(c))
	}
	header = append(header, labelGrandTotal, labelExclTerminal, string(taxonomy.DechetsUltimes))
	if err := f.SetSheetRow(SheetName, cellName(1, b.headerRow), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, cellName(1, b.headerRow), cellName(ultimesCol, b.headerRow), st.header); err != nil {
		return err
	}

	for m := 1; m <= 12; m++ {
		row := b.monthRow(m)
		month := b.site.Month(m)
		values := make([]interface{}, 0, lastCategoryCol)
		values = append(values, taxonomy.MonthName(m))
		for _, c := range taxonomy.ReportColumns {
			values = append(values, month.Category(c))
		}
		if err := f.SetSheetRow(SheetName, cellName(1, row), &values); err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cellName(ultimesCol, row), month.DechetsUltimes); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, cellName(1, row), cellName(1, row), st.month); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, cellName(firstCategoryCol, row), cellName(ultimesCol, row), st.number); err != nil {
			return err
		}
		for _, c := range []taxonomy.Category{taxonomy.Demantelement, taxonomy.Massicot} {
			cell := cellName(colOf(c), row)
			if err := f.SetCellStyle(SheetName, cell, cell, st.terminal); err != nil {
				return err
			}
		}
	}

	return writeLabelRow(f, b.totalRow, labelTotal, st.total)
}

func writeLabelRow(f *excelize.File, row int, label string, style int) error {
	if err := f.SetCellValue(SheetName, cellName(1, row), label); err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, cellName(1, row), cellName(1, row), style)
}

// writeFormulaCell 先写缓存值再写公式（写值会清除已有公式）
func writeFormulaCell(f *excelize.File, c ContractCell) error {
	if err := f.SetCellFloat(SheetName, c.Cell, c.Want, -1, 64); err != nil {
		return err
	}
	return f.SetCellFormula(SheetName, c.Cell, c.Formula)
}

// Title 报表标题，带数据日期范围
func Title(s *calculator.Summary) string {
	if s.FirstDate.IsZero() || s.LastDate.IsZero() {
		if s.Year > 0 {
			return fmt.Sprintf("%s %d", titlePrefix, s.Year)
		}
		return titlePrefix
	}
	return fmt.Sprintf("%s %s - %s", titlePrefix, s.FirstDate.Format("02/01/2006"), s.LastDate.Format("02/01/2006"))
}

// FileName 导出文件名
func FileName(year int, now time.Time) string {
	scope := "all"
	if year > 0 {
		scope = strconv.Itoa(year)
	}
	return fmt.Sprintf("collectes_%s_%s.xlsx", scope, now.Format("20060102_150405"))
}

// SaveAs 保存到导出目录，返回文件路径
func SaveAs(f *excelize.File, dir string, year int) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(year, time.Now()))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance
}
