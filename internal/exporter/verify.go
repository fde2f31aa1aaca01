package exporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"collectes/internal/calculator"
	"collectes/internal/taxonomy"
)

// ContractCell 报表中受数值契约约束的单元格
type ContractCell struct {
	Cell     string
	Label    string
	Formula  string
	Want     float64
	Percent  bool
	Emphasis bool
}

// Mismatch 校验不一致项
type Mismatch struct {
	Cell     string  `json:"cell"`
	Label    string  `json:"label"`
	Want     float64 `json:"want"`
	Cached   float64 `json:"cached"`
	Computed float64 `json:"computed"`
	Reason   string  `json:"reason"`
}

// contractCells 列出所有合计、总计、百分比与汇总单元格及其应有数值
func contractCells(s *calculator.Summary, l layout) []ContractCell {
	var cells []ContractCell
	add := func(col, row int, label, formula string, want float64, percent, emphasis bool) {
		cells = append(cells, ContractCell{
			Cell:     cellName(col, row),
			Label:    label,
			Formula:  formula,
			Want:     want,
			Percent:  percent,
			Emphasis: emphasis,
		})
	}

	for _, b := range l.blocks {
		site := string(b.site.Site)
		for m := 1; m <= 12; m++ {
			row := b.monthRow(m)
			month := b.site.Month(m)
			label := site + " " + taxonomy.MonthName(m)
			add(totalCol, row, label+" TOTAL", rowTotalFormula(row), month.Total, false, false)
			add(exclTerminalCol, row, label+" "+labelExclTerminal, exclTerminalFormula(row), month.TotalExclTerminal, false, false)
		}

		from, to := b.monthRow(1), b.monthRow(12)
		for i, c := range taxonomy.ReportColumns {
			add(categoryCol(i), b.totalRow, site+" Total "+string(c), columnSumFormula(categoryCol(i), from, to), b.site.Total.Category(c), false, true)
		}
		add(totalCol, b.totalRow, site+" Total TOTAL", rowTotalFormula(b.totalRow), b.site.Total.Total, false, true)
		add(exclTerminalCol, b.totalRow, site+" Total "+labelExclTerminal, exclTerminalFormula(b.totalRow), b.site.Total.TotalExclTerminal, false, true)
		add(ultimesCol, b.totalRow, site+" Total "+string(taxonomy.DechetsUltimes), columnSumFormula(ultimesCol, from, to), b.site.Total.DechetsUltimes, false, true)
	}

	g := l.grandRow
	for i, c := range taxonomy.ReportColumns {
		add(categoryCol(i), g, "TOTAL "+string(c), siteTotalsFormula(l, categoryCol(i)), s.Grand.Category(c), false, true)
	}
	add(totalCol, g, "TOTAL TOTAL", rowTotalFormula(g), s.Grand.Total, false, true)
	add(exclTerminalCol, g, "TOTAL "+labelExclTerminal, exclTerminalFormula(g), s.Grand.TotalExclTerminal, false, true)
	add(ultimesCol, g, "TOTAL "+string(taxonomy.DechetsUltimes), siteTotalsFormula(l, ultimesCol), s.Grand.DechetsUltimes, false, true)

	for i, b := range l.blocks {
		row := l.percentRows[i]
		abbr := b.site.Site.Abbreviation()
		for j, c := range taxonomy.ReportColumns {
			col := categoryCol(j)
			add(col, row, abbr+" "+string(c), ratioFormula(col, b.totalRow, g), b.site.Percentages[c], true, false)
		}
		add(totalCol, row, abbr+" TOTAL", ratioFormula(totalCol, b.totalRow, g), b.site.Share, true, false)
		add(exclTerminalCol, row, abbr+" "+labelExclTerminal, ratioFormula(exclTerminalCol, b.totalRow, g), b.site.ShareExclTerminal, true, false)
		add(ultimesCol, row, abbr+" "+string(taxonomy.DechetsUltimes), ratioFormula(ultimesCol, b.totalRow, g), b.site.Percentages[taxonomy.DechetsUltimes], true, false)
	}

	add(summaryValueCol, l.massicotRow, string(taxonomy.Massicot), cellName(colOf(taxonomy.Massicot), g), s.Grand.Category(taxonomy.Massicot), false, true)
	add(summaryValueCol, l.demantRow, string(taxonomy.Demantelement), cellName(colOf(taxonomy.Demantelement), g), s.Grand.Category(taxonomy.Demantelement), false, true)
	add(summaryValueCol, l.ultimesRow, string(taxonomy.DechetsUltimes), cellName(ultimesCol, g), s.Grand.DechetsUltimes, false, true)
	return cells
}

// siteTotalsFormula 总计行：各站点 Total 行之和
func siteTotalsFormula(l layout, col int) string {
	if len(l.blocks) == 0 {
		return "0"
	}
	parts := make([]string, len(l.blocks))
	for i, b := range l.blocks {
		parts[i] = cellName(col, b.totalRow)
	}
	return strings.Join(parts, "+")
}

// Verify 重新读取报表中每个合计单元格，核对缓存值与公式计算结果均等于计算器数值
func Verify(f *excelize.File, s *calculator.Summary) ([]Mismatch, error) {
	if idx, err := f.GetSheetIndex(SheetName); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", SheetName)
	}

	var out []Mismatch
	for _, c := range contractCells(s, newLayout(s)) {
		m := Mismatch{Cell: c.Cell, Label: c.Label, Want: c.Want}

		formula, err := f.GetCellFormula(SheetName, c.Cell)
		if err != nil {
			return nil, fmt.Errorf("failed to read formula %s: %w", c.Cell, err)
		}
		if formula == "" {
			m.Reason = "missing formula"
			out = append(out, m)
			continue
		}

		raw, err := f.GetCellValue(SheetName, c.Cell, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", c.Cell, err)
		}
		m.Cached, err = parseNumber(raw)
		if err != nil {
			m.Reason = "cached value is not a number: " + raw
			out = append(out, m)
			continue
		}

		computed, err := f.CalcCellValue(SheetName, c.Cell, excelize.Options{RawCellValue: true})
		if err != nil {
			m.Reason = "formula evaluation failed: " + err.Error()
			out = append(out, m)
			continue
		}
		m.Computed, err = parseNumber(computed)
		if err != nil {
			m.Reason = "formula result is not a number: " + computed
			out = append(out, m)
			continue
		}

		switch {
		case !almostEqual(m.Cached, c.Want):
			m.Reason = "cached value differs"
		case !almostEqual(m.Computed, c.Want):
			m.Reason = "formula result differs"
		default:
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
