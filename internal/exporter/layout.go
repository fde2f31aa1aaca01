package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"collectes/internal/calculator"
	"collectes/internal/taxonomy"
)

// SheetName 报表工作表名
const SheetName = "CALCUL POIDS"

const (
	labelTotal         = "Total"
	labelGrandTotal    = "TOTAL"
	labelExclTerminal  = "Sans massicot et démantèlement"
	labelTotalCollects = "TOTAL COLLECTES"
	titlePrefix        = "COLLECTES DECHETTERIES"
)

// 列号：A 为标签，随后为品类列，再依次为 TOTAL、不含终端流向合计、DECHETS ULTIMES
var (
	firstCategoryCol = 2
	lastCategoryCol  = firstCategoryCol + len(taxonomy.ReportColumns) - 1
	totalCol         = lastCategoryCol + 1
	exclTerminalCol  = totalCol + 1
	ultimesCol       = exclTerminalCol + 1

	// 汇总行：标签在 E 列，数值在 G 列
	summaryLabelCol = 5
	summaryValueCol = 7
)

// siteBlock 单个站点区块的行号
type siteBlock struct {
	site      *calculator.SiteSummary
	headerRow int
	firstRow  int // JANVIER
	totalRow  int
}

func (b siteBlock) monthRow(month int) int {
	return b.firstRow + month - 1
}

// layout 报表行布局，生成与校验共用
type layout struct {
	blocks      []siteBlock
	grandRow    int
	percentRows []int
	collectsRow int
	massicotRow int
	demantRow   int
	ultimesRow  int
}

func newLayout(s *calculator.Summary) layout {
	var l layout
	row := 3
	for _, ss := range s.Sites {
		b := siteBlock{site: ss, headerRow: row, firstRow: row + 1}
		b.totalRow = b.firstRow + 12
		l.blocks = append(l.blocks, b)
		row = b.totalRow + 2
	}

	l.grandRow = row + 1
	row = l.grandRow + 2
	for range s.Sites {
		l.percentRows = append(l.percentRows, row)
		row++
	}

	l.collectsRow = row + 2
	l.massicotRow = l.collectsRow + 2
	l.demantRow = l.massicotRow + 1
	l.ultimesRow = l.demantRow + 1
	return l
}

func categoryCol(i int) int {
	return firstCategoryCol + i
}

// colNames 报表用到的列名，下标为列号
var colNames = func() []string {
	names := make([]string, ultimesCol+1)
	for col := 1; col <= ultimesCol; col++ {
		names[col], _ = excelize.ColumnNumberToName(col)
	}
	return names
}()

// colName 超出报表范围返回空串，写入时由 excelize 报错
func colName(col int) string {
	if col < 1 || col >= len(colNames) {
		return ""
	}
	return colNames[col]
}

func cellName(col, row int) string {
	return fmt.Sprintf("%s%d", colName(col), row)
}

func colOf(c taxonomy.Category) int {
	for i, rc := range taxonomy.ReportColumns {
		if rc == c {
			return categoryCol(i)
		}
	}
	return 0
}

// rowTotalFormula TOTAL 列：品类列之和加 DECHETS ULTIMES
func rowTotalFormula(row int) string {
	return fmt.Sprintf("SUM(%s:%s)+%s",
		cellName(firstCategoryCol, row), cellName(lastCategoryCol, row), cellName(ultimesCol, row))
}

func exclTerminalFormula(row int) string {
	return fmt.Sprintf("%s-%s-%s",
		cellName(totalCol, row), cellName(colOf(taxonomy.Massicot), row), cellName(colOf(taxonomy.Demantelement), row))
}

func columnSumFormula(col, from, to int) string {
	return fmt.Sprintf("SUM(%s:%s)", cellName(col, from), cellName(col, to))
}

func ratioFormula(col, row, grandRow int) string {
	grand := cellName(col, grandRow)
	return fmt.Sprintf("IF(%s=0,0,%s/%s)", grand, cellName(col, row), grand)
}
