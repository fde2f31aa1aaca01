package parser

import (
	"strings"
)

// headerScanRows 表头可能位于前几行（上方可能有标题行）
const headerScanRows = 5

// SheetRecognizer Sheet 类型识别器
type SheetRecognizer struct{}

// NewSheetRecognizer 创建识别器
func NewSheetRecognizer() *SheetRecognizer {
	return &SheetRecognizer{}
}

// Recognize 在前几行中寻找表头并识别 Sheet 类型
func (r *SheetRecognizer) Recognize(sheetName string, rows [][]string) SheetRecognitionResult {
	best := SheetRecognitionResult{
		SheetName: sheetName,
		SheetType: SheetTypeUnknown,
		Missing:   append([]Column(nil), RequiredColumns...),
	}
	if len(rows) == 0 {
		best.SheetType = SheetTypeEmpty
		return best
	}

	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		res := r.RecognizeHeader(sheetName, rows[i])
		res.HeaderRow = i + 1
		if res.SheetType == SheetTypeCollectes {
			return res
		}
		if res.Confidence > best.Confidence {
			best = res
		}
	}
	return best
}

// RecognizeHeader 对单行表头做列匹配：先精确匹配，再忽略大小写
func (r *SheetRecognizer) RecognizeHeader(sheetName string, headers []string) SheetRecognitionResult {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeColumnName(h)
	}

	columns := make(map[Column]int)
	all := append(append([]Column(nil), RequiredColumns...), OptionalColumns...)
	for _, col := range all {
		if idx := findColumn(normalized, string(col)); idx >= 0 {
			columns[col] = idx
		}
	}

	var missing []Column
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}

	confidence := float64(len(RequiredColumns)-len(missing)) / float64(len(RequiredColumns))
	sheetType := SheetTypeUnknown
	if len(missing) == 0 {
		sheetType = SheetTypeCollectes
	}

	return SheetRecognitionResult{
		SheetName:  sheetName,
		SheetType:  sheetType,
		Confidence: confidence,
		HeaderRow:  1,
		Columns:    columns,
		Missing:    missing,
	}
}

func findColumn(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	for i, h := range headers {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}
