package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"collectes/internal/model"
)

// CollectParser 回收记录表解析器
type CollectParser struct {
	file       *excelize.File
	filename   string
	recognizer *SheetRecognizer
}

// NewCollectParser 创建解析器，filename 写入记录来源
func NewCollectParser(file *excelize.File, filename string) *CollectParser {
	return &CollectParser{
		file:       file,
		filename:   filepath.Base(filename),
		recognizer: NewSheetRecognizer(),
	}
}

// ParseFile 打开并解析整个文件
func ParseFile(path string) (*WorkbookResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return NewCollectParser(f, path).ParseWorkbook()
}

// ParseWorkbook 逐个 Sheet 解析
func (p *CollectParser) ParseWorkbook() (*WorkbookResult, error) {
	result := &WorkbookResult{Filename: p.filename}
	for _, sheetName := range p.file.GetSheetList() {
		result.Sheets = append(result.Sheets, p.ParseSheet(sheetName))
	}
	return result, nil
}

// ParseSheet 解析单个 Sheet；缺少必需列时返回 skipped
func (p *CollectParser) ParseSheet(sheetName string) ParseResult {
	start := time.Now()
	result := ParseResult{SheetName: sheetName, SheetType: SheetTypeUnknown}

	// 原始值读取，日期保持序列号形式，避免按单元格格式渲染后产生歧义
	rows, err := p.file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		result.Status = StatusError
		result.Errors = []string{fmt.Sprintf("failed to read sheet: %v", err)}
		result.Duration = time.Since(start)
		return result
	}

	recognition := p.recognizer.Recognize(sheetName, rows)
	result.SheetType = recognition.SheetType
	if recognition.SheetType != SheetTypeCollectes {
		result.Status = StatusSkipped
		result.Missing = recognition.Missing
		if recognition.SheetType == SheetTypeEmpty {
			result.Errors = []string{"empty sheet"}
		} else {
			result.Errors = []string{fmt.Errorf("%w: %s", ErrMissingColumns, joinColumns(recognition.Missing)).Error()}
		}
		result.Duration = time.Since(start)
		return result
	}

	cols := recognition.Columns
	for i := recognition.HeaderRow; i < len(rows); i++ {
		row := rows[i]
		rowNo := i + 1

		raw := model.RawRecord{
			DateRaw:        cell(row, cols[ColDate]),
			LocationRaw:    cell(row, cols[ColLocation]),
			CategoryRaw:    cell(row, cols[ColCategory]),
			SubCategoryRaw: cell(row, cols[ColSubCategory]),
			FluxRaw:        cell(row, cols[ColFlux]),
			OrientationRaw: optionalCell(row, cols, ColOrientation),
			SourceFile:     p.filename,
			SourceSheet:    sheetName,
			RowIndex:       rowNo,
		}
		weightRaw := cell(row, cols[ColWeight])

		if isBlankRow(raw, weightRaw) {
			result.BlankRows++
			continue
		}

		weight, weightOK := ParseWeight(weightRaw)
		date, dateOK := ParseDate(raw.DateRaw)
		if !dateOK || !weightOK {
			ex := model.ExcludedRow{
				SourceFile:  p.filename,
				SourceSheet: sheetName,
				RowIndex:    rowNo,
				Reason:      model.ExcludedInvalidWeight,
				DateRaw:     raw.DateRaw,
				WeightRaw:   weightRaw,
				WeightKg:    weight,
				WeightValid: weightOK,
			}
			if !dateOK {
				ex.Reason = model.ExcludedInvalidDate
			} else {
				ex.Year = date.Year()
			}
			result.Excluded = append(result.Excluded, ex)
			result.ErrorRows++
			continue
		}

		raw.Date = date
		raw.WeightKg = weight
		result.Records = append(result.Records, raw)
		result.ImportedRows++
		result.ImportedKg += weight
	}

	result.Status = StatusImported
	if result.ImportedRows == 0 {
		result.Status = StatusSkipped
		result.Errors = append(result.Errors, "no valid rows")
	}
	result.Duration = time.Since(start)
	return result
}

func optionalCell(row []string, cols map[Column]int, col Column) string {
	idx, ok := cols[col]
	if !ok {
		return ""
	}
	return cell(row, idx)
}

func isBlankRow(raw model.RawRecord, weightRaw string) bool {
	return raw.DateRaw == "" && raw.LocationRaw == "" && raw.CategoryRaw == "" &&
		raw.SubCategoryRaw == "" && raw.FluxRaw == "" && raw.OrientationRaw == "" && weightRaw == ""
}

func joinColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
