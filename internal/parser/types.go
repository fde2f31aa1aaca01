package parser

import (
	"errors"
	"time"

	"collectes/internal/model"
)

// ErrMissingColumns Sheet 缺少必需列
var ErrMissingColumns = errors.New("missing required columns")

// SheetType Sheet 类型
type SheetType string

const (
	SheetTypeCollectes SheetType = "collectes"
	SheetTypeEmpty     SheetType = "empty"
	SheetTypeUnknown   SheetType = "unknown"
)

// Column 输入表格列（本地化表头）
type Column string

const (
	ColDate        Column = "Date"
	ColLocation    Column = "Lieu collecte"
	ColCategory    Column = "Catégorie"
	ColSubCategory Column = "Sous Catégorie"
	ColFlux        Column = "Flux"
	ColOrientation Column = "Orientation"
	ColWeight      Column = "Poids"
)

// RequiredColumns 必需列
var RequiredColumns = []Column{ColDate, ColLocation, ColCategory, ColSubCategory, ColFlux, ColWeight}

// OptionalColumns 可选列
var OptionalColumns = []Column{ColOrientation}

// SheetRecognitionResult Sheet 识别结果
type SheetRecognitionResult struct {
	SheetName  string         `json:"sheetName"`
	SheetType  SheetType      `json:"sheetType"`
	Confidence float64        `json:"confidence"` // 置信度 0-1
	HeaderRow  int            `json:"headerRow"`  // 表头所在行（从 1 开始）
	Columns    map[Column]int `json:"columns"`    // 列 → 列索引
	Missing    []Column       `json:"missing,omitempty"`
}

// 处理状态
const (
	StatusImported = "imported"
	StatusSkipped  = "skipped"
	StatusError    = "error"
)

// ParseResult 单个 Sheet 解析结果
type ParseResult struct {
	SheetName    string        `json:"sheetName"`
	SheetType    SheetType     `json:"sheetType"`
	Status       string        `json:"status"` // imported/skipped/error
	ImportedRows int           `json:"importedRows"`
	ErrorRows    int           `json:"errorRows"` // 被剔除的行
	BlankRows    int           `json:"blankRows"`
	ImportedKg   float64       `json:"importedKg"`
	Missing      []Column      `json:"missing,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	Duration     time.Duration `json:"duration"`

	Records  []model.RawRecord   `json:"-"`
	Excluded []model.ExcludedRow `json:"-"`
}

// WorkbookResult 整个文件的解析结果
type WorkbookResult struct {
	Filename string        `json:"filename"`
	Sheets   []ParseResult `json:"sheets"`
}

// Records 所有 Sheet 的有效记录
func (w *WorkbookResult) Records() []model.RawRecord {
	var out []model.RawRecord
	for _, s := range w.Sheets {
		out = append(out, s.Records...)
	}
	return out
}

// Excluded 所有 Sheet 的剔除行
func (w *WorkbookResult) Excluded() []model.ExcludedRow {
	var out []model.ExcludedRow
	for _, s := range w.Sheets {
		out = append(out, s.Excluded...)
	}
	return out
}

// ImportReport 单个文件的导入报告
type ImportReport struct {
	Filename       string        `json:"filename"`
	FileHash       string        `json:"fileHash"`
	FileID         int64         `json:"fileId,omitempty"`
	Status         string        `json:"status"` // imported/skipped/error
	Reason         string        `json:"reason,omitempty"`
	TotalSheets    int           `json:"totalSheets"`
	ImportedSheets int           `json:"importedSheets"`
	SkippedSheets  int           `json:"skippedSheets"`
	TotalRows      int           `json:"totalRows"`
	ImportedRows   int           `json:"importedRows"`
	ErrorRows      int           `json:"errorRows"`
	ImportedKg     float64       `json:"importedKg"`
	UnmappedSites  map[string]int `json:"unmappedSites,omitempty"`
	Years          []int         `json:"years,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
	Sheets         []ParseResult `json:"sheets"`
}
