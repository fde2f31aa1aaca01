package model

import (
	"time"

	"collectes/internal/taxonomy"
)

// AggregateCell (站点, 月份, 品类) → 重量合计，可由归一化记录完全重建
type AggregateCell struct {
	Year     int               `json:"year"`
	Month    int               `json:"month"`
	Site     taxonomy.Site     `json:"site"`
	Category taxonomy.Category `json:"category"`
	WeightKg float64           `json:"weightKg"`
	Rows     int               `json:"rows"`
}

// ImportFile 已导入文件（按内容哈希去重）
type ImportFile struct {
	ID            int64     `json:"id"`
	BatchID       string    `json:"batchId"`
	Filename      string    `json:"filename"`
	FileHash      string    `json:"fileHash"`
	FileSize      int64     `json:"fileSize"`
	ImportedAt    time.Time `json:"importedAt"`
	RowCount      int       `json:"rowCount"`
	ExcludedCount int       `json:"excludedCount"`
	SheetCount    int       `json:"sheetCount"`
	SkippedSheets int       `json:"skippedSheets"`
	RulesVersion  string    `json:"rulesVersion"`
}
