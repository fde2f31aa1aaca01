package model

import "time"

// ImportLog 单个文件的一次导入尝试（含跳过与失败）
type ImportLog struct {
	ID             int64     `json:"id"`
	BatchID        string    `json:"batchId"`
	Filename       string    `json:"filename"`
	FileHash       string    `json:"fileHash"`
	FileSize       int64     `json:"fileSize"`
	Status         string    `json:"status"` // processing/imported/skipped/error
	Reason         string    `json:"reason"`
	TotalSheets    int       `json:"totalSheets"`
	ImportedSheets int       `json:"importedSheets"`
	SkippedSheets  int       `json:"skippedSheets"`
	ImportedRows   int       `json:"importedRows"`
	ErrorRows      int       `json:"errorRows"`
	ErrorMessage   string    `json:"errorMessage"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SheetMeta Sheet 元信息（用于追溯与容错）
type SheetMeta struct {
	ImportLogID  int64  `json:"importLogId"`
	SourceFile   string `json:"sourceFile"`
	SheetName    string `json:"sheetName"`
	SheetType    string `json:"sheetType"`
	Status       string `json:"status"`
	ImportedRows int    `json:"importedRows"`
	ErrorRows    int    `json:"errorRows"`
	BlankRows    int    `json:"blankRows"`
	MissingJSON  string `json:"missingJson"`
	ErrorMessage string `json:"errorMessage"`
}
