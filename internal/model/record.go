package model

import (
	"time"

	"collectes/internal/taxonomy"
)

// RawRecord 表格中的一行回收记录（未归一化）
type RawRecord struct {
	Date           time.Time `json:"date"`
	DateRaw        string    `json:"dateRaw"`
	LocationRaw    string    `json:"locationRaw"`
	CategoryRaw    string    `json:"categoryRaw"`
	SubCategoryRaw string    `json:"subCategoryRaw"`
	FluxRaw        string    `json:"fluxRaw"`
	OrientationRaw string    `json:"orientationRaw"`
	WeightKg       float64   `json:"weightKg"` // >= 0

	// 来源
	SourceFile  string `json:"sourceFile"`
	SourceSheet string `json:"sourceSheet"`
	RowIndex    int    `json:"rowIndex"` // 表格行号（含表头，从 1 开始）
}

// NormalizedRecord 归一化后的记录，入库后不再修改
type NormalizedRecord struct {
	ID     int64 `json:"id"`
	FileID int64 `json:"fileId"`
	RawRecord

	Site         taxonomy.Site      `json:"site"`
	SiteMatch    taxonomy.SiteMatch `json:"siteMatch"`
	Category     taxonomy.Category  `json:"category"`
	CategoryRule taxonomy.Rule      `json:"categoryRule"`
	Year         int                `json:"year"`
	Month        int                `json:"month"` // 1-12
}

// Normalize 对原始记录应用站点与品类规则
func Normalize(raw RawRecord) NormalizedRecord {
	site := taxonomy.ResolveSite(raw.LocationRaw)
	cls := taxonomy.ClassifyExplain(taxonomy.Input{
		Category:    raw.CategoryRaw,
		SubCategory: raw.SubCategoryRaw,
		Flux:        raw.FluxRaw,
		Orientation: raw.OrientationRaw,
	})
	return NormalizedRecord{
		RawRecord:    raw,
		Site:         site.Site,
		SiteMatch:    site.Match,
		Category:     cls.Category,
		CategoryRule: cls.Rule,
		Year:         raw.Date.Year(),
		Month:        int(raw.Date.Month()),
	}
}

// ExclusionReason 行被剔除的原因
type ExclusionReason string

const (
	ExcludedInvalidDate   ExclusionReason = "invalid_date"
	ExcludedInvalidWeight ExclusionReason = "invalid_weight"
)

// ExcludedRow 校验失败被剔除的行
type ExcludedRow struct {
	FileID      int64           `json:"fileId"`
	SourceFile  string          `json:"sourceFile"`
	SourceSheet string          `json:"sourceSheet"`
	RowIndex    int             `json:"rowIndex"`
	Reason      ExclusionReason `json:"reason"`
	DateRaw     string          `json:"dateRaw"`
	WeightRaw   string          `json:"weightRaw"`
	// 重量可解析时记录，用于守恒诊断归因
	WeightKg    float64 `json:"weightKg"`
	WeightValid bool    `json:"weightValid"`
	// 日期可解析时记录所属年份，0 表示未知
	Year int `json:"year"`
}

// FileYear 记录全部属于同一年时返回该年，否则返回 0
func FileYear(records []NormalizedRecord) int {
	year := 0
	for _, r := range records {
		if year == 0 {
			year = r.Year
		} else if r.Year != year {
			return 0
		}
	}
	return year
}
