package insights

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"collectes/internal/calculator"
	"collectes/internal/model"
	"collectes/internal/taxonomy"
)

// Granularity 时间序列粒度
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ErrInvalidGranularity 不支持的粒度
var ErrInvalidGranularity = errors.New("invalid granularity")

// ParseGranularity 解析粒度，空串为 day
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Day, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrInvalidGranularity)
	}
}

const dayLayout = "2006-01-02"

// NotDefined 空方向的显示值
const NotDefined = "NON DEFINI"

// SeriesPoint 时间序列中的一个点
type SeriesPoint struct {
	Period  string        `json:"period"`
	Site    taxonomy.Site `json:"dechetterie"`
	TotalKg float64       `json:"total"`
}

func periodKey(t time.Time, g Granularity) string {
	switch g {
	case Week:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Month:
		return t.Format("2006-01")
	default:
		return t.Format(dayLayout)
	}
}

func periods(start, end time.Time, g Granularity) []string {
	start = truncateDay(start)
	end = truncateDay(end)

	var out []string
	switch g {
	case Week:
		cursor := start.AddDate(0, 0, -((int(start.Weekday()) + 6) % 7))
		for !cursor.After(end) {
			out = append(out, periodKey(cursor, Week))
			cursor = cursor.AddDate(0, 0, 7)
		}
	case Month:
		cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		for !cursor.After(end) {
			out = append(out, periodKey(cursor, Month))
			cursor = cursor.AddDate(0, 1, 0)
		}
	default:
		for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 1) {
			out = append(out, periodKey(cursor, Day))
		}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateRange(records []model.NormalizedRecord) (time.Time, time.Time) {
	var first, last time.Time
	for _, r := range records {
		if first.IsZero() || r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last
}

func sitesOf(records []model.NormalizedRecord) []taxonomy.Site {
	seen := make(map[taxonomy.Site]bool)
	var sites []taxonomy.Site
	for _, r := range records {
		if !seen[r.Site] {
			seen[r.Site] = true
			sites = append(sites, r.Site)
		}
	}
	return taxonomy.OrderSites(sites)
}

// TimeSeries 各周期各站点合计，在整个日期范围内补零
func TimeSeries(records []model.NormalizedRecord, g Granularity) []SeriesPoint {
	if len(records) == 0 {
		return []SeriesPoint{}
	}

	type key struct {
		period string
		site   taxonomy.Site
	}
	sums := make(map[key]calculator.Mass)
	for _, r := range records {
		k := key{periodKey(r.Date, g), r.Site}
		sums[k] = sums[k].Add(calculator.MassOf(r.WeightKg))
	}

	first, last := dateRange(records)
	sites := sitesOf(records)
	var out []SeriesPoint
	for _, p := range periods(first, last, g) {
		for _, site := range sites {
			out = append(out, SeriesPoint{Period: p, Site: site, TotalKg: sums[key{p, site}].Float64()})
		}
	}
	return out
}

// CategoryStat 原始品类 × 子品类合计
type CategoryStat struct {
	Category    string  `json:"categorie"`
	SubCategory string  `json:"sous_categorie"`
	TotalKg     float64 `json:"total"`
	Rows        int     `json:"rows"`
}

// CategoryStats 按原始品类与子品类汇总，降序
func CategoryStats(records []model.NormalizedRecord) []CategoryStat {
	type key struct{ cat, sub string }
	acc := make(map[key]*group)
	var order []key
	for _, r := range records {
		k := key{r.CategoryRaw, r.SubCategoryRaw}
		if _, ok := acc[k]; !ok {
			acc[k] = &group{}
			order = append(order, k)
		}
		acc[k].add(r.WeightKg)
	}

	out := make([]CategoryStat, 0, len(order))
	for _, k := range order {
		out = append(out, CategoryStat{Category: k.cat, SubCategory: k.sub, TotalKg: acc[k].mass.Float64(), Rows: acc[k].rows})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalKg > out[j].TotalKg })
	return out
}

// FluxOrientation 流向 × 方向合计
type FluxOrientation struct {
	Flux        string  `json:"flux"`
	Orientation string  `json:"orientation"`
	TotalKg     float64 `json:"total"`
	Rows        int     `json:"rows"`
}

// FluxOrientationMatrix 按流向与方向汇总，空方向记为 NON DEFINI，降序
func FluxOrientationMatrix(records []model.NormalizedRecord) []FluxOrientation {
	type key struct{ flux, orientation string }
	acc := make(map[key]*group)
	var order []key
	for _, r := range records {
		o := strings.TrimSpace(r.OrientationRaw)
		if o == "" {
			o = NotDefined
		}
		k := key{r.FluxRaw, o}
		if _, ok := acc[k]; !ok {
			acc[k] = &group{}
			order = append(order, k)
		}
		acc[k].add(r.WeightKg)
	}

	out := make([]FluxOrientation, 0, len(order))
	for _, k := range order {
		out = append(out, FluxOrientation{Flux: k.flux, Orientation: k.orientation, TotalKg: acc[k].mass.Float64(), Rows: acc[k].rows})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalKg > out[j].TotalKg })
	return out
}

// Anomaly 单日单站点单流向合计
type Anomaly struct {
	Date    string        `json:"date"`
	Site    taxonomy.Site `json:"dechetterie"`
	Flux    string        `json:"flux"`
	TotalKg float64       `json:"total"`
	Rows    int           `json:"rows"`
}

// Anomalies (日期, 站点, 流向) 合计最大的前 limit 项
func Anomalies(records []model.NormalizedRecord, limit int) []Anomaly {
	type key struct {
		date string
		site taxonomy.Site
		flux string
	}
	acc := make(map[key]*group)
	var order []key
	for _, r := range records {
		k := key{r.Date.Format(dayLayout), r.Site, r.FluxRaw}
		if _, ok := acc[k]; !ok {
			acc[k] = &group{}
			order = append(order, k)
		}
		acc[k].add(r.WeightKg)
	}

	out := make([]Anomaly, 0, len(order))
	for _, k := range order {
		out = append(out, Anomaly{Date: k.date, Site: k.site, Flux: k.flux, TotalKg: acc[k].mass.Float64(), Rows: acc[k].rows})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalKg > out[j].TotalKg })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MissingDays 站点缺失的日期
type MissingDays struct {
	Site taxonomy.Site `json:"dechetterie"`
	Days []string      `json:"missing_days"`
}

// FindMissingDays 在全局 [最早, 最晚] 日期范围内，各站点没有任何记录的日期
func FindMissingDays(records []model.NormalizedRecord) []MissingDays {
	if len(records) == 0 {
		return []MissingDays{}
	}

	present := make(map[taxonomy.Site]map[string]bool)
	for _, r := range records {
		if present[r.Site] == nil {
			present[r.Site] = make(map[string]bool)
		}
		present[r.Site][r.Date.Format(dayLayout)] = true
	}

	first, last := dateRange(records)
	days := periods(first, last, Day)
	out := make([]MissingDays, 0, len(present))
	for _, site := range sitesOf(records) {
		md := MissingDays{Site: site, Days: []string{}}
		for _, d := range days {
			if !present[site][d] {
				md.Days = append(md.Days, d)
			}
		}
		out = append(out, md)
	}
	return out
}

// SiteDelta 站点合计与平均值之差
type SiteDelta struct {
	Site       taxonomy.Site `json:"dechetterie"`
	TotalKg    float64       `json:"total"`
	DeltaVsAvg float64       `json:"delta_vs_avg"`
}

// SiteComparison 各站点合计与站点平均值的差，按合计降序
func SiteComparison(records []model.NormalizedRecord) []SiteDelta {
	totals := make(map[taxonomy.Site]calculator.Mass)
	var sum calculator.Mass
	for _, r := range records {
		m := calculator.MassOf(r.WeightKg)
		totals[r.Site] = totals[r.Site].Add(m)
		sum = sum.Add(m)
	}
	if len(totals) == 0 {
		return []SiteDelta{}
	}

	avg := sum.Float64() / float64(len(totals))
	out := make([]SiteDelta, 0, len(totals))
	for _, site := range sitesOf(records) {
		total := totals[site].Float64()
		out = append(out, SiteDelta{Site: site, TotalKg: total, DeltaVsAvg: total - avg})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalKg > out[j].TotalKg })
	return out
}

// DuplicateGroup 同一文件内键相同的记录
type DuplicateGroup struct {
	SourceFile  string         `json:"sourceFile"`
	Date        string         `json:"date"`
	Location    string         `json:"lieu"`
	Category    string         `json:"categorie"`
	SubCategory string         `json:"sous_categorie"`
	Flux        string         `json:"flux"`
	Count       int            `json:"count"`
	TotalKg     float64        `json:"total"`
	Rows        []DuplicateRow `json:"rows"`
}

// DuplicateRow 重复组中的一行
type DuplicateRow struct {
	Sheet       string  `json:"sheet"`
	RowIndex    int     `json:"row"`
	WeightKg    float64 `json:"poids"`
	Orientation string  `json:"orientation"`
}

// Duplicates 同一文件内 (日期, 地点, 品类, 子品类, 流向) 相同的记录组，按日期排序，最多 limit 组
func Duplicates(records []model.NormalizedRecord, limit int) []DuplicateGroup {
	type key struct {
		file, date, location, category, sub, flux string
	}
	groups := make(map[key]*DuplicateGroup)
	var order []key
	for _, r := range records {
		k := key{r.SourceFile, r.Date.Format(dayLayout), r.LocationRaw, r.CategoryRaw, r.SubCategoryRaw, r.FluxRaw}
		g, ok := groups[k]
		if !ok {
			g = &DuplicateGroup{SourceFile: k.file, Date: k.date, Location: k.location, Category: k.category, SubCategory: k.sub, Flux: k.flux}
			groups[k] = g
			order = append(order, k)
		}
		g.Rows = append(g.Rows, DuplicateRow{Sheet: r.SourceSheet, RowIndex: r.RowIndex, WeightKg: r.WeightKg, Orientation: r.OrientationRaw})
	}

	var out []DuplicateGroup
	for _, k := range order {
		g := groups[k]
		if len(g.Rows) < 2 {
			continue
		}
		var total calculator.Mass
		for _, row := range g.Rows {
			total = total.Add(calculator.MassOf(row.WeightKg))
		}
		g.Count = len(g.Rows)
		g.TotalKg = total.Float64()
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.Location < b.Location
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []DuplicateGroup{}
	}
	return out
}

type group struct {
	mass calculator.Mass
	rows int
}

func (g *group) add(kg float64) {
	g.mass = g.mass.Add(calculator.MassOf(kg))
	g.rows++
}
