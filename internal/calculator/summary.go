package calculator

import (
	"sort"
	"time"

	"collectes/internal/model"
	"collectes/internal/taxonomy"
)

// Row 一行合计（某站点某月，或某站点全年，或全部站点）
type Row struct {
	ByCategory        map[taxonomy.Category]float64 `json:"byCategory"`
	Total             float64                       `json:"total"`
	TotalExclTerminal float64                       `json:"totalExclTerminal"` // TOTAL - MASSICOT - DEMANTELEMENT
	DechetsUltimes    float64                       `json:"dechetsUltimes"`
	Rows              int                           `json:"rows"`
}

// Category 某品类合计，不存在时为 0
func (r Row) Category(c taxonomy.Category) float64 {
	return r.ByCategory[c]
}

// SiteSummary 单个站点的汇总
type SiteSummary struct {
	Site   taxonomy.Site `json:"site"`
	Months map[int]Row   `json:"months"`
	Total  Row           `json:"total"`

	// 占全部站点同品类合计的比例，分母为 0 时为 0
	Percentages       map[taxonomy.Category]float64 `json:"percentages"`
	Share             float64                       `json:"share"`
	ShareExclTerminal float64                       `json:"shareExclTerminal"`
}

// Month 某月合计，无数据时返回空行
func (s *SiteSummary) Month(month int) Row {
	if r, ok := s.Months[month]; ok {
		return r
	}
	return Row{ByCategory: map[taxonomy.Category]float64{}}
}

// Summary 聚合结果，导出、对账与接口共用同一份数据
type Summary struct {
	Year      int                   `json:"year"` // 0 表示跨年
	Sites     []*SiteSummary        `json:"sites"`
	Grand     Row                   `json:"grand"`
	Months    []int                 `json:"months"`
	Cells     []model.AggregateCell `json:"cells"`
	Records   int                   `json:"records"`
	FirstDate time.Time             `json:"firstDate"`
	LastDate  time.Time             `json:"lastDate"`
}

// Site 查找站点汇总
func (s *Summary) Site(site taxonomy.Site) *SiteSummary {
	for _, ss := range s.Sites {
		if ss.Site == site {
			return ss
		}
	}
	return nil
}

// SiteNames 有序站点列表
func (s *Summary) SiteNames() []taxonomy.Site {
	out := make([]taxonomy.Site, len(s.Sites))
	for i, ss := range s.Sites {
		out[i] = ss.Site
	}
	return out
}

// Empty 是否没有任何数据
func (s *Summary) Empty() bool {
	return len(s.Cells) == 0
}

type cellKey struct {
	year     int
	month    int
	site     taxonomy.Site
	category taxonomy.Category
}

type cellAcc struct {
	mass Mass
	rows int
}

// BuildCells 按 (年, 月, 站点, 品类) 分组求和
func BuildCells(records []model.NormalizedRecord) []model.AggregateCell {
	acc := make(map[cellKey]*cellAcc)
	for _, r := range records {
		k := cellKey{year: r.Year, month: r.Month, site: r.Site, category: r.Category}
		a, ok := acc[k]
		if !ok {
			a = &cellAcc{}
			acc[k] = a
		}
		a.mass = a.mass.Add(MassOf(r.WeightKg))
		a.rows++
	}

	cells := make([]model.AggregateCell, 0, len(acc))
	for k, a := range acc {
		cells = append(cells, model.AggregateCell{
			Year:     k.year,
			Month:    k.month,
			Site:     k.site,
			Category: k.category,
			WeightKg: a.mass.Float64(),
			Rows:     a.rows,
		})
	}
	sortCells(cells)
	return cells
}

func sortCells(cells []model.AggregateCell) {
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		return a.Category < b.Category
	})
}

// Aggregate 由归一化记录计算完整汇总（纯函数）
func Aggregate(records []model.NormalizedRecord) *Summary {
	s := FromCells(BuildCells(records))
	s.Records = len(records)
	for _, r := range records {
		if s.FirstDate.IsZero() || r.Date.Before(s.FirstDate) {
			s.FirstDate = r.Date
		}
		if r.Date.After(s.LastDate) {
			s.LastDate = r.Date
		}
	}
	return s
}

type rowAcc struct {
	cats map[taxonomy.Category]Mass
	rows int
}

func newRowAcc() *rowAcc {
	return &rowAcc{cats: make(map[taxonomy.Category]Mass)}
}

func (a *rowAcc) add(c model.AggregateCell) {
	a.cats[c.Category] = a.cats[c.Category].Add(MassOf(c.WeightKg))
	a.rows += c.Rows
}

func (a *rowAcc) row() Row {
	var total Mass
	byCat := make(map[taxonomy.Category]float64, len(a.cats))
	for c, m := range a.cats {
		byCat[c] = m.Float64()
		total = total.Add(m)
	}
	excl := total.Sub(a.cats[taxonomy.Massicot]).Sub(a.cats[taxonomy.Demantelement])
	return Row{
		ByCategory:        byCat,
		Total:             total.Float64(),
		TotalExclTerminal: excl.Float64(),
		DechetsUltimes:    a.cats[taxonomy.DechetsUltimes].Float64(),
		Rows:              a.rows,
	}
}

// FromCells 由聚合单元计算站点合计、总计与百分比
func FromCells(cells []model.AggregateCell) *Summary {
	siteTotals := make(map[taxonomy.Site]*rowAcc)
	siteMonths := make(map[taxonomy.Site]map[int]*rowAcc)
	grand := newRowAcc()
	months := make(map[int]bool)
	years := make(map[int]bool)

	for _, c := range cells {
		if _, ok := siteTotals[c.Site]; !ok {
			siteTotals[c.Site] = newRowAcc()
			siteMonths[c.Site] = make(map[int]*rowAcc)
		}
		m, ok := siteMonths[c.Site][c.Month]
		if !ok {
			m = newRowAcc()
			siteMonths[c.Site][c.Month] = m
		}
		m.add(c)
		siteTotals[c.Site].add(c)
		grand.add(c)
		months[c.Month] = true
		years[c.Year] = true
	}

	sorted := append([]model.AggregateCell(nil), cells...)
	sortCells(sorted)

	s := &Summary{Grand: grand.row(), Cells: sorted}
	if len(years) == 1 {
		for y := range years {
			s.Year = y
		}
	}
	for m := 1; m <= 12; m++ {
		if months[m] {
			s.Months = append(s.Months, m)
		}
	}

	sites := make([]taxonomy.Site, 0, len(siteTotals))
	for site := range siteTotals {
		sites = append(sites, site)
	}
	for _, site := range taxonomy.OrderSites(sites) {
		ss := &SiteSummary{
			Site:        site,
			Months:      make(map[int]Row),
			Total:       siteTotals[site].row(),
			Percentages: make(map[taxonomy.Category]float64),
		}
		for m, acc := range siteMonths[site] {
			ss.Months[m] = acc.row()
		}
		for _, c := range taxonomy.AllCategories() {
			ss.Percentages[c] = ratio(ss.Total.Category(c), s.Grand.Category(c))
		}
		ss.Share = ratio(ss.Total.Total, s.Grand.Total)
		ss.ShareExclTerminal = ratio(ss.Total.TotalExclTerminal, s.Grand.TotalExclTerminal)
		s.Sites = append(s.Sites, ss)
	}
	return s
}

func ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole
}
