package reconcile

import (
	"math"

	"collectes/internal/calculator"
	"collectes/internal/config"
	"collectes/internal/taxonomy"
)

// Status 对账状态
type Status string

const (
	StatusOK    Status = "OK"
	StatusWarn  Status = "WARN"
	StatusError Status = "ERROR"
)

func (s Status) rank() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// Worse 取两者中更严重的状态
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// 计量单位
const (
	UnitTonne = "t"
	UnitKg    = "kg"
)

// Thresholds 判定阈值，按 Unit 计
type Thresholds struct {
	OKTolerance        float64 `json:"okTolerance"`
	ErrorThreshold     float64 `json:"errorThreshold"`
	SiteErrorThreshold float64 `json:"siteErrorThreshold"`
	Unit               string  `json:"unit"`
}

// DefaultThresholds 默认阈值（吨）
func DefaultThresholds() Thresholds {
	return FromConfig(config.DefaultConfig().Reconcile)
}

// FromConfig 由配置构造阈值
func FromConfig(cfg config.ReconcileConfig) Thresholds {
	th := Thresholds{
		OKTolerance:        cfg.OKTolerance,
		ErrorThreshold:     cfg.ErrorThreshold,
		SiteErrorThreshold: cfg.SiteErrorThreshold,
		Unit:               cfg.Unit,
	}
	if th.Unit != UnitKg {
		th.Unit = UnitTonne
	}
	return th
}

func (th Thresholds) convert(kg float64) float64 {
	if th.Unit == UnitKg {
		return kg
	}
	return kg / 1000
}

func (th Thresholds) classify(diff, errorThreshold float64) Status {
	switch {
	case diff < th.OKTolerance:
		return StatusOK
	case diff < errorThreshold:
		return StatusWarn
	default:
		return StatusError
	}
}

// Line 单项比对结果
type Line struct {
	Name        string  `json:"name"`
	A           float64 `json:"a"`
	B           float64 `json:"b"`
	Diff        float64 `json:"diff"`
	DiffPercent float64 `json:"diffPercent"` // 相对 A
	Status      Status  `json:"status"`
}

func newLine(name string, aKg, bKg, errorThreshold float64, th Thresholds) Line {
	a, b := th.convert(aKg), th.convert(bKg)
	diff := math.Abs(a - b)
	l := Line{Name: name, A: a, B: b, Diff: diff, Status: th.classify(diff, errorThreshold)}
	if a > 0 {
		l.DiffPercent = diff / a * 100
	}
	return l
}

// Comparison 两份汇总的比对结果
type Comparison struct {
	Unit   string `json:"unit"`
	Grand  Line   `json:"grand"`
	Sites  []Line `json:"sites"`
	Status Status `json:"status"`
}

// Compare 比对总计与各站点合计（站点取并集），总体状态取最严重项
func Compare(a, b *calculator.Summary, th Thresholds) Comparison {
	c := Comparison{
		Unit:  th.Unit,
		Grand: newLine("TOTAL", a.Grand.Total, b.Grand.Total, th.ErrorThreshold, th),
	}
	c.Status = c.Grand.Status

	present := make(map[taxonomy.Site]bool)
	for _, s := range a.SiteNames() {
		present[s] = true
	}
	for _, s := range b.SiteNames() {
		present[s] = true
	}
	sites := make([]taxonomy.Site, 0, len(present))
	for s := range present {
		sites = append(sites, s)
	}

	for _, site := range taxonomy.OrderSites(sites) {
		l := newLine(string(site), siteTotal(a, site), siteTotal(b, site), th.SiteErrorThreshold, th)
		c.Sites = append(c.Sites, l)
		c.Status = Worse(c.Status, l.Status)
	}
	return c
}

func siteTotal(s *calculator.Summary, site taxonomy.Site) float64 {
	if ss := s.Site(site); ss != nil {
		return ss.Total.Total
	}
	return 0
}
