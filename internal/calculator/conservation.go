package calculator

import (
	"sort"

	"collectes/internal/model"
	"collectes/internal/taxonomy"
)

// balanceTolerance 守恒判定容差（kg）
const balanceTolerance = 1e-6

// Cause 质量缺口的归因
type Cause string

const (
	CauseInvalidDate   Cause = "invalid_date"
	CauseInvalidWeight Cause = "invalid_weight"
	CauseAutres        Cause = "autres"
)

// CauseBreakdown 单个原因的重量与行数；无效重量的行只有行数
type CauseBreakdown struct {
	Cause    Cause   `json:"cause"`
	WeightKg float64 `json:"weightKg"`
	Rows     int     `json:"rows"`
}

// AutresCombo 落入 AUTRES 的原始字段组合
type AutresCombo struct {
	Category    string  `json:"category"`
	SubCategory string  `json:"subCategory"`
	Flux        string  `json:"flux"`
	Orientation string  `json:"orientation"`
	WeightKg    float64 `json:"weightKg"`
	Rows        int     `json:"rows"`
}

// ConservationDiagnostic 各阶段质量快照
type ConservationDiagnostic struct {
	RawTotalKg           float64 `json:"rawTotalKg"`
	ExcludedByDateKg     float64 `json:"excludedByDateKg"`
	ExcludedByDateRows   int     `json:"excludedByDateRows"`
	ExcludedByWeightRows int     `json:"excludedByWeightRows"`
	AfterDateFilterKg    float64 `json:"afterDateFilterKg"`
	AfterMappingKg       float64 `json:"afterMappingKg"` // 映射到非 AUTRES 品类的重量
	AutresKg             float64 `json:"autresKg"`
	AutresRows           int     `json:"autresRows"`
	TerminalKg           float64 `json:"terminalKg"`
	GrandTotalKg         float64 `json:"grandTotalKg"`
	GapKg                float64 `json:"gapKg"` // AfterDateFilterKg - GrandTotalKg
	Balanced             bool    `json:"balanced"`

	Causes       []CauseBreakdown `json:"causes"`
	AutresCombos []AutresCombo    `json:"autresCombos,omitempty"`
}

// RawVsGrandGapKg 原始总量与最终总计之差，应完全由各原因解释
func (d ConservationDiagnostic) RawVsGrandGapKg() float64 {
	return MassOf(d.RawTotalKg).Sub(MassOf(d.GrandTotalKg)).Float64()
}

type comboKey struct {
	category, subCategory, flux, orientation string
}

// Diagnose 计算守恒诊断；grandTotalKg 为聚合路径得到的总计
func Diagnose(records []model.NormalizedRecord, excluded []model.ExcludedRow, grandTotalKg float64) ConservationDiagnostic {
	var valid, mapped, autres, terminal, byDate Mass
	var autresRows, byDateRows, byWeightRows int
	combos := make(map[comboKey]*AutresCombo)

	for _, r := range records {
		m := MassOf(r.WeightKg)
		valid = valid.Add(m)
		switch {
		case r.Category == taxonomy.Autres:
			autres = autres.Add(m)
			autresRows++
			k := comboKey{r.CategoryRaw, r.SubCategoryRaw, r.FluxRaw, r.OrientationRaw}
			c, ok := combos[k]
			if !ok {
				c = &AutresCombo{Category: k.category, SubCategory: k.subCategory, Flux: k.flux, Orientation: k.orientation}
				combos[k] = c
			}
			c.WeightKg = MassOf(c.WeightKg).Add(m).Float64()
			c.Rows++
		default:
			mapped = mapped.Add(m)
		}
		if r.Category.IsTerminal() {
			terminal = terminal.Add(m)
		}
	}

	for _, e := range excluded {
		switch e.Reason {
		case model.ExcludedInvalidDate:
			byDateRows++
			if e.WeightValid {
				byDate = byDate.Add(MassOf(e.WeightKg))
			}
		case model.ExcludedInvalidWeight:
			byWeightRows++
		}
	}

	grand := MassOf(grandTotalKg)
	gap := valid.Sub(grand)

	d := ConservationDiagnostic{
		RawTotalKg:           valid.Add(byDate).Float64(),
		ExcludedByDateKg:     byDate.Float64(),
		ExcludedByDateRows:   byDateRows,
		ExcludedByWeightRows: byWeightRows,
		AfterDateFilterKg:    valid.Float64(),
		AfterMappingKg:       mapped.Float64(),
		AutresKg:             autres.Float64(),
		AutresRows:           autresRows,
		TerminalKg:           terminal.Float64(),
		GrandTotalKg:         grandTotalKg,
		GapKg:                gap.Float64(),
		Balanced:             gap.Abs().Cmp(MassOf(balanceTolerance)) <= 0,
		Causes: []CauseBreakdown{
			{Cause: CauseInvalidDate, WeightKg: byDate.Float64(), Rows: byDateRows},
			{Cause: CauseInvalidWeight, Rows: byWeightRows},
			{Cause: CauseAutres, WeightKg: autres.Float64(), Rows: autresRows},
		},
	}

	for _, c := range combos {
		d.AutresCombos = append(d.AutresCombos, *c)
	}
	sort.Slice(d.AutresCombos, func(i, j int) bool {
		a, b := d.AutresCombos[i], d.AutresCombos[j]
		if a.WeightKg != b.WeightKg {
			return a.WeightKg > b.WeightKg
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.SubCategory != b.SubCategory {
			return a.SubCategory < b.SubCategory
		}
		if a.Flux != b.Flux {
			return a.Flux < b.Flux
		}
		return a.Orientation < b.Orientation
	})
	return d
}
