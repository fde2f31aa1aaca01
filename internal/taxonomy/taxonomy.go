package taxonomy

import (
	"sort"
	"strings"
)

// Version 分类规则版本，规则表任何改动都需要递增
const Version = "2025.3"

// Site 标准化后的回收站点
type Site string

// 标准站点
const (
	SitePepiniere   Site = "Pépinière"
	SiteSanssac     Site = "Sanssac"
	SiteStGermain   Site = "St Germain"
	SitePolignac    Site = "Polignac"
	SiteYssingeaux  Site = "Yssingeaux"
	SiteBasEnBasset Site = "Bas-en-Basset"
	SiteMonistrol   Site = "Monistrol"
)

// DefaultSite 主站点，无法识别的地点归入此处
const DefaultSite = SitePepiniere

// StandardSites 已知站点
var StandardSites = []Site{
	SitePepiniere, SiteSanssac, SiteStGermain, SitePolignac,
	SiteYssingeaux, SiteBasEnBasset, SiteMonistrol,
}

// ReportSites 报表固定顺序，其余站点按字母顺序追加
var ReportSites = []Site{SitePepiniere, SiteSanssac, SiteStGermain, SitePolignac}

var siteAbbreviations = map[Site]string{
	SitePepiniere:   "PEP",
	SiteSanssac:     "SAN",
	SiteStGermain:   "STG",
	SitePolignac:    "POL",
	SiteYssingeaux:  "YSS",
	SiteBasEnBasset: "BAS",
	SiteMonistrol:   "MON",
}

// Abbreviation 站点缩写（百分比行使用）
func (s Site) Abbreviation() string {
	if abbr, ok := siteAbbreviations[s]; ok {
		return abbr
	}
	name := []rune(strings.ReplaceAll(upperKey(string(s)), " ", ""))
	if len(name) > 3 {
		name = name[:3]
	}
	return string(name)
}

// OrderSites 固定站点在前，其余按字母顺序
func OrderSites(sites []Site) []Site {
	present := make(map[Site]bool, len(sites))
	for _, s := range sites {
		present[s] = true
	}

	ordered := make([]Site, 0, len(present))
	for _, s := range ReportSites {
		if present[s] {
			ordered = append(ordered, s)
			delete(present, s)
		}
	}

	extra := make([]Site, 0, len(present))
	for s := range present {
		extra = append(extra, s)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(ordered, extra...)
}

// Category 标准化后的品类
type Category string

// 常规品类
const (
	Meubles      Category = "MEUBLES"
	Electro      Category = "ELECTRO"
	Chine        Category = "CHINE"
	Vaisselle    Category = "VAISSELLE"
	Jouets       Category = "JOUETS"
	Papeterie    Category = "PAPETERIE"
	Livres       Category = "LIVRES"
	Cadres       Category = "CADRES"
	ASL          Category = "ASL"
	Puericulture Category = "PUERICULTURE"
	ABJ          Category = "ABJ"
	CDDVDK7      Category = "CD/DVD/K7"
	Mercerie     Category = "MERCERIE"
	Textile      Category = "TEXTILE"
	Label        Category = "LABEL"
)

// 终端流向与兜底
const (
	Massicot       Category = "MASSICOT"
	Demantelement  Category = "DEMANTELEMENT"
	DechetsUltimes Category = "DECHETS ULTIMES"
	Autres         Category = "AUTRES"
)

// RegularCategories 常规品类
var RegularCategories = []Category{
	Meubles, Electro, Chine, Vaisselle, Jouets, Papeterie, Livres,
	Cadres, ASL, Puericulture, ABJ, CDDVDK7, Mercerie, Textile, Label,
}

// TerminalCategories 终端流向
var TerminalCategories = []Category{Massicot, Demantelement, DechetsUltimes}

// ReportColumns 报表品类列顺序，之后依次为 TOTAL、不含终端流向合计、DECHETS ULTIMES
var ReportColumns = []Category{
	Meubles, Electro, Demantelement, Chine, Vaisselle, Jouets, Papeterie, Livres,
	Massicot, Cadres, ASL, Puericulture, ABJ, CDDVDK7, Mercerie, Textile, Label, Autres,
}

// IsTerminal 是否终端流向
func (c Category) IsTerminal() bool {
	return c == Massicot || c == Demantelement || c == DechetsUltimes
}

// IsRegular 是否常规品类
func (c Category) IsRegular() bool {
	for _, r := range RegularCategories {
		if r == c {
			return true
		}
	}
	return false
}

// AllCategories 全部品类（常规 + 终端 + AUTRES）
func AllCategories() []Category {
	all := make([]Category, 0, len(RegularCategories)+len(TerminalCategories)+1)
	all = append(all, RegularCategories...)
	all = append(all, TerminalCategories...)
	return append(all, Autres)
}

// MonthNames 法文月份，日历顺序
var MonthNames = [12]string{
	"JANVIER", "FEVRIER", "MARS", "AVRIL", "MAI", "JUIN",
	"JUILLET", "AOUT", "SEPTEMBRE", "OCTOBRE", "NOVEMBRE", "DECEMBRE",
}

// MonthName 月份名，越界返回空串
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return MonthNames[month-1]
}
