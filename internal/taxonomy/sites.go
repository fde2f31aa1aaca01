package taxonomy

import "strings"

// SiteMatch 站点匹配方式
type SiteMatch string

const (
	SiteMatchExact    SiteMatch = "exact"    // 变体表精确命中
	SiteMatchFolded   SiteMatch = "folded"   // 忽略大小写/重音后命中
	SiteMatchSentinel SiteMatch = "sentinel" // 现场投放类占位值
	SiteMatchEmpty    SiteMatch = "empty"    // 空值
	SiteMatchFallback SiteMatch = "fallback" // 无法识别，归入主站点
)

// SiteResolution 站点解析结果
type SiteResolution struct {
	Raw   string    `json:"raw"`
	Site  Site      `json:"site"`
	Match SiteMatch `json:"match"`
}

// Unmapped 是否走了兜底
func (r SiteResolution) Unmapped() bool {
	return r.Match == SiteMatchFallback
}

// siteVariants 地点原始写法 → 标准站点
var siteVariants = map[string]Site{
	"Pepiniere":          SitePepiniere,
	"pepiniere":          SitePepiniere,
	"Pépinière":          SitePepiniere,
	"pépinière":          SitePepiniere,
	"PEPINIERE":          SitePepiniere,
	"PÉPINIÈRE":          SitePepiniere,
	"Dech. La Pépiniere": SitePepiniere,
	"Dech. La Pepiniere": SitePepiniere,
	"Dech. la pépinière": SitePepiniere,
	"Dech. la Pépinière": SitePepiniere,
	"La Pépinière":       SitePepiniere,
	"La Pepiniere":       SitePepiniere,

	"Sanssac":        SiteSanssac,
	"sanssac":        SiteSanssac,
	"SANSSAC":        SiteSanssac,
	"Sansac":         SiteSanssac,
	"sansac":         SiteSanssac,
	"Dech. Sanssac":  SiteSanssac,
	"dech. sanssac":  SiteSanssac,
	"Dech. Sansac":   SiteSanssac,

	"St Germain":          SiteStGermain,
	"St-Germain":          SiteStGermain,
	"St. Germain":         SiteStGermain,
	"st germain":          SiteStGermain,
	"ST GERMAIN":          SiteStGermain,
	"Saint Germain":       SiteStGermain,
	"Saint-Germain":       SiteStGermain,
	"saint germain":       SiteStGermain,
	"st-germain":          SiteStGermain,
	"St-germain":          SiteStGermain,
	"Dech. Saint-Germain": SiteStGermain,
	"Dech. Saint Germain": SiteStGermain,
	"dech. saint germain": SiteStGermain,
	"Dech. Saint-germain": SiteStGermain,

	"Polignac":       SitePolignac,
	"polignac":       SitePolignac,
	"POLIGNAC":       SitePolignac,
	"Dech. Polignac": SitePolignac,
	"dech. polignac": SitePolignac,

	"Yssingeaux":       SiteYssingeaux,
	"yssingeaux":       SiteYssingeaux,
	"YSSINGEAUX":       SiteYssingeaux,
	"Dech. Yssingeaux": SiteYssingeaux,
	"dech. yssingeaux": SiteYssingeaux,

	"Bas-en-Basset":       SiteBasEnBasset,
	"Bas-en-basset":       SiteBasEnBasset,
	"bas-en-basset":       SiteBasEnBasset,
	"BAS-EN-BASSET":       SiteBasEnBasset,
	"Dech. Bas-en-basset": SiteBasEnBasset,
	"Dech. Bas-en-Basset": SiteBasEnBasset,
	"dech. bas-en-basset": SiteBasEnBasset,

	"Monistrol":       SiteMonistrol,
	"monistrol":       SiteMonistrol,
	"MONISTROL":       SiteMonistrol,
	"Dech. Monistrol": SiteMonistrol,
	"dech. monistrol": SiteMonistrol,
}

// siteSentinels 现场投放类写法（比较前已折叠）
var siteSentinels = map[string]bool{
	"apport volontaire":         true,
	"apport sur site":           true,
	"apport volontaire sur site": true,
	"apports volontaires":       true,
}

// foldedVariants 折叠后的变体表，初始化时由 siteVariants 生成
var foldedVariants = func() map[string]Site {
	m := make(map[string]Site, len(siteVariants))
	for raw, site := range siteVariants {
		m[foldKey(raw)] = site
	}
	for _, site := range StandardSites {
		m[foldKey(string(site))] = site
	}
	return m
}()

// ResolveSite 解析地点并返回匹配方式，供统计未识别站点
func ResolveSite(raw string) SiteResolution {
	res := SiteResolution{Raw: raw, Site: DefaultSite}

	if isNullLike(raw) {
		res.Match = SiteMatchEmpty
		return res
	}

	folded := foldKey(raw)
	if siteSentinels[folded] {
		res.Match = SiteMatchSentinel
		return res
	}

	trimmed := strings.TrimSpace(raw)
	if site, ok := siteVariants[trimmed]; ok {
		res.Site = site
		res.Match = SiteMatchExact
		return res
	}

	if site, ok := foldedVariants[folded]; ok {
		res.Site = site
		res.Match = SiteMatchFolded
		return res
	}

	res.Match = SiteMatchFallback
	return res
}

// NormalizeSite 地点 → 标准站点，永不失败
func NormalizeSite(raw string) Site {
	return ResolveSite(raw).Site
}
