package taxonomy

import (
	"regexp"
	"strings"
)

// Rule 命中的分类规则（诊断输出用）
type Rule string

const (
	RuleEmptyCategory Rule = "empty_category"
	RuleOrientation   Rule = "orientation"
	RuleTerminalFlux  Rule = "terminal_flux"
	RuleEvacuation    Rule = "evacuation"
	RuleFlux          Rule = "flux"
	RuleElectroGames  Rule = "games_electro"
	RulePAMOverride   Rule = "pam_override"
	RuleName          Rule = "name"
	RuleSubstring     Rule = "substring"
	RuleUnmapped      Rule = "unmapped"
)

// Classification 分类结果
type Classification struct {
	Category Category `json:"category"`
	Rule     Rule     `json:"rule"`
	MainName string   `json:"mainName,omitempty"`
}

// Input 一条记录的分类输入
type Input struct {
	Category    string
	SubCategory string
	Flux        string
	Orientation string
}

var (
	numericPrefix = regexp.MustCompile(`^\d+\s*\.?\s*`)
	parenthetical = regexp.MustCompile(`\([^)]*\)?`)
)

var fluxCategories = map[string]Category{
	"JOUETS": Jouets,
	"ABJ":    ABJ,
	"TLC":    Textile,
	"DEEE":   Electro,
}

type nameRule struct {
	key      string
	category Category
}

// nameRules 主品类名 → 品类；子串匹配按此顺序进行
var nameRules = []nameRule{
	{"MEUBLES", Meubles},
	{"ELECTRO", Electro},
	{"PAM", Electro},
	{"CHINE", Chine},
	{"VAISSELLE", Vaisselle},
	{"JOUETS", Jouets},
	{"JEUX/JOUETS", Jouets},
	{"JEUX", Jouets},
	{"PAPETERIE", Papeterie},
	{"LIVRES", Livres},
	{"CADRES", Cadres},
	{"ASL", ASL},
	{"SPORTS", ASL},
	{"SPORTS-LOISIRS", ASL},
	{"PUERICULTURE", Puericulture},
	{"CD/DVD", CDDVDK7},
	{"CD", CDDVDK7},
	{"MERCERIE", Mercerie},
	{"TEXTILE", Textile},
	{"TEXTILES", Textile},
	{"CHAUSSURES", Textile},
	{"SACS", Textile},
	{"BRICOLAGE", ABJ},
	{"LABEL", Label},
	{"ENCOMBRANT", DechetsUltimes},
	{"EVACUATION", DechetsUltimes},
	{"METAUX", DechetsUltimes},
}

var nameIndex = func() map[string]Category {
	m := make(map[string]Category, len(nameRules))
	for _, r := range nameRules {
		m[r.key] = r.category
	}
	return m
}()

// MainName 去掉数字前缀与括号内容后的主品类名，如 "4.BRICOLAGE ( EMMA'TEK)" → "BRICOLAGE"
func MainName(category string) string {
	name := upperKey(category)
	name = numericPrefix.ReplaceAllString(name, "")
	name = parenthetical.ReplaceAllString(name, "")
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	return strings.Join(strings.Fields(name), " ")
}

// Classify 四元组 → 标准品类，纯函数
func Classify(category, subCategory, flux, orientation string) Category {
	return ClassifyExplain(Input{
		Category:    category,
		SubCategory: subCategory,
		Flux:        flux,
		Orientation: orientation,
	}).Category
}

// ClassifyExplain 分类并返回命中的规则，规则顺序即优先级
func ClassifyExplain(in Input) Classification {
	if isNullLike(in.Category) {
		return Classification{Category: Autres, Rule: RuleEmptyCategory}
	}

	orientation := upperKey(in.Orientation)
	flux := upperKey(in.Flux)
	sub := upperKey(in.SubCategory)
	if isNullLike(in.Flux) {
		flux = ""
	}
	if isNullLike(in.SubCategory) {
		sub = ""
	}
	if isNullLike(in.Orientation) {
		orientation = ""
	}

	switch orientation {
	case "MASSICOT", "MASICOT":
		return Classification{Category: Massicot, Rule: RuleOrientation}
	case "DEMANTELEMENT", "DEMANTELLEMENT":
		return Classification{Category: Demantelement, Rule: RuleOrientation}
	}

	if orientation == "DECHETS ULTIMES" || flux == "DECHETS ULTIMES" {
		return Classification{Category: DechetsUltimes, Rule: RuleTerminalFlux}
	}

	if strings.Contains(upperKey(in.Category), "EVACUATION") {
		return Classification{Category: DechetsUltimes, Rule: RuleEvacuation}
	}

	if c, ok := fluxCategories[flux]; ok {
		return Classification{Category: c, Rule: RuleFlux}
	}

	name := MainName(in.Category)
	res := Classification{MainName: name}

	switch name {
	case "JEUX/JOUETS", "JEUX", "JOUETS":
		if strings.Contains(flux, "DEEE") || strings.Contains(sub, "ELECTRIQUE") || strings.Contains(sub, "ELECTRONIQUE") {
			res.Category, res.Rule = Electro, RuleElectroGames
			return res
		}
	case "PAM":
		// 与默认映射结果相同，单独记录命中次数
		if strings.Contains(sub, "ECRAN") || strings.Contains(sub, "LUMINAIRE") {
			res.Category, res.Rule = Electro, RulePAMOverride
			return res
		}
	}

	if c, ok := nameIndex[name]; ok {
		res.Category, res.Rule = c, RuleName
		return res
	}

	if name != "" {
		for _, r := range nameRules {
			if strings.Contains(name, r.key) || strings.Contains(r.key, name) {
				res.Category, res.Rule = r.category, RuleSubstring
				return res
			}
		}
	}

	res.Category, res.Rule = Autres, RuleUnmapped
	return res
}
