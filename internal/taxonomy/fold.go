package taxonomy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldKey 比较用：去首尾空白、去重音、大小写折叠、压缩空白
func foldKey(s string) string {
	s = stripAccents(strings.TrimSpace(s))
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// upperKey 规则匹配用：去首尾空白、去重音、转大写
func upperKey(s string) string {
	s = stripAccents(strings.TrimSpace(s))
	return cases.Upper(language.French).String(s)
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// isNullLike 空值或表格导出的空值占位
func isNullLike(s string) bool {
	switch upperKey(s) {
	case "", "NAN", "NONE", "NULL", "NAT":
		return true
	}
	return false
}
