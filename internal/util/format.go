package util

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var frPrinter = message.NewPrinter(language.French)

// FormatKg 千分位格式化重量（kg）
func FormatKg(kg float64) string {
	return frPrinter.Sprintf("%.1f kg", kg)
}

// FormatTonnes 以吨为单位格式化
func FormatTonnes(kg float64) string {
	return frPrinter.Sprintf("%.3f t", kg/1000)
}

// FormatWeight 按单位格式化重量，unit 为 t 或 kg
func FormatWeight(kg float64, unit string) string {
	if strings.EqualFold(unit, "t") {
		return FormatTonnes(kg)
	}
	return FormatKg(kg)
}

// FormatPercent 格式化带符号的变化率
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return frPrinter.Sprintf("%s%.2f%%", sign, value*100)
}

// FormatShare 格式化占比
func FormatShare(ratio float64) string {
	return frPrinter.Sprintf("%.2f%%", ratio*100)
}
