package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// excelEpoch 表格序列日期零点（兼容 1900 闰年错误）
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// dateLayouts 文本日期格式，日在前
var dateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2T15:04:05",
	"2006-1-2T15:04:05Z07:00",
	"2006/1/2",
	"2/1/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/06",
	"2-1-2006",
	"2-1-2006 15:04:05",
	"2.1.2006",
}

// ParseDate 解析日期：表格序列号或多种文本格式
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(v)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return validYear(t)
		}
	}
	return time.Time{}, false
}

func fromSerial(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return time.Time{}, false
	}
	days := math.Floor(v)
	secs := math.Round((v - days) * 86400)
	t := excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second)
	return validYear(t)
}

func validYear(t time.Time) (time.Time, bool) {
	if t.Year() < 1900 || t.Year() > 2200 {
		return time.Time{}, false
	}
	return t, true
}

var weightNoise = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "")

// ParseWeight 解析重量（kg），容忍逗号小数与千分位，负数或非数值视为无效
func ParseWeight(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "kg") {
		s = strings.TrimSpace(s[:len(s)-2])
	}
	s = weightNoise.Replace(s)
	if s == "" {
		return 0, false
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

var spaces = regexp.MustCompile(`\s+`)

// NormalizeColumnName 规范化列名：去首尾空白、换行，压缩空白
func NormalizeColumnName(name string) string {
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.ReplaceAll(name, "\t", " ")
	return spaces.ReplaceAllString(strings.TrimSpace(name), " ")
}

// cell 越界安全取值
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
