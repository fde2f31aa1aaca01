package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	fillHeader   = "D9E1F2"
	fillTerminal = "D3D3D3"

	numFmtKg      = "#,##0"
	numFmtPercent = 10 // 0.00%
)

type styles struct {
	title       int
	header      int
	month       int
	total       int
	number      int
	terminal    int
	totalNumber int
	percent     int
}

func solidFill(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
}

func newStyles(f *excelize.File) (styles, error) {
	kg := numFmtKg
	var st styles
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.title, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
		{&st.header, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: solidFill(fillHeader)}},
		{&st.month, &excelize.Style{Fill: solidFill(fillHeader)}},
		{&st.total, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: solidFill(fillHeader)}},
		{&st.number, &excelize.Style{CustomNumFmt: &kg}},
		{&st.terminal, &excelize.Style{CustomNumFmt: &kg, Fill: solidFill(fillTerminal)}},
		{&st.totalNumber, &excelize.Style{CustomNumFmt: &kg, Font: &excelize.Font{Bold: true}, Fill: solidFill(fillHeader)}},
		{&st.percent, &excelize.Style{NumFmt: numFmtPercent}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return styles{}, fmt.Errorf("failed to create style: %w", err)
		}
		*d.dst = id
	}
	return st, nil
}
