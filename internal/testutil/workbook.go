// Package testutil 测试用工作簿构造
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// Header 标准输入表头
var Header = []any{"Date", "Lieu collecte", "Catégorie", "Sous Catégorie", "Flux", "Orientation", "Poids"}

// Sheet 一个工作表：名称 + 行（含表头）
type Sheet struct {
	Name string
	Rows [][]any
}

// Row 按标准表头顺序构造一行
func Row(date any, location, category, sub, flux, orientation string, weight any) []any {
	return []any{date, location, category, sub, flux, orientation, weight}
}

// WriteWorkbook 在临时目录生成 xlsx 并返回路径
func WriteWorkbook(t testing.TB, filename string, sheets ...Sheet) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), filename)
	WriteWorkbookTo(t, path, sheets...)
	return path
}

// WriteWorkbookTo 在指定路径生成 xlsx
func WriteWorkbookTo(t testing.TB, path string, sheets ...Sheet) {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			t.Fatalf("new sheet %s: %v", sh.Name, err)
		}
		for r, row := range sh.Rows {
			cellRef, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			row := row
			if err := f.SetSheetRow(sh.Name, cellRef, &row); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}
