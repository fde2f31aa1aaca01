package store

import (
	"encoding/json"
	"fmt"

	"collectes/internal/model"
)

// InsertSheetMeta 写入 Sheet 元信息（用于追溯与容错）
func (s *Store) InsertSheetMeta(meta model.SheetMeta) error {
	if meta.MissingJSON == "" {
		meta.MissingJSON = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO sheets_meta (
			import_log_id, source_file,
			sheet_name, sheet_type, status,
			imported_rows, error_rows, blank_rows,
			missing_json, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.ImportLogID, meta.SourceFile,
		meta.SheetName, meta.SheetType, meta.Status,
		meta.ImportedRows, meta.ErrorRows, meta.BlankRows,
		meta.MissingJSON, meta.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sheets_meta: %w", err)
	}
	return nil
}

// ListSheetMeta 某次导入的 Sheet 元信息
func (s *Store) ListSheetMeta(importLogID int64) ([]model.SheetMeta, error) {
	rows, err := s.db.Query(`
		SELECT import_log_id, source_file, sheet_name, sheet_type, status,
			imported_rows, error_rows, blank_rows, missing_json, error_message
		FROM sheets_meta WHERE import_log_id = ? ORDER BY id
	`, importLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sheets_meta: %w", err)
	}
	defer rows.Close()

	var out []model.SheetMeta
	for rows.Next() {
		var m model.SheetMeta
		if err := rows.Scan(&m.ImportLogID, &m.SourceFile, &m.SheetName, &m.SheetType, &m.Status,
			&m.ImportedRows, &m.ErrorRows, &m.BlankRows, &m.MissingJSON, &m.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan sheets_meta: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BuildColumnsJSON 将列名序列化为 JSON（避免上层重复处理）
func BuildColumnsJSON(columns []string) string {
	b, err := json.Marshal(columns)
	if err != nil {
		return "[]"
	}
	return string(b)
}
