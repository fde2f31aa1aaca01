package store

import (
	"fmt"

	"collectes/internal/model"
)

// CreateImportLog 创建导入日志，返回 import_log_id
func (s *Store) CreateImportLog(batchID, filename, filePath string, fileSize int64, fileHash string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO import_logs (batch_id, filename, file_path, file_size, file_hash, status)
		VALUES (?, ?, ?, ?, ?, 'processing')
	`, batchID, filename, filePath, fileSize, fileHash)
	if err != nil {
		return 0, fmt.Errorf("failed to create import log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import log id: %w", err)
	}
	return id, nil
}

// UpdateImportLog 完成导入日志更新
func (s *Store) UpdateImportLog(l model.ImportLog) error {
	_, err := s.db.Exec(`
		UPDATE import_logs SET
			file_hash = ?,
			total_sheets = ?,
			imported_sheets = ?,
			skipped_sheets = ?,
			imported_rows = ?,
			error_rows = ?,
			status = ?,
			reason = ?,
			error_message = ?,
			completed_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, l.FileHash, l.TotalSheets, l.ImportedSheets, l.SkippedSheets, l.ImportedRows, l.ErrorRows,
		l.Status, l.Reason, l.ErrorMessage, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update import log: %w", err)
	}
	return nil
}

// ListImportLogs 最近的导入日志
func (s *Store) ListImportLogs(limit int) ([]model.ImportLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, batch_id, filename, file_hash, file_size, status, reason,
			total_sheets, imported_sheets, skipped_sheets, imported_rows, error_rows,
			error_message, created_at
		FROM import_logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer rows.Close()

	var out []model.ImportLog
	for rows.Next() {
		var l model.ImportLog
		if err := rows.Scan(&l.ID, &l.BatchID, &l.Filename, &l.FileHash, &l.FileSize, &l.Status, &l.Reason,
			&l.TotalSheets, &l.ImportedSheets, &l.SkippedSheets, &l.ImportedRows, &l.ErrorRows,
			&l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
