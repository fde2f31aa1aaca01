package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"collectes/internal/model"
	"collectes/internal/taxonomy"
)

const dateLayout = "2006-01-02 15:04:05"

// FindImportFileByHash 按内容哈希查找已导入文件
func (s *Store) FindImportFileByHash(hash string) (*model.ImportFile, error) {
	row := s.db.QueryRow(`
		SELECT id, batch_id, filename, file_hash, file_size, row_count, excluded_count,
			sheet_count, skipped_sheets, rules_version, imported_at
		FROM import_files WHERE file_hash = ?
	`, hash)
	f, err := scanImportFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query import file: %w", err)
	}
	return f, nil
}

// ListImportFiles 已导入文件列表
func (s *Store) ListImportFiles() ([]model.ImportFile, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, filename, file_hash, file_size, row_count, excluded_count,
			sheet_count, skipped_sheets, rules_version, imported_at
		FROM import_files ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query import files: %w", err)
	}
	defer rows.Close()

	var out []model.ImportFile
	for rows.Next() {
		f, err := scanImportFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImportFile(r rowScanner) (*model.ImportFile, error) {
	var f model.ImportFile
	var importedAt sql.NullTime
	if err := r.Scan(&f.ID, &f.BatchID, &f.Filename, &f.FileHash, &f.FileSize, &f.RowCount, &f.ExcludedCount,
		&f.SheetCount, &f.SkippedSheets, &f.RulesVersion, &importedAt); err != nil {
		return nil, err
	}
	if importedAt.Valid {
		f.ImportedAt = importedAt.Time
	}
	return &f, nil
}

// ReplaceFileImport 在一个事务内写入文件及其记录；同哈希的旧导入先整体删除
func (s *Store) ReplaceFileImport(file *model.ImportFile, records []model.NormalizedRecord, excluded []model.ExcludedRow) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldID int64
	err = tx.QueryRow("SELECT id FROM import_files WHERE file_hash = ?", file.FileHash).Scan(&oldID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to look up previous import: %w", err)
	default:
		if err := deleteFileTx(tx, oldID); err != nil {
			return 0, err
		}
	}

	res, err := tx.Exec(`
		INSERT INTO import_files (
			batch_id, filename, file_hash, file_size, row_count, excluded_count,
			sheet_count, skipped_sheets, rules_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, file.BatchID, file.Filename, file.FileHash, file.FileSize, len(records), len(excluded),
		file.SheetCount, file.SkippedSheets, file.RulesVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to insert import file: %w", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get import file id: %w", err)
	}

	if err := insertRecordsTx(tx, fileID, records); err != nil {
		return 0, err
	}
	if err := insertExcludedTx(tx, fileID, excluded); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	file.ID = fileID
	file.RowCount = len(records)
	file.ExcludedCount = len(excluded)
	return fileID, nil
}

// DeleteFile 删除文件及其全部记录
func (s *Store) DeleteFile(fileID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileTx(tx, fileID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteFileTx(tx *sql.Tx, fileID int64) error {
	for _, q := range []string{
		"DELETE FROM records WHERE file_id = ?",
		"DELETE FROM excluded_rows WHERE file_id = ?",
		"DELETE FROM import_files WHERE id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("failed to delete previous import %d: %w", fileID, err)
		}
	}
	return nil
}

func insertRecordsTx(tx *sql.Tx, fileID int64, records []model.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (
			file_id, source_file, source_sheet, row_index,
			date, date_raw, year, month,
			location_raw, category_raw, sub_category_raw, flux_raw, orientation_raw,
			weight_kg, site, site_match, category, category_rule
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(
			fileID, r.SourceFile, r.SourceSheet, r.RowIndex,
			r.Date.Format(dateLayout), r.DateRaw, r.Year, r.Month,
			r.LocationRaw, r.CategoryRaw, r.SubCategoryRaw, r.FluxRaw, r.OrientationRaw,
			r.WeightKg, string(r.Site), string(r.SiteMatch), string(r.Category), string(r.CategoryRule),
		); err != nil {
			return fmt.Errorf("failed to insert record %s/%d: %w", r.SourceSheet, r.RowIndex, err)
		}
	}
	return nil
}

func insertExcludedTx(tx *sql.Tx, fileID int64, excluded []model.ExcludedRow) error {
	if len(excluded) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO excluded_rows (
			file_id, source_file, source_sheet, row_index, reason,
			date_raw, weight_raw, weight_kg, weight_valid, year
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range excluded {
		valid := 0
		if e.WeightValid {
			valid = 1
		}
		if _, err := stmt.Exec(
			fileID, e.SourceFile, e.SourceSheet, e.RowIndex, string(e.Reason),
			e.DateRaw, e.WeightRaw, e.WeightKg, valid, e.Year,
		); err != nil {
			return fmt.Errorf("failed to insert excluded row %s/%d: %w", e.SourceSheet, e.RowIndex, err)
		}
	}
	return nil
}

// ListRecords 读取某年的归一化记录，year 为 0 时读取全部
func (s *Store) ListRecords(year int) ([]model.NormalizedRecord, error) {
	where, args := yearFilter("year", year)
	rows, err := s.db.Query(`
		SELECT id, file_id, source_file, source_sheet, row_index,
			date, date_raw, year, month,
			location_raw, category_raw, sub_category_raw, flux_raw, orientation_raw,
			weight_kg, site, site_match, category, category_rule
		FROM records WHERE 1=1`+where+`
		ORDER BY date, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.NormalizedRecord
	for rows.Next() {
		var r model.NormalizedRecord
		var date, site, siteMatch, category, rule string
		if err := rows.Scan(&r.ID, &r.FileID, &r.SourceFile, &r.SourceSheet, &r.RowIndex,
			&date, &r.DateRaw, &r.Year, &r.Month,
			&r.LocationRaw, &r.CategoryRaw, &r.SubCategoryRaw, &r.FluxRaw, &r.OrientationRaw,
			&r.WeightKg, &site, &siteMatch, &category, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q for record %d: %w", date, r.ID, err)
		}
		r.Date = t
		r.Site = taxonomy.Site(site)
		r.SiteMatch = taxonomy.SiteMatch(siteMatch)
		r.Category = taxonomy.Category(category)
		r.CategoryRule = taxonomy.Rule(rule)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRecords 记录条数
func (s *Store) CountRecords(year int) (int, error) {
	where, args := yearFilter("year", year)
	var n int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM records WHERE 1=1"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// SumRecords 记录重量合计（kg）
func (s *Store) SumRecords(year int) (float64, error) {
	where, args := yearFilter("year", year)
	var total float64
	if err := s.db.QueryRow("SELECT COALESCE(SUM(weight_kg), 0) FROM records WHERE 1=1"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum records: %w", err)
	}
	return total, nil
}

// ListExcluded 被剔除的行；year 为 0 时读取全部
func (s *Store) ListExcluded(year int) ([]model.ExcludedRow, error) {
	where, args := yearFilter("year", year)
	rows, err := s.db.Query(`
		SELECT file_id, source_file, source_sheet, row_index, reason,
			date_raw, weight_raw, weight_kg, weight_valid, year
		FROM excluded_rows WHERE 1=1`+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded rows: %w", err)
	}
	defer rows.Close()

	var out []model.ExcludedRow
	for rows.Next() {
		var e model.ExcludedRow
		var reason string
		var valid int
		if err := rows.Scan(&e.FileID, &e.SourceFile, &e.SourceSheet, &e.RowIndex, &reason,
			&e.DateRaw, &e.WeightRaw, &e.WeightKg, &valid, &e.Year); err != nil {
			return nil, fmt.Errorf("failed to scan excluded row: %w", err)
		}
		e.Reason = model.ExclusionReason(reason)
		e.WeightValid = valid == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// FileYears 某个已导入文件涉及的年份
func (s *Store) FileYears(fileID int64) ([]int, error) {
	rows, err := s.db.Query(`
		SELECT year FROM records WHERE file_id = ?
		UNION
		SELECT year FROM excluded_rows WHERE file_id = ? AND year > 0
		ORDER BY year
	`, fileID, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan file year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
