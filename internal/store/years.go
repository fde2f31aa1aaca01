package store

import "fmt"

// YearStat 可用年份统计
type YearStat struct {
	Year     int     `json:"year"`
	Records  int     `json:"records"`
	Files    int     `json:"files"`
	WeightKg float64 `json:"weightKg"`
}

// ListYears 列出存在记录的年份（倒序）
func (s *Store) ListYears() ([]YearStat, error) {
	rows, err := s.db.Query(`
		SELECT year, COUNT(1), COUNT(DISTINCT file_id), COALESCE(SUM(weight_kg), 0)
		FROM records
		GROUP BY year
		ORDER BY year DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query available years failed: %w", err)
	}
	defer rows.Close()

	var out []YearStat
	for rows.Next() {
		var it YearStat
		if err := rows.Scan(&it.Year, &it.Records, &it.Files, &it.WeightKg); err != nil {
			return nil, fmt.Errorf("scan available years failed: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate available years failed: %w", err)
	}
	return out, nil
}

// LatestYear 最新有数据的年份，无数据返回 ErrNotFound
func (s *Store) LatestYear() (int, error) {
	years, err := s.ListYears()
	if err != nil {
		return 0, err
	}
	if len(years) == 0 {
		return 0, ErrNotFound
	}
	return years[0].Year, nil
}
