package store

import (
	"fmt"

	"collectes/internal/model"
	"collectes/internal/taxonomy"
)

// ReplaceAggregates 整体替换某年的聚合表（先删后插，同一事务）；year 为 0 时替换全部
func (s *Store) ReplaceAggregates(year int, cells []model.AggregateCell) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	where, args := yearFilter("year", year)
	if _, err := tx.Exec("DELETE FROM aggregates WHERE 1=1"+where, args...); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO aggregates (year, month, site, category, weight_kg, rows)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range cells {
		if year > 0 && c.Year != year {
			return fmt.Errorf("aggregate cell year %d outside rebuild year %d", c.Year, year)
		}
		if _, err := stmt.Exec(c.Year, c.Month, string(c.Site), string(c.Category), c.WeightKg, c.Rows); err != nil {
			return fmt.Errorf("failed to insert aggregate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAggregates 读取聚合表
func (s *Store) ListAggregates(year int) ([]model.AggregateCell, error) {
	where, args := yearFilter("year", year)
	rows, err := s.db.Query(`
		SELECT year, month, site, category, weight_kg, rows
		FROM aggregates WHERE 1=1`+where+`
		ORDER BY year, month, site, category
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var out []model.AggregateCell
	for rows.Next() {
		var c model.AggregateCell
		var site, category string
		if err := rows.Scan(&c.Year, &c.Month, &site, &category, &c.WeightKg, &c.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		c.Site = taxonomy.Site(site)
		c.Category = taxonomy.Category(category)
		out = append(out, c)
	}
	return out, rows.Err()
}
