package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetConfig 获取配置项
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("config key %s: %w", key, ErrNotFound)
		}
		return "", err
	}
	return value, nil
}

// SetConfig 设置配置项
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value)
	return err
}

// GetConfigTime 获取时间配置项（RFC3339）
func (s *Store) GetConfigTime(key string) (time.Time, error) {
	value, err := s.GetConfig(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetConfigTime 设置时间配置项
func (s *Store) SetConfigTime(key string, value time.Time) error {
	return s.SetConfig(key, value.UTC().Format(time.RFC3339))
}
