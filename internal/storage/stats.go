package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// SetStat writes a single counter, creating it if needed.
func (s *Store) SetStat(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO system_stats (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()),
	)
	return err
}

// IncrementStat adds delta to an integer counter and returns the new value.
// A missing counter starts at zero.
func (s *Store) IncrementStat(key string, delta int) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning increment transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	current := 0
	err = tx.QueryRow(`SELECT value FROM system_stats WHERE key = ?`, key).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return 0, err
	default:
		if current, err = strconv.Atoi(raw); err != nil {
			return 0, fmt.Errorf("stat %s is not an integer: %w", key, err)
		}
	}

	next := current + delta
	if _, err := tx.Exec(`
		INSERT INTO system_stats (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.Itoa(next), formatTime(time.Now())); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// GetStats reads every counter into a SystemStats. Missing keys stay zero.
func (s *Store) GetStats() (SystemStats, error) {
	rows, err := s.db.Query(`SELECT key, value FROM system_stats`)
	if err != nil {
		return SystemStats{}, err
	}
	defer rows.Close()

	var st SystemStats
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return SystemStats{}, err
		}
		if err := st.set(key, value); err != nil {
			return SystemStats{}, fmt.Errorf("stat %s: %w", key, err)
		}
	}
	return st, rows.Err()
}

func (st *SystemStats) set(key, value string) error {
	var err error
	switch key {
	case StatDocumentsProcessed:
		st.DocumentsProcessed, err = strconv.Atoi(value)
	case StatTotalQueries:
		st.TotalQueries, err = strconv.Atoi(value)
	case StatActiveAgents:
		st.ActiveAgents, err = strconv.Atoi(value)
	case StatSuccessRate:
		st.SuccessRate, err = strconv.ParseFloat(value, 64)
	case StatAverageResponseTime:
		st.AverageResponseTime = value
	case StatKnowledgeBaseSizeMB:
		st.KnowledgeBaseSizeMB, err = strconv.Atoi(value)
	}
	return err
}
