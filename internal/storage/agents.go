package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

func (s *Store) SaveAgent(a Agent) error {
	specialties, err := encodeList(a.Specialties)
	if err != nil {
		return fmt.Errorf("encoding specialties: %w", err)
	}
	tools, err := encodeList(a.Tools)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO agents (id, name, description, enabled, specialties, tools, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			enabled = excluded.enabled,
			specialties = excluded.specialties,
			tools = excluded.tools,
			status = excluded.status`,
		a.ID, a.Name, a.Description, a.Enabled, specialties, tools, a.Status,
	)
	return err
}

func (s *Store) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT id, name, description, enabled, specialties, tools, status FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT id, name, description, enabled, specialties, tools, status FROM agents ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// SetAgentEnabled flips an agent on or off. Enabled agents go to idle,
// disabled ones to disabled.
func (s *Store) SetAgentEnabled(id string, enabled bool) error {
	status := AgentDisabled
	if enabled {
		status = AgentIdle
	}
	res, err := s.db.Exec(`UPDATE agents SET enabled = ?, status = ? WHERE id = ?`, enabled, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleAgent flips an agent's enabled flag and refreshes the active
// agent counter in one transaction. It returns the updated agent and the
// new number of enabled agents.
func (s *Store) ToggleAgent(id string) (*Agent, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("beginning toggle transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		UPDATE agents SET
			enabled = NOT enabled,
			status = CASE WHEN enabled THEN ? ELSE ? END
		WHERE id = ?
		RETURNING id, name, description, enabled, specialties, tools, status`,
		AgentDisabled, AgentIdle, id,
	)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM agents WHERE enabled = 1`).Scan(&n); err != nil {
		return nil, 0, fmt.Errorf("counting agents: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO system_stats (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StatActiveAgents, strconv.Itoa(n), formatTime(time.Now())); err != nil {
		return nil, 0, fmt.Errorf("updating active agents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return a, n, nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var specialties, tools string
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Enabled, &specialties, &tools, &a.Status); err != nil {
		return nil, err
	}
	var err error
	if a.Specialties, err = decodeList(specialties); err != nil {
		return nil, fmt.Errorf("decoding specialties for agent %s: %w", a.ID, err)
	}
	if a.Tools, err = decodeList(tools); err != nil {
		return nil, fmt.Errorf("decoding tools for agent %s: %w", a.ID, err)
	}
	return &a, nil
}
