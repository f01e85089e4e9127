package storage

import (
	"database/sql"
	"fmt"
)

func (s *Store) SaveProvider(p Provider) error {
	models, err := encodeList(p.Models)
	if err != nil {
		return fmt.Errorf("encoding models: %w", err)
	}
	if p.Status == "" {
		p.Status = ProviderDisconnected
	}
	_, err = s.db.Exec(`
		INSERT INTO providers (name, models, status, api_key, requests, tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			models = excluded.models,
			status = excluded.status,
			api_key = excluded.api_key,
			requests = excluded.requests,
			tokens = excluded.tokens,
			cost = excluded.cost`,
		p.Name, models, p.Status, p.APIKey, p.Usage.Requests, p.Usage.Tokens, p.Usage.Cost,
	)
	return err
}

func (s *Store) GetProvider(name string) (*Provider, error) {
	row := s.db.QueryRow(`SELECT name, models, status, api_key, requests, tokens, cost FROM providers WHERE name = ?`, name)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProviders() ([]Provider, error) {
	rows, err := s.db.Query(`SELECT name, models, status, api_key, requests, tokens, cost FROM providers ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	providers := []Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// SetProviderKey stores the key and sets the status to connected when the
// key is non-empty, disconnected otherwise.
func (s *Store) SetProviderKey(name, key string) error {
	status := ProviderDisconnected
	if key != "" {
		status = ProviderConnected
	}
	return s.updateProvider(`UPDATE providers SET api_key = ?, status = ? WHERE name = ?`, key, status, name)
}

func (s *Store) SetProviderStatus(name, status string) error {
	return s.updateProvider(`UPDATE providers SET status = ? WHERE name = ?`, status, name)
}

func (s *Store) updateProvider(query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
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

func scanProvider(row rowScanner) (*Provider, error) {
	var p Provider
	var models string
	if err := row.Scan(&p.Name, &models, &p.Status, &p.APIKey, &p.Usage.Requests, &p.Usage.Tokens, &p.Usage.Cost); err != nil {
		return nil, err
	}
	var err error
	if p.Models, err = decodeList(models); err != nil {
		return nil, fmt.Errorf("decoding models for provider %s: %w", p.Name, err)
	}
	return &p, nil
}
