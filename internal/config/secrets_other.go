//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// fileSecretStore keeps secrets in a 0600 JSON object of account → value,
// next to the dashboard's data rather than its settings.
type fileSecretStore struct {
	path string
}

func newSecretStore() SecretStore {
	return &fileSecretStore{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "iedash", "secrets.json")
}

func (f *fileSecretStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(std, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	return secrets, nil
}

func (f *fileSecretStore) Get(account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[account]
	if !ok || v == "" {
		return "", errNoSecret
	}
	return v, nil
}

func (f *fileSecretStore) Set(account, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	if value == "" {
		delete(secrets, account)
	} else {
		secrets[account] = value
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}
