//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// keychainStore keeps secrets as generic passwords in the login keychain,
// under service "iedash".
type keychainStore struct {
	service string
}

func newSecretStore() SecretStore {
	return keychainStore{service: secretService}
}

func (k keychainStore) Get(account string) (string, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", k.service, "-a", account, "-w").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errNoSecret
		}
		return "", fmt.Errorf("reading %s from keychain: %w", account, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (k keychainStore) Set(account, value string) error {
	if value == "" {
		err := exec.Command("security", "delete-generic-password", "-s", k.service, "-a", account).Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Nothing stored.
			return nil
		}
		return err
	}
	return exec.Command("security", "add-generic-password", "-U", "-s", k.service, "-a", account, "-w", value).Run()
}
