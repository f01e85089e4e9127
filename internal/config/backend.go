package config

import "errors"

// Settings is the persisted, non-secret half of the configuration, keyed
// by the dotted names listed in specs. `iedash config set` writes here and
// Load reads it back before environment overrides are applied.
type Settings interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// SecretStore keeps values that never go into Settings, such as the API
// token guarding the dashboard's mutating routes.
type SecretStore interface {
	Get(account string) (string, error)
	// Set stores value for account; an empty value removes it.
	Set(account, value string) error
}

// errNoSecret is returned by a SecretStore with nothing stored for an account.
var errNoSecret = errors.New("secret not set")

const (
	secretService = "iedash"
	secretAccount = "api_token"
)
