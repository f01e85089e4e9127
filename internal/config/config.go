package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	Pipeline PipelineConfig
	Ingest   IngestConfig
	Activity ActivityConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type PipelineConfig struct {
	PlanningTick  time.Duration
	ExecutionTick time.Duration
	HandoffDelay  time.Duration
	ResponseDelay time.Duration
	AgentName     string
}

type IngestConfig struct {
	PollInterval        time.Duration
	MinProcessingDelay  time.Duration
	MaxProcessingDelay  time.Duration
	ConnectionTestDelay time.Duration
}

type ActivityConfig struct {
	Capacity int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: ":memory:",
		},
		Log: LogConfig{
			Level: "info",
		},
		Pipeline: PipelineConfig{
			PlanningTick:  300 * time.Millisecond,
			ExecutionTick: 400 * time.Millisecond,
			HandoffDelay:  500 * time.Millisecond,
			ResponseDelay: time.Second,
			AgentName:     "Strategy Analyst",
		},
		Ingest: IngestConfig{
			PollInterval:        500 * time.Millisecond,
			MinProcessingDelay:  2 * time.Second,
			MaxProcessingDelay:  5 * time.Second,
			ConnectionTestDelay: 1500 * time.Millisecond,
		},
		Activity: ActivityConfig{
			Capacity: 5,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.iedash.app) and the API
// token falls back to macOS Keychain.
// Elsewhere the backend is a JSON file (comments and trailing commas allowed)
// at $XDG_CONFIG_HOME/iedash/config.json and the token falls back to
// $XDG_DATA_HOME/iedash/secrets.json.
//
// Environment variables (IEDASH_*) override backend values on all platforms.
// PORT is honored when IEDASH_SERVER_PORT is unset.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), newSecretStore())
}

func loadWith(b Settings, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The token is optional; an unreadable or empty secret store leaves it unset.
	if cfg.Server.APIToken == "" {
		token, err := secrets.Get(secretAccount)
		switch {
		case err == nil:
			cfg.Server.APIToken = token
		case !errors.Is(err, errNoSecret):
			fmt.Fprintf(os.Stderr, "[WARN] could not read API token: %v\n", err)
		}
	}

	return cfg, nil
}
