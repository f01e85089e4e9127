package config

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

// memSecrets is an in-memory SecretStore.
type memSecrets map[string]string

func (m memSecrets) Get(account string) (string, error) {
	v, ok := m[account]
	if !ok {
		return "", errNoSecret
	}
	return v, nil
}

func (m memSecrets) Set(account, value string) error {
	if value == "" {
		delete(m, account)
		return nil
	}
	m[account] = value
	return nil
}

// brokenSecrets fails every read.
type brokenSecrets struct{}

func (brokenSecrets) Get(string) (string, error) { return "", errors.New("keychain locked") }
func (brokenSecrets) Set(string, string) error   { return errors.New("keychain locked") }

// mapBackend is an in-memory Settings.
type mapBackend map[string]string

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = strconv.Itoa(val); return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

// clearEnv blanks every variable the loader consults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.altEnv != "" {
			t.Setenv(s.altEnv, "")
		}
	}
}

func noSecret() memSecrets {
	return memSecrets{}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, noSecret())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("Server.APIToken = %q, want empty", cfg.Server.APIToken)
	}
	if cfg.Storage.DataDir != ":memory:" {
		t.Errorf("Storage.DataDir = %q, want :memory:", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Pipeline.PlanningTick != 300*time.Millisecond {
		t.Errorf("Pipeline.PlanningTick = %v", cfg.Pipeline.PlanningTick)
	}
	if cfg.Pipeline.ExecutionTick != 400*time.Millisecond {
		t.Errorf("Pipeline.ExecutionTick = %v", cfg.Pipeline.ExecutionTick)
	}
	if cfg.Pipeline.HandoffDelay != 500*time.Millisecond {
		t.Errorf("Pipeline.HandoffDelay = %v", cfg.Pipeline.HandoffDelay)
	}
	if cfg.Pipeline.ResponseDelay != time.Second {
		t.Errorf("Pipeline.ResponseDelay = %v", cfg.Pipeline.ResponseDelay)
	}
	if cfg.Pipeline.AgentName != "Strategy Analyst" {
		t.Errorf("Pipeline.AgentName = %q", cfg.Pipeline.AgentName)
	}
	if cfg.Ingest.MinProcessingDelay != 2*time.Second || cfg.Ingest.MaxProcessingDelay != 5*time.Second {
		t.Errorf("Ingest processing delays = %v..%v", cfg.Ingest.MinProcessingDelay, cfg.Ingest.MaxProcessingDelay)
	}
	if cfg.Ingest.ConnectionTestDelay != 1500*time.Millisecond {
		t.Errorf("Ingest.ConnectionTestDelay = %v", cfg.Ingest.ConnectionTestDelay)
	}
	if cfg.Activity.Capacity != 5 {
		t.Errorf("Activity.Capacity = %d, want 5", cfg.Activity.Capacity)
	}
}

// TestBackendValues verifies values are read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := mapBackend{
		"server.port":            "5000",
		"storage.data_dir":       "/tmp/iedash-test",
		"pipeline.planning_tick": "50ms",
		"pipeline.agent_name":    "Ops Analyst",
		"activity.capacity":      "10",
	}
	cfg, err := loadWith(b, noSecret())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/iedash-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Pipeline.PlanningTick != 50*time.Millisecond {
		t.Errorf("Pipeline.PlanningTick = %v", cfg.Pipeline.PlanningTick)
	}
	if cfg.Pipeline.AgentName != "Ops Analyst" {
		t.Errorf("Pipeline.AgentName = %q", cfg.Pipeline.AgentName)
	}
	if cfg.Activity.Capacity != 10 {
		t.Errorf("Activity.Capacity = %d", cfg.Activity.Capacity)
	}
}

// TestBackendBadDuration verifies an unparseable duration keeps the default.
func TestBackendBadDuration(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{"pipeline.response_delay": "soon"}, noSecret())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.ResponseDelay != time.Second {
		t.Errorf("Pipeline.ResponseDelay = %v, want default", cfg.Pipeline.ResponseDelay)
	}
}

// TestBackendBadInt verifies a backend read error is surfaced.
func TestBackendBadInt(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(mapBackend{"server.port": "abc"}, noSecret())
	if err == nil {
		t.Fatal("expected error for invalid server.port")
	}
	if !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error = %q, want key name", err)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("IEDASH_SERVER_PORT", "8080")
	t.Setenv("IEDASH_LOG_LEVEL", "debug")
	t.Setenv("IEDASH_INGEST_POLL_INTERVAL", "2s")

	cfg, err := loadWith(mapBackend{"server.port": "5000"}, noSecret())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Ingest.PollInterval != 2*time.Second {
		t.Errorf("Ingest.PollInterval = %v, want 2s", cfg.Ingest.PollInterval)
	}
}

// TestPortFallback verifies PORT applies only when IEDASH_SERVER_PORT is unset.
func TestPortFallback(t *testing.T) {
	tests := []struct {
		name     string
		iedash   string
		port     string
		wantPort int
	}{
		{"neither", "", "", 3000},
		{"port only", "", "4242", 4242},
		{"both", "8080", "4242", 8080},
		{"invalid port", "", "nope", 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("IEDASH_SERVER_PORT", tt.iedash)
			t.Setenv("PORT", tt.port)

			cfg, err := loadWith(mapBackend{}, noSecret())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Server.Port != tt.wantPort {
				t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, tt.wantPort)
			}
		})
	}
}

// TestTokenSources verifies env wins over the secret store and the backend is never read for secrets.
func TestTokenSources(t *testing.T) {
	clearEnv(t)

	b := mapBackend{"server.api_token": "from-backend"}
	cfg, err := loadWith(b, memSecrets{"api_token": "from-keychain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "from-keychain" {
		t.Errorf("APIToken = %q, want from-keychain", cfg.Server.APIToken)
	}

	t.Setenv("IEDASH_API_TOKEN", "from-env")
	cfg, err = loadWith(b, memSecrets{"api_token": "from-keychain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "from-env" {
		t.Errorf("APIToken = %q, want from-env", cfg.Server.APIToken)
	}
}

func TestTokenSources_UnreadableStore(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, brokenSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Server.APIToken)
	}
}

func TestSetKey(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"server.host", "0.0.0.0", false},
		{"server.port", "4000", false},
		{"server.port", "four", true},
		{"pipeline.handoff_delay", "750ms", false},
		{"pipeline.handoff_delay", "later", true},
		{"server.api_token", "tok", false},
		{"no.such.key", "x", true},
	}
	b := mapBackend{}
	secrets := memSecrets{}
	for _, tt := range tests {
		err := setKeyWith(b, secrets, tt.key, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("setKeyWith(%s, %s) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
		}
	}

	if b["server.host"] != "0.0.0.0" || b["server.port"] != "4000" || b["pipeline.handoff_delay"] != "750ms" {
		t.Errorf("backend = %v", b)
	}
	if _, ok := b["server.api_token"]; ok {
		t.Error("secret written to backend")
	}
	if secrets["api_token"] != "tok" {
		t.Errorf("secret = %q, want tok", secrets["api_token"])
	}
}

func TestSetKey_EmptyValueResets(t *testing.T) {
	clearEnv(t)
	b := mapBackend{"server.port": "4000"}
	secrets := memSecrets{"api_token": "tok"}

	if err := setKeyWith(b, secrets, "server.port", ""); err != nil {
		t.Fatalf("reset server.port: %v", err)
	}
	if err := setKeyWith(b, secrets, "server.api_token", ""); err != nil {
		t.Fatalf("clear server.api_token: %v", err)
	}

	cfg, err := loadWith(b, secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want default 3000", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Server.APIToken)
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "hunter2"

	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, want %d", len(infos), len(ValidKeys()))
	}
	for _, info := range infos {
		if strings.Contains(info.Value, "hunter2") {
			t.Fatalf("secret leaked in %s", info.Key)
		}
		if info.Key == "server.api_token" && info.Value != "(set)" {
			t.Errorf("server.api_token = %q, want (set)", info.Value)
		}
		if info.Key == "pipeline.planning_tick" && info.Value != "300ms" {
			t.Errorf("pipeline.planning_tick = %q, want 300ms", info.Value)
		}
	}
}
