package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	altEnv  string // consulted when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "IEDASH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "IEDASH_SERVER_PORT", altEnv: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "IEDASH_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "IEDASH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "IEDASH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "pipeline.planning_tick", typ: kDuration, env: "IEDASH_PIPELINE_PLANNING_TICK",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.PlanningTick = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.PlanningTick },
	},
	{
		key: "pipeline.execution_tick", typ: kDuration, env: "IEDASH_PIPELINE_EXECUTION_TICK",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ExecutionTick = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.ExecutionTick },
	},
	{
		key: "pipeline.handoff_delay", typ: kDuration, env: "IEDASH_PIPELINE_HANDOFF_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.HandoffDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.HandoffDelay },
	},
	{
		key: "pipeline.response_delay", typ: kDuration, env: "IEDASH_PIPELINE_RESPONSE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ResponseDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.ResponseDelay },
	},
	{
		key: "pipeline.agent_name", typ: kString, env: "IEDASH_PIPELINE_AGENT_NAME",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.AgentName = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.AgentName },
	},
	{
		key: "ingest.poll_interval", typ: kDuration, env: "IEDASH_INGEST_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Ingest.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.PollInterval },
	},
	{
		key: "ingest.min_processing_delay", typ: kDuration, env: "IEDASH_INGEST_MIN_PROCESSING_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MinProcessingDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.MinProcessingDelay },
	},
	{
		key: "ingest.max_processing_delay", typ: kDuration, env: "IEDASH_INGEST_MAX_PROCESSING_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Ingest.MaxProcessingDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.MaxProcessingDelay },
	},
	{
		key: "ingest.connection_test_delay", typ: kDuration, env: "IEDASH_INGEST_CONNECTION_TEST_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ConnectionTestDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.ConnectionTestDelay },
	},
	{
		key: "activity.capacity", typ: kInt, env: "IEDASH_ACTIVITY_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Activity.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Activity.Capacity },
	},
}

func applyBackend(cfg *Config, b Settings) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		name := s.env
		raw := os.Getenv(name)
		if raw == "" && s.altEnv != "" {
			name = s.altEnv
			raw = os.Getenv(name)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
