package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

// keySpec maps one scalar config leaf to its env override and accessors.
// Structured sections (sinks, channels, organizations) live only in the
// config file; the table covers the knobs operators flip per deployment.
type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "MEETSYNC_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.token", typ: kString, env: "MEETSYNC_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "outputs.webhook.secret", typ: kString, env: "MEETSYNC_WEBHOOK_SECRET",
		secret: true,
		apply: func(cfg *Config, v any) {
			if cfg.Outputs.Webhook != nil {
				cfg.Outputs.Webhook.Secret = v.(string)
			}
		},
		extract: func(cfg Config) any {
			if cfg.Outputs.Webhook == nil {
				return ""
			}
			return cfg.Outputs.Webhook.Secret
		},
	},
	{
		key: "outputs.table.api_key", typ: kString, env: "MEETSYNC_TABLE_API_KEY",
		secret: true,
		apply: func(cfg *Config, v any) {
			if cfg.Outputs.Table != nil {
				cfg.Outputs.Table.APIKey = v.(string)
			}
		},
		extract: func(cfg Config) any {
			if cfg.Outputs.Table == nil {
				return ""
			}
			return cfg.Outputs.Table.APIKey
		},
	},
	{
		key: "active_environment", typ: kString, env: "MEETSYNC_ACTIVE_ENVIRONMENT",
		apply:   func(cfg *Config, v any) { cfg.ActiveEnv = v.(string) },
		extract: func(cfg Config) any { return cfg.ActiveEnv },
	},
	{
		key: "monitoring.lookback_days", typ: kInt, env: "MEETSYNC_MONITORING_LOOKBACK_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Monitoring.LookbackDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitoring.LookbackDays },
	},
	{
		key: "monitoring.max_per_run", typ: kInt, env: "MEETSYNC_MONITORING_MAX_PER_RUN",
		apply:   func(cfg *Config, v any) { cfg.Monitoring.MaxPerRun = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitoring.MaxPerRun },
	},
	{
		key: "monitoring.fetch_limit", typ: kInt, env: "MEETSYNC_MONITORING_FETCH_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Monitoring.FetchLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitoring.FetchLimit },
	},
	{
		key: "monitoring.state_path", typ: kString, env: "MEETSYNC_MONITORING_STATE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Monitoring.StatePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Monitoring.StatePath },
	},
	{
		key: "monitoring.poll_interval_minutes", typ: kInt, env: "MEETSYNC_MONITORING_POLL_INTERVAL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Monitoring.PollIntervalMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitoring.PollIntervalMinutes },
	},
	{
		key: "history.enabled", typ: kBool, env: "MEETSYNC_HISTORY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.History.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.History.Enabled },
	},
	{
		key: "history.data_dir", typ: kString, env: "MEETSYNC_HISTORY_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.History.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.History.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "MEETSYNC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "MEETSYNC_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "server.auth_token", typ: kString, env: "MEETSYNC_SERVER_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AuthToken },
	},
	{
		key: "log.level", typ: kString, env: "MEETSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
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
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
