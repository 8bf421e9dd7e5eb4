// Package config loads and validates the pipeline configuration: a JSON
// config file layered over defaults, with MEETSYNC_* environment overrides
// and a platform keychain fallback for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/meetsync/internal/delivery"
	"github.com/kalambet/meetsync/internal/detector"
	"github.com/kalambet/meetsync/internal/notify"
	"github.com/kalambet/meetsync/internal/output"
	"github.com/kalambet/meetsync/internal/validator"
)

type Config struct {
	API           APIConfig              `json:"api"`
	Environments  map[string]Environment `json:"environments,omitempty"`
	ActiveEnv     string                 `json:"activeEnvironment,omitempty"`
	Validation    validator.Config       `json:"templateValidation"`
	Organizations detector.Config        `json:"organizations"`
	Outputs       OutputsConfig          `json:"outputs"`
	Notifications notify.Config          `json:"notifications"`
	Monitoring    MonitoringConfig       `json:"monitoring"`
	History       HistoryConfig          `json:"history"`
	Server        ServerConfig           `json:"server"`
	Log           LogConfig              `json:"log"`
}

// Environment is one named delivery target. The webhook sink inherits the
// active environment's URL and headers unless it sets its own.
type Environment struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// APIConfig points at the upstream meeting-notes service.
type APIConfig struct {
	BaseURL string `json:"baseUrl"`
	Token   string `json:"token,omitempty"`
}

// OutputsConfig is the file-facing sink configuration. Delays are expressed
// in seconds here; OutputConfig converts them to runtime types.
type OutputsConfig struct {
	Webhook *WebhookSink `json:"webhook,omitempty"`
	Table   *TableSink   `json:"table,omitempty"`
	File    *FileSink    `json:"file,omitempty"`
}

type WebhookSink struct {
	Enabled           bool              `json:"enabled"`
	URL               string            `json:"url"`
	Headers           map[string]string `json:"headers,omitempty"`
	Secret            string            `json:"secret,omitempty"`
	MaxRetries        int               `json:"maxRetries"`
	Backoff           string            `json:"backoff"`
	BaseDelaySeconds  float64           `json:"baseDelaySeconds"`
	TimeoutSeconds    float64           `json:"timeoutSeconds,omitempty"`
	IncludeTranscript bool              `json:"includeTranscript"`
}

type TableSink struct {
	Enabled           bool              `json:"enabled"`
	BaseURL           string            `json:"baseUrl"`
	TableID           string            `json:"tableId"`
	APIKey            string            `json:"apiKey,omitempty"`
	IncludeTranscript bool              `json:"includeTranscript"`
	TimeoutSeconds    float64           `json:"timeoutSeconds,omitempty"`
	ExtraFields       map[string]string `json:"extraFields,omitempty"`
}

type FileSink struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Mode    string `json:"mode"` // overwrite | append
}

// MonitoringConfig controls the batch loop.
type MonitoringConfig struct {
	LookbackDays        int    `json:"lookbackDays"`
	MaxPerRun           int    `json:"maxPerRun"`
	FetchLimit          int    `json:"fetchLimit"`
	StatePath           string `json:"statePath"`
	PollIntervalMinutes int    `json:"pollIntervalMinutes"`
}

// HistoryConfig controls the delivery audit store.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	DataDir string `json:"dataDir"`
}

// ServerConfig controls the local ops API and MCP server.
type ServerConfig struct {
	Port      int    `json:"port"`
	MCPPort   int    `json:"mcpPort"`
	AuthToken string `json:"authToken,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		API: APIConfig{
			BaseURL: "https://api.meetingnotes.example.com",
		},
		Validation: validator.Config{
			Enabled: false,
			Mode:    validator.ModeDisabled,
		},
		Organizations: detector.Config{
			DefaultLabel: "unknown",
		},
		Monitoring: MonitoringConfig{
			LookbackDays:        7,
			MaxPerRun:           10,
			FetchLimit:          100,
			StatePath:           filepath.Join(dataDir, "state.json"),
			PollIntervalMinutes: 15,
		},
		History: HistoryConfig{
			Enabled: true,
			DataDir: dataDir,
		},
		Server: ServerConfig{
			Port:    4700,
			MCPPort: 4701,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (the default XDG location when empty),
// applies MEETSYNC_* environment overrides, falls back to the platform
// keychain for secrets still unset, and validates the result. A missing file
// is fine; a present but unreadable or invalid one fails fast.
func Load(path string) (Config, error) {
	return loadWith(path, keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(path string, kc keychain) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env overrides only.
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		if tok, err := kc.Get("meetsync", "api_token"); err == nil && tok != "" {
			cfg.API.Token = tok
		}
	}
	if cfg.Outputs.Webhook != nil && cfg.Outputs.Webhook.Secret == "" {
		if sec, err := kc.Get("meetsync", "webhook_secret"); err == nil && sec != "" {
			cfg.Outputs.Webhook.Secret = sec
		}
	}
	if cfg.Server.AuthToken == "" {
		if tok, err := kc.Get("meetsync", "server_token"); err == nil && tok != "" {
			cfg.Server.AuthToken = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// EnsureServerToken returns the bearer token protecting the local ops API,
// generating and persisting one in the platform keychain on first use.
func EnsureServerToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	tok := uuid.NewString()
	if err := KeychainSet("meetsync", "server_token", tok); err != nil {
		return "", fmt.Errorf("storing server token: %w", err)
	}
	cfg.Server.AuthToken = tok
	return tok, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// OutputConfig converts the file-facing sink settings to the runtime shape
// consumed by the output manager.
func (c Config) OutputConfig() output.Config {
	var out output.Config
	if w := c.Outputs.Webhook; w != nil {
		url, headers := c.resolveWebhookTarget(w)
		out.Webhook = &output.WebhookConfig{
			Enabled: w.Enabled,
			Config: delivery.Config{
				URL:               url,
				Headers:           headers,
				Secret:            w.Secret,
				MaxRetries:        w.MaxRetries,
				Backoff:           w.Backoff,
				BaseDelay:         secondsToDuration(w.BaseDelaySeconds),
				Timeout:           secondsToDuration(w.TimeoutSeconds),
				IncludeTranscript: w.IncludeTranscript,
			},
		}
	}
	if t := c.Outputs.Table; t != nil {
		out.Table = &output.TableConfig{
			Enabled:           t.Enabled,
			BaseURL:           t.BaseURL,
			TableID:           t.TableID,
			APIKey:            t.APIKey,
			IncludeTranscript: t.IncludeTranscript,
			Timeout:           secondsToDuration(t.TimeoutSeconds),
			ExtraFields:       t.ExtraFields,
		}
	}
	if f := c.Outputs.File; f != nil {
		out.File = &output.FileConfig{
			Enabled: f.Enabled,
			Path:    f.Path,
			Mode:    f.Mode,
		}
	}
	return out
}

// resolveWebhookTarget layers the active environment under the sink's own
// settings: the sink's URL wins when set, and sink headers override
// environment headers key by key.
func (c Config) resolveWebhookTarget(w *WebhookSink) (string, map[string]string) {
	env, ok := c.Environments[c.ActiveEnv]
	if c.ActiveEnv == "" || !ok {
		return w.URL, w.Headers
	}

	url := w.URL
	if url == "" {
		url = env.URL
	}
	if len(env.Headers) == 0 {
		return url, w.Headers
	}
	headers := make(map[string]string, len(env.Headers)+len(w.Headers))
	for k, v := range env.Headers {
		headers[k] = v
	}
	for k, v := range w.Headers {
		headers[k] = v
	}
	return url, headers
}

// Lookback returns the monitoring lookback as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.Monitoring.LookbackDays) * 24 * time.Hour
}

// PollInterval returns the daemon poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Monitoring.PollIntervalMinutes) * time.Minute
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
