package config

import (
	"fmt"
	"strings"

	"github.com/kalambet/meetsync/internal/delivery"
	"github.com/kalambet/meetsync/internal/output"
	"github.com/kalambet/meetsync/internal/validator"
)

// Validate checks the whole configuration and returns every problem at once,
// each annotated with the config path that caused it. A single opaque error
// for a multi-field config wastes an operator round-trip per mistake.
func (c Config) Validate() error {
	var problems []string
	add := func(path, msg string) {
		problems = append(problems, fmt.Sprintf("%s: %s", path, msg))
	}

	if c.API.BaseURL == "" {
		add("api.baseUrl", "must not be empty")
	}
	if c.API.Token == "" {
		add("api.token", "missing; set MEETSYNC_API_TOKEN or store it in the keychain under service \"meetsync\", account \"api_token\"")
	}

	switch c.Validation.Mode {
	case "", validator.ModeDisabled, validator.ModeAny, validator.ModeSpecific:
	default:
		add("templateValidation.mode", fmt.Sprintf("unknown mode %q (want disabled, any, or specific)", c.Validation.Mode))
	}
	if c.Validation.Enabled && c.Validation.Mode != validator.ModeDisabled && len(c.Validation.RequiredTemplateIDs) == 0 {
		add("templateValidation.requiredTemplateIds", "must list at least one template id when validation is enabled")
	}

	for i, org := range c.Organizations.Organizations {
		if org.Name == "" {
			add(fmt.Sprintf("organizations.definitions[%d].name", i), "must not be empty")
		}
	}

	if c.ActiveEnv != "" {
		if _, ok := c.Environments[c.ActiveEnv]; !ok {
			add("activeEnvironment", fmt.Sprintf("%q is not defined under environments", c.ActiveEnv))
		}
	}
	for name, env := range c.Environments {
		if env.URL == "" {
			add(fmt.Sprintf("environments.%s.url", name), "must not be empty")
		}
	}

	if w := c.Outputs.Webhook; w != nil && w.Enabled {
		if url, _ := c.resolveWebhookTarget(w); url == "" {
			add("outputs.webhook.url", "must not be empty (set it or select an environment)")
		}
		if w.MaxRetries < 0 || w.MaxRetries > 10 {
			add("outputs.webhook.maxRetries", fmt.Sprintf("%d out of range [0,10]", w.MaxRetries))
		}
		switch w.Backoff {
		case "", delivery.BackoffLinear, delivery.BackoffExponential:
		default:
			add("outputs.webhook.backoff", fmt.Sprintf("unknown strategy %q (want linear or exponential)", w.Backoff))
		}
		if w.BaseDelaySeconds < 0 {
			add("outputs.webhook.baseDelaySeconds", "must not be negative")
		}
	}
	if t := c.Outputs.Table; t != nil && t.Enabled {
		if t.BaseURL == "" {
			add("outputs.table.baseUrl", "must not be empty")
		}
		if t.TableID == "" {
			add("outputs.table.tableId", "must not be empty")
		}
		if t.APIKey == "" {
			add("outputs.table.apiKey", "must not be empty")
		}
	}
	if f := c.Outputs.File; f != nil && f.Enabled {
		if f.Path == "" {
			add("outputs.file.path", "must not be empty")
		}
		switch f.Mode {
		case output.FileModeOverwrite, output.FileModeAppend:
		default:
			add("outputs.file.mode", fmt.Sprintf("unknown mode %q (want overwrite or append)", f.Mode))
		}
	}

	for i, ch := range c.Notifications.Channels {
		if !ch.Enabled {
			continue
		}
		if ch.Kind == "webhook" && ch.WebhookURL == "" {
			add(fmt.Sprintf("notifications.channels[%d].webhookUrl", i), "must not be empty for webhook channels")
		}
	}

	if c.Monitoring.LookbackDays <= 0 {
		add("monitoring.lookbackDays", "must be positive")
	}
	if c.Monitoring.MaxPerRun <= 0 {
		add("monitoring.maxPerRun", "must be positive")
	}
	if c.Monitoring.StatePath == "" {
		add("monitoring.statePath", "must not be empty")
	}
	if c.Monitoring.PollIntervalMinutes <= 0 {
		add("monitoring.pollIntervalMinutes", "must be positive")
	}

	if c.History.Enabled && c.History.DataDir == "" {
		add("history.dataDir", "must not be empty when history is enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port", fmt.Sprintf("%d out of range", c.Server.Port))
	}
	if c.Server.MCPPort <= 0 || c.Server.MCPPort > 65535 {
		add("server.mcpPort", fmt.Sprintf("%d out of range", c.Server.MCPPort))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
}
