package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all scalar config key/value pairs from the current config.
// Secrets are listed with their env var but never their value.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env}
		if s.secret {
			if s.extract(cfg) != "" {
				info.Value = "(set)"
			} else {
				info.Value = "(unset)"
			}
		} else {
			info.Value = fmt.Sprintf("%v", s.extract(cfg))
		}
		result = append(result, info)
	}
	return result
}

// SetKey writes a scalar config key into the config file at path (the
// default location when empty). The file is rewritten as a full config
// snapshot: defaults overlaid with the existing file, with the new value
// applied.
func SetKey(path, key, value string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config file; use environment variable %s or the keychain", key, s.env)
		}

		cfg := defaults()
		if data, err := os.ReadFile(path); err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}

		switch s.typ {
		case kString:
			s.apply(&cfg, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			s.apply(&cfg, i)
		case kBool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid bool value for %s: %w", key, err)
			}
			s.apply(&cfg, b)
		}

		return writeConfigFile(path, cfg)
	}

	return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
}

func writeConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	// Secrets never land in the file.
	cfg.API.Token = ""
	cfg.Server.AuthToken = ""
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ValidKeys returns the list of settable (non-secret) config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
