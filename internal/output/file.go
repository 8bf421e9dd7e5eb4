package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kalambet/meetsync/internal/payload"
)

func fileSink(cfg FileConfig) func(context.Context, *payload.MeetingPayload) Result {
	return func(_ context.Context, p *payload.MeetingPayload) Result {
		res := Result{Destination: "file"}
		if err := writeFile(cfg, p); err != nil {
			res.Err = err
			return res
		}
		res.Success = true
		return res
	}
}

func writeFile(cfg FileConfig, p *payload.MeetingPayload) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if cfg.Mode == FileModeAppend {
		return appendToFile(cfg.Path, p)
	}

	// Overwrite: last payload wins.
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	if err := os.WriteFile(cfg.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}

// appendToFile maintains a JSON array of payloads at path. An existing file
// that fails to parse is treated as empty rather than failing the delivery;
// the corrupt content is overwritten.
func appendToFile(path string, p *payload.MeetingPayload) error {
	var existing []json.RawMessage

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			slog.Default().Warn("output file is not a valid JSON array, starting fresh",
				"path", path, "error", err)
			existing = nil
		}
	}

	entry, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	existing = append(existing, entry)

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output array: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
