// Package output fans a built payload out to the configured sinks. Sinks are
// independent: one sink failing (or panicking) never prevents the others from
// completing, and every configured sink contributes exactly one Result.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/meetsync/internal/delivery"
	"github.com/kalambet/meetsync/internal/payload"
)

// Config holds the per-sink output configuration.
type Config struct {
	Webhook *WebhookConfig `json:"webhook,omitempty"`
	Table   *TableConfig   `json:"table,omitempty"`
	File    *FileConfig    `json:"file,omitempty"`
}

// WebhookConfig enables the webhook sink, delivered through the retrying
// delivery engine.
type WebhookConfig struct {
	Enabled bool `json:"enabled"`
	delivery.Config
}

// TableConfig enables the tabular-store sink.
type TableConfig struct {
	Enabled           bool              `json:"enabled"`
	BaseURL           string            `json:"baseUrl"`
	TableID           string            `json:"tableId"`
	APIKey            string            `json:"apiKey,omitempty"`
	IncludeTranscript bool              `json:"includeTranscript"`
	Timeout           time.Duration     `json:"timeout,omitempty"`
	ExtraFields       map[string]string `json:"extraFields,omitempty"`
}

// File write modes.
const (
	FileModeOverwrite = "overwrite"
	FileModeAppend    = "append"
)

// FileConfig enables the flat-file sink.
type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Mode    string `json:"mode"` // overwrite | append
}

// Result is one sink's outcome. Errors are returned, never thrown: callers
// can tell "2 of 3 sinks succeeded" apart from total failure by scanning the
// slice.
type Result struct {
	Destination string
	Success     bool
	Retries     int
	StatusCode  int
	Err         error
}

// sink is one enabled destination.
type sink struct {
	name string
	send func(ctx context.Context, p *payload.MeetingPayload) Result
}

// Manager fans payloads out to all enabled sinks.
type Manager struct {
	sinks  []sink
	logger *slog.Logger
}

// NewManager builds a Manager from cfg. Disabled or absent sinks are skipped
// entirely; they do not appear in SendAll results.
func NewManager(cfg Config, engine *delivery.Engine) *Manager {
	m := &Manager{logger: slog.Default()}

	if wc := cfg.Webhook; wc != nil && wc.Enabled {
		m.sinks = append(m.sinks, sink{name: "webhook", send: webhookSink(engine, *wc)})
	}
	if tc := cfg.Table; tc != nil && tc.Enabled {
		m.sinks = append(m.sinks, sink{name: "table", send: tableSink(*tc)})
	}
	if fc := cfg.File; fc != nil && fc.Enabled {
		m.sinks = append(m.sinks, sink{name: "file", send: fileSink(*fc)})
	}

	return m
}

// SinkCount returns the number of enabled sinks.
func (m *Manager) SinkCount() int {
	return len(m.sinks)
}

// SendAll dispatches the payload to every enabled sink concurrently and waits
// for all of them. The returned slice always has one entry per enabled sink,
// in configuration order.
func (m *Manager) SendAll(ctx context.Context, p *payload.MeetingPayload) []Result {
	results := make([]Result, len(m.sinks))

	g, gCtx := errgroup.WithContext(ctx)
	for i, s := range m.sinks {
		i, s := i, s
		g.Go(func() error {
			results[i] = m.sendOne(gCtx, s, p)
			return nil
		})
	}
	g.Wait() // goroutines never return errors; failures live in results

	return results
}

// sendOne runs a single sink, converting panics into failed results so a
// misbehaving sink cannot take down the fan-out.
func (m *Manager) sendOne(ctx context.Context, s sink, p *payload.MeetingPayload) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Destination: s.name, Err: fmt.Errorf("sink panicked: %v", r)}
		}
	}()

	res = s.send(ctx, p)
	if res.Err != nil {
		m.logger.Warn("sink delivery failed",
			"destination", s.name, "meeting_id", p.MeetingID, "error", res.Err)
	} else {
		m.logger.Debug("sink delivery succeeded",
			"destination", s.name, "meeting_id", p.MeetingID, "retries", res.Retries)
	}
	return res
}

func webhookSink(engine *delivery.Engine, cfg WebhookConfig) func(context.Context, *payload.MeetingPayload) Result {
	return func(ctx context.Context, p *payload.MeetingPayload) Result {
		body := p
		if !cfg.IncludeTranscript {
			body = p.WithoutTranscript()
		}
		dr := engine.Deliver(ctx, body, cfg.Config)
		return Result{
			Destination: "webhook",
			Success:     dr.Success,
			Retries:     dr.Retries,
			StatusCode:  dr.StatusCode,
			Err:         dr.Err,
		}
	}
}
