// Package notify fans human-readable alerts out to the configured channels.
// Channels are independent: one channel failing never prevents the others
// from completing, and results are aggregated rather than raised.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Channel kinds accepted in configuration.
const (
	KindWebhook = "webhook"
	KindDesktop = "desktop"
	KindLog     = "log"
)

// Config holds the notification channel set.
type Config struct {
	Channels []ChannelConfig `json:"channels"`
}

// ChannelConfig describes one notification channel.
type ChannelConfig struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhookUrl,omitempty"` // webhook kind only
}

// Result is one channel's outcome for a single send.
type Result struct {
	Channel string
	Success bool
	Err     error
}

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, subject, body string) error
}

// Manager dispatches alerts to every enabled channel.
type Manager struct {
	channels   []Channel
	urgent     Channel // added per-call when the caller asks for it
	hasDesktop bool    // a desktop channel is already statically configured
	logger     *slog.Logger
}

// NewManager builds the channel set once from config. Unknown kinds are
// skipped with a warning rather than failing startup. The desktop channel
// doubles as the per-call urgent channel even when it is not part of the
// static configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		urgent: newDesktopChannel("desktop-urgent"),
		logger: slog.Default(),
	}

	for _, cc := range cfg.Channels {
		if !cc.Enabled {
			continue
		}
		switch cc.Kind {
		case KindWebhook:
			m.channels = append(m.channels, newWebhookChannel(cc.Name, cc.WebhookURL))
		case KindDesktop:
			m.channels = append(m.channels, newDesktopChannel(cc.Name))
			m.hasDesktop = true
		case KindLog:
			m.channels = append(m.channels, logChannel{name: cc.Name, logger: m.logger})
		default:
			m.logger.Warn("unknown notification channel kind, skipping",
				"kind", cc.Kind, "name", cc.Name)
		}
	}

	return m
}

// ChannelCount returns the number of statically configured channels.
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}

// Send dispatches the alert to all configured channels concurrently and
// waits for all of them. When urgent is true the desktop channel is added
// for this call only, unless a desktop channel is already configured, so a
// desktop alert is raised at most once per send. The returned slice has one
// entry per dispatched channel.
func (m *Manager) Send(ctx context.Context, subject, body string, urgent bool) []Result {
	channels := m.channels
	if urgent && !m.hasDesktop {
		channels = append(append([]Channel(nil), m.channels...), m.urgent)
	}

	results := make([]Result, len(channels))
	g, gCtx := errgroup.WithContext(ctx)
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = m.sendOne(gCtx, ch, subject, body)
			return nil
		})
	}
	g.Wait() // failures are carried in results, never as errors

	ok, failed := 0, 0
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	m.logger.Debug("notification dispatched",
		"subject", subject, "succeeded", ok, "failed", failed)

	return results
}

func (m *Manager) sendOne(ctx context.Context, ch Channel, subject, body string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Channel: ch.Name(), Err: fmt.Errorf("channel panicked: %v", r)}
		}
	}()

	res = Result{Channel: ch.Name()}
	if err := ch.Send(ctx, subject, body); err != nil {
		res.Err = err
		m.logger.Warn("notification channel failed", "channel", ch.Name(), "error", err)
		return res
	}
	res.Success = true
	return res
}
