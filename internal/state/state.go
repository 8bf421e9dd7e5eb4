// Package state owns the persisted idempotency and failure-streak state.
// One Manager instance per process run; it is not safe for concurrent use
// and the state file must not be shared between running instances.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ProcessedMeeting is one append-only ledger entry. Once an id appears with
// Success=true the processor never re-attempts delivery for it.
type ProcessedMeeting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ProcessedAt time.Time `json:"processedAt"`
	Success     bool      `json:"success"`
}

// SkippedMeeting is a per-meeting skip ledger entry, mutated in place on
// repeat skips.
type SkippedMeeting struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Reason         string    `json:"reason"`
	LastNotifiedAt time.Time `json:"lastNotifiedAt"`
	SkipCount      int       `json:"skipCount"`
}

// FailureTracking is the process-wide consecutive-failure streak.
type FailureTracking struct {
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastNotifiedAt      *time.Time `json:"lastNotifiedAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
}

// PersistedState is the durable aggregate written to the state file.
type PersistedState struct {
	LastCheckTimestamp time.Time          `json:"lastCheckTimestamp"`
	ProcessedMeetings  []ProcessedMeeting `json:"processedMeetings"`
	SkippedMeetings    []SkippedMeeting   `json:"skippedMeetings"`
	FailureTracking    FailureTracking    `json:"failureTracking"`
}

// Notification throttling knobs. Skips re-notify every 5th occurrence or
// after 24h of silence; failure streaks notify on entry and every 3rd
// consecutive failure; recovery notifies only after a streak of 3 or more.
const (
	skipNotifyEvery    = 5
	skipRenotifyAfter  = 24 * time.Hour
	failureNotifyEvery = 3
	RecoveryMinStreak  = 3
)

// FailureNotice is the outcome of recording one failure.
type FailureNotice struct {
	ShouldNotify  bool
	Count         int
	PreviousCount int
}

// Manager gates re-processing and re-notification decisions and persists the
// aggregate state atomically.
type Manager struct {
	path      string
	state     *PersistedState
	processed map[string]bool // ids attempted this process or succeeded previously
	logger    *slog.Logger
	now       func() time.Time
}

// Load reads the state file at path. A missing file initializes fresh state
// with LastCheckTimestamp set lookback in the past; a corrupt file does the
// same with a logged warning instead of failing the process.
func Load(path string, lookback time.Duration) (*Manager, error) {
	m := &Manager{
		path:      path,
		processed: make(map[string]bool),
		logger:    slog.Default(),
		now:       time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m.state = freshState(m.now(), lookback)
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var st PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		m.logger.Warn("state file is corrupt, starting fresh", "path", path, "error", err)
		m.state = freshState(m.now(), lookback)
		return m, nil
	}

	m.state = &st
	for _, rec := range st.ProcessedMeetings {
		if rec.Success {
			m.processed[rec.ID] = true
		}
	}
	return m, nil
}

func freshState(now time.Time, lookback time.Duration) *PersistedState {
	return &PersistedState{
		LastCheckTimestamp: now.Add(-lookback),
		ProcessedMeetings:  []ProcessedMeeting{},
		SkippedMeetings:    []SkippedMeeting{},
	}
}

// IsProcessed reports whether a meeting id should not be delivered again:
// either it succeeded in a prior run, or it was already attempted by this
// process.
func (m *Manager) IsProcessed(id string) bool {
	return m.processed[id]
}

// AddProcessed appends a ledger entry and marks the id attempted so the same
// batch run never re-attempts it, regardless of outcome.
func (m *Manager) AddProcessed(rec ProcessedMeeting) {
	m.state.ProcessedMeetings = append(m.state.ProcessedMeetings, rec)
	m.processed[rec.ID] = true
}

// LastCheck returns the lower bound for records worth processing.
func (m *Manager) LastCheck() time.Time {
	return m.state.LastCheckTimestamp
}

// SetLastCheck advances the lower bound, normally to the batch start time.
func (m *Manager) SetLastCheck(t time.Time) {
	m.state.LastCheckTimestamp = t
}

// ShouldNotifyForSkipped decides whether this skip warrants an operator
// notification. The first skip of an id always notifies; after that, every
// skipNotifyEvery-th skip or a skip more than skipRenotifyAfter since the
// last notification does. The call mutates the ledger entry (count, reason,
// last-notified timestamp) as a side effect: calling it twice is two skips.
func (m *Manager) ShouldNotifyForSkipped(id, title, reason string) bool {
	now := m.now()

	for i := range m.state.SkippedMeetings {
		entry := &m.state.SkippedMeetings[i]
		if entry.ID != id {
			continue
		}
		entry.SkipCount++
		entry.Reason = reason
		notify := entry.SkipCount%skipNotifyEvery == 0 ||
			now.Sub(entry.LastNotifiedAt) >= skipRenotifyAfter
		if notify {
			entry.LastNotifiedAt = now
		}
		return notify
	}

	m.state.SkippedMeetings = append(m.state.SkippedMeetings, SkippedMeeting{
		ID:             id,
		Title:          title,
		Reason:         reason,
		LastNotifiedAt: now,
		SkipCount:      1,
	})
	return true
}

// SkipCount returns the cumulative skip count for an id (0 if never skipped).
func (m *Manager) SkipCount(id string) int {
	for _, entry := range m.state.SkippedMeetings {
		if entry.ID == id {
			return entry.SkipCount
		}
	}
	return 0
}

// RecordFailure increments the consecutive-failure streak and reports whether
// the streak warrants a notification: on entry to the degraded state
// (count 1) and on every failureNotifyEvery-th failure while degraded.
func (m *Manager) RecordFailure() FailureNotice {
	ft := &m.state.FailureTracking
	prev := ft.ConsecutiveFailures
	ft.ConsecutiveFailures++

	notify := ft.ConsecutiveFailures == 1 || ft.ConsecutiveFailures%failureNotifyEvery == 0
	if notify {
		now := m.now()
		ft.LastNotifiedAt = &now
	}

	return FailureNotice{
		ShouldNotify:  notify,
		Count:         ft.ConsecutiveFailures,
		PreviousCount: prev,
	}
}

// RecordSuccess resets the streak and returns the streak length before the
// reset. Callers emit a recovery notification when the returned value is at
// least RecoveryMinStreak.
func (m *Manager) RecordSuccess() int {
	ft := &m.state.FailureTracking
	prev := ft.ConsecutiveFailures
	ft.ConsecutiveFailures = 0
	now := m.now()
	ft.LastSuccessAt = &now
	return prev
}

// FailureStreak returns the current consecutive-failure count.
func (m *Manager) FailureStreak() int {
	return m.state.FailureTracking.ConsecutiveFailures
}

// Snapshot returns a copy of the persisted aggregate for read-only surfaces
// (status command, ops API).
func (m *Manager) Snapshot() PersistedState {
	st := *m.state
	st.ProcessedMeetings = append([]ProcessedMeeting(nil), m.state.ProcessedMeetings...)
	st.SkippedMeetings = append([]SkippedMeeting(nil), m.state.SkippedMeetings...)
	return st
}

// Save writes the aggregate atomically: marshal to a temp file next to the
// target, then rename over it. A crash mid-write leaves the previous valid
// file intact.
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
