// Package processor orchestrates one meeting's path through the pipeline:
// fetch, admission, payload build, sink fan-out, bookkeeping, notification.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/meetsync/internal/history"
	"github.com/kalambet/meetsync/internal/output"
	"github.com/kalambet/meetsync/internal/payload"
	"github.com/kalambet/meetsync/internal/state"
	"github.com/kalambet/meetsync/internal/validator"
)

// DocumentSource is the upstream meeting-notes client.
type DocumentSource interface {
	FetchDocuments(ctx context.Context, limit int) ([]payload.Document, error)
	FetchPanels(ctx context.Context, docID string) ([]payload.Panel, error)
	FetchTranscript(ctx context.Context, docID string) ([]payload.Segment, error)
}

// Sender fans a payload out to all configured sinks.
type Sender interface {
	SendAll(ctx context.Context, p *payload.MeetingPayload) []output.Result
	SinkCount() int
}

// Notifier delivers operator notifications. notify.Manager is adapted to
// this shape with NotifierFunc so tests can observe notifications without
// wiring real channels.
type Notifier interface {
	Notify(ctx context.Context, subject, body string, urgent bool)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, subject, body string, urgent bool)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, subject, body string, urgent bool) {
	f(ctx, subject, body, urgent)
}

// Recorder persists per-run and per-delivery audit rows. May be absent.
type Recorder interface {
	SaveRun(r history.Run) error
	SaveDelivery(d history.Delivery) error
}

// Status of one meeting's processing outcome.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Outcome is the result of processing one meeting.
type Outcome struct {
	MeetingID string
	Title     string
	Status    string
	Results   []output.Result
	Err       error
}

// RunSummary aggregates one batch run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Fetched   int
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

// Config holds the orchestration knobs. The lookback window itself lives in
// the state manager, seeded at load time.
type Config struct {
	MaxPerRun  int
	FetchLimit int
	Validation validator.Config
}

const (
	defaultMaxPerRun  = 10
	defaultFetchLimit = 100
)

// Processor drives meetings through validation, delivery, and bookkeeping.
type Processor struct {
	source   DocumentSource
	outputs  Sender
	notifier Notifier
	state    *state.Manager
	builder  *payload.Builder
	recorder Recorder // nil when history is disabled
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Processor. Pass nil recorder to disable delivery history.
func New(source DocumentSource, outputs Sender, notifier Notifier, st *state.Manager, builder *payload.Builder, recorder Recorder, cfg Config) *Processor {
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = defaultMaxPerRun
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = defaultFetchLimit
	}
	return &Processor{
		source:   source,
		outputs:  outputs,
		notifier: notifier,
		state:    st,
		builder:  builder,
		recorder: recorder,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ProcessMeeting runs one meeting through admission, build, and fan-out.
// Panics during fetch or build are recovered here and converted to a failed
// outcome so one bad document never aborts a batch.
func (p *Processor) ProcessMeeting(ctx context.Context, runID string, doc payload.Document) (out Outcome) {
	out = Outcome{MeetingID: doc.ID, Title: doc.Title}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("processing meeting %s: panic: %v", doc.ID, r)
			p.logger.Error("meeting processing panicked", "meeting_id", doc.ID, "panic", r)
			p.recordFailure(ctx, out)
		}
	}()

	started := p.now()

	panels, err := p.source.FetchPanels(ctx, doc.ID)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("fetching panels: %w", err)
		p.recordFailure(ctx, out)
		return out
	}

	decision := validator.Validate(panels, doc.Title, p.cfg.Validation)
	if !decision.Admit {
		out.Status = StatusSkipped
		p.logger.Info("meeting skipped", "meeting_id", doc.ID, "title", doc.Title, "reason", decision.Reason)
		if p.state.ShouldNotifyForSkipped(doc.ID, doc.Title, decision.Reason) {
			subject := "Meeting skipped: " + doc.Title
			body := fmt.Sprintf("Meeting %s was not delivered.\nReason: %s\n%s\nCumulative skips: %d",
				doc.ID, decision.Reason, decision.Detail, p.state.SkipCount(doc.ID))
			p.notifier.Notify(ctx, subject, body, false)
		}
		return out
	}

	segments, err := p.source.FetchTranscript(ctx, doc.ID)
	if err != nil {
		// Delivery proceeds without the transcript; sinks that wanted it
		// get a payload with transcript omitted.
		p.logger.Warn("transcript fetch failed, delivering without it", "meeting_id", doc.ID, "error", err)
		segments = nil
	}

	mp := p.builder.Build(&doc, decision.MatchedPanel, segments)
	results := p.outputs.SendAll(ctx, mp)
	out.Results = results

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
		}
	}

	p.state.AddProcessed(state.ProcessedMeeting{
		ID:          doc.ID,
		Title:       doc.Title,
		ProcessedAt: p.now(),
		Success:     success,
	})
	p.saveDeliveries(runID, doc, results, p.now().Sub(started))

	if success {
		out.Status = StatusProcessed
		prev := p.state.RecordSuccess()
		if prev >= state.RecoveryMinStreak {
			subject := "Delivery recovered"
			body := fmt.Sprintf("Deliveries are succeeding again after %d consecutive failures.", prev)
			p.notifier.Notify(ctx, subject, body, true)
		}
		subject := "Meeting processed: " + doc.Title
		body := fmt.Sprintf("Meeting %s was delivered to %d output(s).", doc.ID, len(results))
		p.notifier.Notify(ctx, subject, body, false)
		return out
	}

	out.Status = StatusFailed
	out.Err = fmt.Errorf("delivery failed for %d of %d sinks", countFailed(results), len(results))
	p.recordFailure(ctx, out)
	return out
}

// recordFailure feeds the streak and emits a throttled failure notification.
func (p *Processor) recordFailure(ctx context.Context, out Outcome) {
	notice := p.state.RecordFailure()
	p.logger.Error("meeting processing failed",
		"meeting_id", out.MeetingID, "streak", notice.Count, "error", out.Err)
	if !notice.ShouldNotify {
		return
	}
	subject := fmt.Sprintf("Delivery failing (streak %d)", notice.Count)
	body := fmt.Sprintf("Meeting %s (%s) failed to deliver.\nConsecutive failures: %d\nError: %v",
		out.MeetingID, out.Title, notice.Count, out.Err)
	p.notifier.Notify(ctx, subject, body, true)
}

func countFailed(results []output.Result) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

// saveDeliveries writes one audit row per sink result. History failures are
// logged, never propagated; the audit trail is best effort.
func (p *Processor) saveDeliveries(runID string, doc payload.Document, results []output.Result, elapsed time.Duration) {
	if p.recorder == nil {
		return
	}
	for _, r := range results {
		d := history.Delivery{
			ID:         p.newID(),
			RunID:      runID,
			MeetingID:  doc.ID,
			Title:      doc.Title,
			Sink:       r.Destination,
			Success:    r.Success,
			Retries:    r.Retries,
			StatusCode: r.StatusCode,
			DurationMs: elapsed.Milliseconds(),
			CreatedAt:  p.now(),
		}
		if r.Err != nil {
			d.Error = r.Err.Error()
		}
		if err := p.recorder.SaveDelivery(d); err != nil {
			p.logger.Warn("saving delivery history", "meeting_id", doc.ID, "sink", r.Destination, "error", err)
		}
	}
}

// ProcessUnprocessed fetches recent documents and processes every one that is
// new since the last check and not already in the ledger, in the order the
// upstream API returns them, up to the per-run cap. State is saved once at
// the end of the run.
func (p *Processor) ProcessUnprocessed(ctx context.Context) (RunSummary, error) {
	sum := RunSummary{RunID: p.newID(), StartedAt: p.now()}

	docs, err := p.source.FetchDocuments(ctx, p.cfg.FetchLimit)
	if err != nil {
		return sum, fmt.Errorf("fetching documents: %w", err)
	}
	sum.Fetched = len(docs)

	cutoff := p.state.LastCheck()
	var pending []payload.Document
	for _, doc := range docs {
		if p.state.IsProcessed(doc.ID) {
			continue
		}
		created, err := time.Parse(time.RFC3339, doc.CreatedAt)
		if err != nil {
			p.logger.Warn("unparseable created_at, including meeting anyway", "meeting_id", doc.ID, "created_at", doc.CreatedAt)
		} else if created.Before(cutoff) {
			continue
		}
		pending = append(pending, doc)
	}

	if len(pending) > p.cfg.MaxPerRun {
		p.logger.Info("capping batch", "pending", len(pending), "max_per_run", p.cfg.MaxPerRun)
		pending = pending[:p.cfg.MaxPerRun]
	}

	for _, doc := range pending {
		out := p.ProcessMeeting(ctx, sum.RunID, doc)
		switch out.Status {
		case StatusProcessed:
			sum.Processed++
			sum.Succeeded++
		case StatusSkipped:
			sum.Skipped++
		case StatusFailed:
			sum.Processed++
			sum.Failed++
		}
	}

	p.state.SetLastCheck(sum.StartedAt)
	if err := p.state.Save(); err != nil {
		return sum, fmt.Errorf("saving state: %w", err)
	}

	finished := p.now()
	if p.recorder != nil {
		run := history.Run{
			ID:         sum.RunID,
			StartedAt:  sum.StartedAt,
			FinishedAt: finished,
			Fetched:    sum.Fetched,
			Processed:  sum.Processed,
			Succeeded:  sum.Succeeded,
			Skipped:    sum.Skipped,
			Failed:     sum.Failed,
		}
		if err := p.recorder.SaveRun(run); err != nil {
			p.logger.Warn("saving run history", "run_id", sum.RunID, "error", err)
		}
	}

	p.logger.Info("batch complete",
		"run_id", sum.RunID,
		"fetched", sum.Fetched,
		"processed", sum.Processed,
		"succeeded", sum.Succeeded,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"duration", finished.Sub(sum.StartedAt).Round(time.Millisecond).String())

	return sum, nil
}

// Summary returns a one-line human-readable digest of a run.
func (s RunSummary) Summary() string {
	parts := []string{
		fmt.Sprintf("fetched %d", s.Fetched),
		fmt.Sprintf("delivered %d", s.Succeeded),
		fmt.Sprintf("skipped %d", s.Skipped),
		fmt.Sprintf("failed %d", s.Failed),
	}
	return strings.Join(parts, ", ")
}
