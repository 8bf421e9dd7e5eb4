// Package api exposes the local ops surface: an authenticated HTTP API over
// the pipeline state plus a read-only MCP server for agent tooling.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/meetsync/internal/history"
	"github.com/kalambet/meetsync/internal/processor"
	"github.com/kalambet/meetsync/internal/state"
)

// Pipeline is the daemon's view of the running pipeline. Implementations
// must be safe for concurrent use; state.Manager itself is not, so the
// daemon serializes access behind this interface.
type Pipeline interface {
	Snapshot() state.PersistedState
	RunNow(ctx context.Context) (processor.RunSummary, error)
}

// HistoryReader is the read side of the delivery audit store.
type HistoryReader interface {
	RecentRuns(limit int) ([]history.Run, error)
	RecentDeliveries(limit int) ([]history.Delivery, error)
	DeliveriesForMeeting(meetingID string, limit int) ([]history.Delivery, error)
}

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Pipeline Pipeline
	History  HistoryReader // optional; nil when history is disabled
	Token    string
}

const defaultListLimit = 50

// NewAppHandler returns the ops HTTP handler. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/status", handleStatus(deps))
		r.Get("/processed", handleProcessed(deps))
		r.Get("/skipped", handleSkipped(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/runs", handleRuns(deps))
		r.Post("/run", handleRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	LastCheck      time.Time  `json:"lastCheck"`
	ProcessedCount int        `json:"processedCount"`
	SkippedCount   int        `json:"skippedCount"`
	FailureStreak  int        `json:"failureStreak"`
	LastSuccessAt  *time.Time `json:"lastSuccessAt,omitempty"`
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Pipeline.Snapshot()
		writeJSON(w, StatusResponse{
			LastCheck:      st.LastCheckTimestamp,
			ProcessedCount: len(st.ProcessedMeetings),
			SkippedCount:   len(st.SkippedMeetings),
			FailureStreak:  st.FailureTracking.ConsecutiveFailures,
			LastSuccessAt:  st.FailureTracking.LastSuccessAt,
		})
	}
}

func handleProcessed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Pipeline.Snapshot()
		limit := queryLimit(r, defaultListLimit)

		recs := st.ProcessedMeetings
		if len(recs) > limit {
			recs = recs[len(recs)-limit:]
		}
		// Newest first.
		out := make([]state.ProcessedMeeting, len(recs))
		for i, rec := range recs {
			out[len(recs)-1-i] = rec
		}
		writeJSON(w, out)
	}
}

func handleSkipped(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Pipeline.Snapshot()
		limit := queryLimit(r, defaultListLimit)

		recs := st.SkippedMeetings
		if len(recs) > limit {
			recs = recs[len(recs)-limit:]
		}
		writeJSON(w, recs)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "delivery history is disabled")
			return
		}
		limit := queryLimit(r, defaultListLimit)

		var (
			deliveries []history.Delivery
			err        error
		)
		if id := r.URL.Query().Get("meeting_id"); id != "" {
			deliveries, err = deps.History.DeliveriesForMeeting(id, limit)
		} else {
			deliveries, err = deps.History.RecentDeliveries(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading delivery history: %v", err)
			return
		}
		if deliveries == nil {
			deliveries = []history.Delivery{}
		}
		writeJSON(w, deliveries)
	}
}

func handleRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "delivery history is disabled")
			return
		}
		runs, err := deps.History.RecentRuns(queryLimit(r, defaultListLimit))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading run history: %v", err)
			return
		}
		if runs == nil {
			runs = []history.Run{}
		}
		writeJSON(w, runs)
	}
}

func handleRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Pipeline.RunNow(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "run failed: %v", err)
			return
		}
		writeJSON(w, sum)
	}
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
