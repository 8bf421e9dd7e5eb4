package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/meetsync/internal/history"
	"github.com/kalambet/meetsync/internal/processor"
	"github.com/kalambet/meetsync/internal/state"
)

// --- mocks ---

type mockPipeline struct {
	snapshot state.PersistedState
	summary  processor.RunSummary
	runErr   error
	runCalls int
}

func (m *mockPipeline) Snapshot() state.PersistedState { return m.snapshot }

func (m *mockPipeline) RunNow(ctx context.Context) (processor.RunSummary, error) {
	m.runCalls++
	return m.summary, m.runErr
}

type mockHistory struct {
	runs       []history.Run
	deliveries []history.Delivery
	err        error
}

func (m *mockHistory) RecentRuns(limit int) ([]history.Run, error) {
	return m.runs, m.err
}

func (m *mockHistory) RecentDeliveries(limit int) ([]history.Delivery, error) {
	return m.deliveries, m.err
}

func (m *mockHistory) DeliveriesForMeeting(meetingID string, limit int) ([]history.Delivery, error) {
	var out []history.Delivery
	for _, d := range m.deliveries {
		if d.MeetingID == meetingID {
			out = append(out, d)
		}
	}
	return out, m.err
}

// --- helpers ---

func testSnapshot() state.PersistedState {
	return state.PersistedState{
		LastCheckTimestamp: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		ProcessedMeetings: []state.ProcessedMeeting{
			{ID: "doc-1", Title: "Standup", Success: true},
			{ID: "doc-2", Title: "Retro", Success: false},
		},
		SkippedMeetings: []state.SkippedMeeting{
			{ID: "doc-9", Title: "Shadow sync", Reason: "missing_required_template", SkipCount: 3},
		},
		FailureTracking: state.FailureTracking{ConsecutiveFailures: 2},
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestHealthNoAuth verifies /health answers without a token.
func TestHealthNoAuth(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{}, Token: "secret"})

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// TestBearerAuthRequired verifies authed routes reject missing or wrong tokens.
func TestBearerAuthRequired(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}, Token: "secret"})

	for _, token := range []string{"", "wrong"} {
		rec := doRequest(t, h, http.MethodGet, "/status", token)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/status", "secret")
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
}

// TestStatus verifies the aggregated status payload.
func TestStatus(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}, Token: "secret"})

	rec := doRequest(t, h, http.MethodGet, "/status", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ProcessedCount != 2 {
		t.Errorf("ProcessedCount = %d, want 2", got.ProcessedCount)
	}
	if got.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", got.SkippedCount)
	}
	if got.FailureStreak != 2 {
		t.Errorf("FailureStreak = %d, want 2", got.FailureStreak)
	}
}

// TestProcessedNewestFirst verifies ordering and the limit parameter.
func TestProcessedNewestFirst(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}, Token: "secret"})

	rec := doRequest(t, h, http.MethodGet, "/processed", "secret")
	var got []state.ProcessedMeeting
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != "doc-2" {
		t.Errorf("first record = %q, want doc-2 (newest first)", got[0].ID)
	}

	rec = doRequest(t, h, http.MethodGet, "/processed?limit=1", "secret")
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "doc-2" {
		t.Errorf("limited records = %+v, want just doc-2", got)
	}
}

// TestSkipped returns the skip ledger.
func TestSkipped(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}, Token: "secret"})

	rec := doRequest(t, h, http.MethodGet, "/skipped", "secret")
	var got []state.SkippedMeeting
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "doc-9" || got[0].SkipCount != 3 {
		t.Errorf("skipped = %+v", got)
	}
}

// TestHistoryDisabled verifies /history and /runs answer 404 without a store.
func TestHistoryDisabled(t *testing.T) {
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{}, Token: "secret"})

	for _, path := range []string{"/history", "/runs"} {
		rec := doRequest(t, h, http.MethodGet, path, "secret")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

// TestHistoryFilter verifies the meeting_id filter.
func TestHistoryFilter(t *testing.T) {
	hist := &mockHistory{deliveries: []history.Delivery{
		{ID: "d-1", MeetingID: "doc-1", Sink: "webhook", Success: true},
		{ID: "d-2", MeetingID: "doc-2", Sink: "webhook", Success: false},
	}}
	h := NewAppHandler(AppDeps{Pipeline: &mockPipeline{}, History: hist, Token: "secret"})

	rec := doRequest(t, h, http.MethodGet, "/history?meeting_id=doc-2", "secret")
	var got []history.Delivery
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d-2" {
		t.Errorf("filtered deliveries = %+v", got)
	}
}

// TestRunTrigger verifies POST /run drives the pipeline and returns the
// summary, and errors surface as 500.
func TestRunTrigger(t *testing.T) {
	pl := &mockPipeline{summary: processor.RunSummary{RunID: "run-1", Fetched: 3, Succeeded: 2, Skipped: 1}}
	h := NewAppHandler(AppDeps{Pipeline: pl, Token: "secret"})

	rec := doRequest(t, h, http.MethodPost, "/run", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if pl.runCalls != 1 {
		t.Errorf("runCalls = %d, want 1", pl.runCalls)
	}

	var got processor.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.RunID != "run-1" || got.Succeeded != 2 {
		t.Errorf("summary = %+v", got)
	}

	pl.runErr = errors.New("upstream down")
	rec = doRequest(t, h, http.MethodPost, "/run", "secret")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
