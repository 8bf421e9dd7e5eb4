package notesapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestFetchDocuments verifies the request path, bearer auth, and decoding.
func TestFetchDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/v1/documents")
		}
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("limit = %q, want %q", got, "25")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok-123")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"documents":[
			{"id":"doc-1","title":"Standup","created_at":"2026-03-15T09:30:00+11:00"},
			{"id":"doc-2","title":"Retro","created_at":"2026-03-14T16:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-123")
	docs, err := c.FetchDocuments(context.Background(), 25)
	if err != nil {
		t.Fatalf("FetchDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].ID != "doc-1" || docs[0].Title != "Standup" {
		t.Errorf("first doc = %+v", docs[0])
	}
	if docs[0].CreatedAt != "2026-03-15T09:30:00+11:00" {
		t.Errorf("CreatedAt = %q, want raw string preserved", docs[0].CreatedAt)
	}
}

// TestFetchDocuments_ErrorStatus verifies a non-200 becomes an error carrying
// the status and a body excerpt.
func TestFetchDocuments_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	_, err := c.FetchDocuments(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

// TestFetchPanels verifies the per-document panels path and decoding.
func TestFetchPanels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc-9/panels" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"panels":[{"id":"p-1","template_id":"tpl-notes","title":"Meeting Notes","sections":{"summary":"short recap"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	panels, err := c.FetchPanels(context.Background(), "doc-9")
	if err != nil {
		t.Fatalf("FetchPanels: %v", err)
	}
	if len(panels) != 1 {
		t.Fatalf("got %d panels, want 1", len(panels))
	}
	if panels[0].TemplateID != "tpl-notes" {
		t.Errorf("TemplateID = %q, want %q", panels[0].TemplateID, "tpl-notes")
	}
	if panels[0].Sections["summary"] != "short recap" {
		t.Errorf("sections = %v", panels[0].Sections)
	}
}

// TestFetchTranscript verifies segment decoding.
func TestFetchTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/doc-9/transcript" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"segments":[
			{"speaker":"Alice","text":"hello","start":30,"end":42,"confidence":0.97},
			{"speaker":"Bob","text":"hi","start":42,"end":50,"confidence":0.91}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	segs, err := c.FetchTranscript(context.Background(), "doc-9")
	if err != nil {
		t.Fatalf("FetchTranscript: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].Speaker != "Alice" || segs[0].Start != 30 {
		t.Errorf("first segment = %+v", segs[0])
	}
}

// TestFetchTranscript_NotFound verifies a 404 means "no transcript", not an error.
func TestFetchTranscript_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	segs, err := c.FetchTranscript(context.Background(), "doc-none")
	if err != nil {
		t.Fatalf("FetchTranscript: %v", err)
	}
	if segs != nil {
		t.Errorf("segments = %v, want nil", segs)
	}
}

// TestIsReachable covers both the healthy and unreachable cases.
func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	c := New(srv.URL, "tok")
	if !c.IsReachable(context.Background()) {
		t.Error("IsReachable = false for healthy server")
	}

	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Error("IsReachable = true for closed server")
	}
}
