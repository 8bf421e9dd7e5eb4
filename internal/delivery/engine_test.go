package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTestEngine returns an engine whose sleeps are recorded instead of slept.
func newTestEngine() (*Engine, *[]time.Duration) {
	e := NewEngine()
	var delays []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestDeliver_FirstTrySuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, delays := newTestEngine()
	res := e.Deliver(context.Background(), map[string]string{"k": "v"}, Config{
		URL:        srv.URL,
		MaxRetries: 3,
		Backoff:    BackoffLinear,
		BaseDelay:  time.Second,
	})

	if !res.Success {
		t.Fatalf("Success = false: %v", res.Err)
	}
	if res.Retries != 0 {
		t.Errorf("Retries = %d, want 0", res.Retries)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("server saw %d attempts, want 1", got)
	}
	if len(*delays) != 0 {
		t.Errorf("slept %v, want no sleeps on first-try success", *delays)
	}
}

// TestDeliver_RetryBound: maxRetries=2 and a sink
// returning 500 three times yields {success:false, retries:2} after exactly
// 3 attempts.
func TestDeliver_RetryBound(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	res := e.Deliver(context.Background(), "x", Config{URL: srv.URL, MaxRetries: 2})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Retries != 2 {
		t.Errorf("Retries = %d, want 2", res.Retries)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("server saw %d attempts, want 3", got)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", res.StatusCode)
	}
	if res.Err == nil {
		t.Error("Err = nil, want terminal failure error")
	}
}

// TestDeliver_4xxIsRetried pins down the deliberate design choice that there
// is no status-code distinction: even 401 is retried.
func TestDeliver_4xxIsRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	res := e.Deliver(context.Background(), "x", Config{URL: srv.URL, MaxRetries: 1})

	if got := attempts.Load(); got != 2 {
		t.Errorf("server saw %d attempts, want 2 (4xx must be retried)", got)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
}

func TestDeliver_EventualSuccessReportsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	res := e.Deliver(context.Background(), "x", Config{URL: srv.URL, MaxRetries: 3})

	if !res.Success {
		t.Fatalf("Success = false: %v", res.Err)
	}
	if res.Retries != 2 {
		t.Errorf("Retries = %d, want 2 (flaky-but-recovered)", res.Retries)
	}
	if res.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want 202", res.StatusCode)
	}
}

func TestDeliver_BackoffArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		backoff string
		retries int
		want    []time.Duration
	}{
		{"linear two retries", BackoffLinear, 2, []time.Duration{10, 20}},
		{"exponential two retries", BackoffExponential, 2, []time.Duration{10, 20}},
		{"linear three retries", BackoffLinear, 3, []time.Duration{10, 20, 30}},
		{"exponential three retries", BackoffExponential, 3, []time.Duration{10, 20, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			e, delays := newTestEngine()
			e.Deliver(context.Background(), "x", Config{
				URL:        srv.URL,
				MaxRetries: tt.retries,
				Backoff:    tt.backoff,
				BaseDelay:  10,
			})

			if len(*delays) != len(tt.want) {
				t.Fatalf("slept %d times (%v), want %d", len(*delays), *delays, len(tt.want))
			}
			for i, want := range tt.want {
				if (*delays)[i] != want {
					t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want)
				}
			}
		})
	}
}

func TestDeliver_SignatureHeader(t *testing.T) {
	const secret = "shh"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	res := e.Deliver(context.Background(), map[string]string{"meetingId": "doc-1"}, Config{
		URL:    srv.URL,
		Secret: secret,
	})

	if !res.Success {
		t.Fatalf("Success = false: %v", res.Err)
	}
	if gotSig == "" {
		t.Fatal("signature header missing")
	}
	if want := Sign(gotBody, secret); gotSig != want {
		t.Errorf("signature = %s, want %s (HMAC over serialized body)", gotSig, want)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var sawHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header[SignatureHeader]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	e.Deliver(context.Background(), "x", Config{URL: srv.URL})

	if sawHeader {
		t.Error("signature header present without a configured secret")
	}
}

func TestDeliver_CustomHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, _ := newTestEngine()
	e.Deliver(context.Background(), "x", Config{
		URL:     srv.URL,
		Headers: map[string]string{"X-Team": "platform"},
	})

	if got.Get("X-Team") != "platform" {
		t.Errorf("X-Team = %q, want %q", got.Get("X-Team"), "platform")
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got.Get("Content-Type"))
	}
}

func TestDeliver_NetworkErrorIsRetryable(t *testing.T) {
	// Point at a server that is already closed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e, delays := newTestEngine()
	res := e.Deliver(context.Background(), "x", Config{URL: url, MaxRetries: 2, BaseDelay: 5})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Retries != 2 {
		t.Errorf("Retries = %d, want 2", res.Retries)
	}
	if len(*delays) != 2 {
		t.Errorf("slept %d times, want 2", len(*delays))
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport errors", res.StatusCode)
	}
}

func TestDeliver_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine()
	e.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := e.Deliver(ctx, "x", Config{URL: srv.URL, MaxRetries: 5, BaseDelay: time.Hour})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Err == nil {
		t.Fatal("Err = nil, want context error")
	}
}
