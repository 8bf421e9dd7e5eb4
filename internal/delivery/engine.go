// Package delivery sends payloads to a single HTTP sink with bounded retry,
// configurable backoff, and optional HMAC signing.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Backoff strategies.
const (
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body
// when a signing secret is configured.
const SignatureHeader = "X-Meetsync-Signature"

const defaultTimeout = 30 * time.Second

// Config describes one HTTP sink target.
type Config struct {
	URL               string            `json:"url"`
	Headers           map[string]string `json:"headers,omitempty"`
	Secret            string            `json:"secret,omitempty"`
	MaxRetries        int               `json:"maxRetries"`
	Backoff           string            `json:"backoff"`
	BaseDelay         time.Duration     `json:"baseDelay"`
	Timeout           time.Duration     `json:"timeout,omitempty"`
	IncludeTranscript bool              `json:"includeTranscript"`
}

// Result is the outcome of one delivery, after all retries.
// Retries is the number of attempts beyond the first (0 on first-try success).
type Result struct {
	Success    bool
	StatusCode int
	Retries    int
	Err        error
}

// Engine delivers payloads over HTTP. The zero value is not usable; construct
// with NewEngine.
type Engine struct {
	httpClient *http.Client

	// sleep waits between attempts; tests replace it to capture delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a delivery engine.
func NewEngine() *Engine {
	return &Engine{
		httpClient: &http.Client{},
		sleep:      sleepCtx,
	}
}

// Deliver POSTs the JSON-serialized body to cfg.URL, retrying on any non-2xx
// response or transport error up to cfg.MaxRetries times (cfg.MaxRetries+1
// attempts total). There is deliberately no status-code distinction: 4xx
// responses are retried exactly like 5xx. Backoff is awaited only between
// attempts, never after the last one.
func (e *Engine) Deliver(ctx context.Context, body any, cfg Config) Result {
	data, err := json.Marshal(body)
	if err != nil {
		return Result{Err: fmt.Errorf("marshaling payload: %w", err)}
	}

	attempts := cfg.MaxRetries + 1
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := e.attempt(ctx, data, cfg)
		if err == nil {
			return Result{Success: true, StatusCode: status, Retries: attempt - 1}
		}
		lastErr = err
		lastStatus = status

		if attempt < attempts {
			if err := e.sleep(ctx, backoffDelay(cfg, attempt)); err != nil {
				return Result{StatusCode: lastStatus, Retries: attempt - 1, Err: err}
			}
		}
	}

	return Result{
		StatusCode: lastStatus,
		Retries:    attempts - 1,
		Err:        fmt.Errorf("delivery to %s failed after %d attempts: %w", cfg.URL, attempts, lastErr),
	}
}

// attempt performs a single POST. Returns the HTTP status code (0 on
// transport error) and a non-nil error for anything outside 2xx.
func (e *Engine) attempt(ctx context.Context, data []byte, cfg Config) (int, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		// Recomputed each attempt; the payload is immutable and HMAC is cheap.
		req.Header.Set(SignatureHeader, Sign(data, cfg.Secret))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return resp.StatusCode, nil
}

// Sign returns the hex-encoded HMAC-SHA256 of data under secret.
func Sign(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// backoffDelay returns the wait before attempt n+1, for 1-indexed attempt n:
// linear base*n, exponential base*2^(n-1).
func backoffDelay(cfg Config, attempt int) time.Duration {
	switch cfg.Backoff {
	case BackoffExponential:
		return cfg.BaseDelay * time.Duration(1<<(attempt-1))
	default:
		return cfg.BaseDelay * time.Duration(attempt)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
