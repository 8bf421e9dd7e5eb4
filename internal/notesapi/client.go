// Package notesapi is a thin HTTP client for the upstream meeting-notes
// service. It fetches documents, panels, and transcripts; retry and delivery
// semantics live elsewhere.
package notesapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/meetsync/internal/payload"
)

const defaultTimeout = 30 * time.Second

// Client communicates with the meeting-notes API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client targeting the given API base URL, authenticating
// every request with the bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// IsReachable returns true if the API responds to GET /v1/health with 200.
func (c *Client) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// documentsResponse mirrors the JSON returned by GET /v1/documents.
type documentsResponse struct {
	Documents []payload.Document `json:"documents"`
}

// FetchDocuments returns the most recent meeting documents, newest first,
// capped at limit.
func (c *Client) FetchDocuments(ctx context.Context, limit int) ([]payload.Document, error) {
	url := c.baseURL + "/v1/documents?limit=" + strconv.Itoa(limit)
	var out documentsResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("fetching documents: %w", err)
	}
	return out.Documents, nil
}

// panelsResponse mirrors the JSON returned by GET /v1/documents/{id}/panels.
type panelsResponse struct {
	Panels []payload.Panel `json:"panels"`
}

// FetchPanels returns the structured-content panels attached to a document.
func (c *Client) FetchPanels(ctx context.Context, docID string) ([]payload.Panel, error) {
	url := c.baseURL + "/v1/documents/" + docID + "/panels"
	var out panelsResponse
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("fetching panels for %s: %w", docID, err)
	}
	return out.Panels, nil
}

// transcriptResponse mirrors the JSON returned by GET /v1/documents/{id}/transcript.
type transcriptResponse struct {
	Segments []payload.Segment `json:"segments"`
}

// FetchTranscript returns the ordered speech segments for a document.
// A 404 means the meeting has no transcript; this is not an error.
func (c *Client) FetchTranscript(ctx context.Context, docID string) ([]payload.Segment, error) {
	url := c.baseURL + "/v1/documents/" + docID + "/transcript"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript for %s: %w", docID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching transcript for %s: unexpected status %d", docID, resp.StatusCode)
	}

	var out transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding transcript for %s: %w", docID, err)
	}
	return out.Segments, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
