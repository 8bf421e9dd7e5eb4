package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/meetsync/internal/payload"
)

const defaultTableTimeout = 30 * time.Second

// tableRecord is the wire shape expected by the tabular-store API:
// {"records": [{"fields": {...}}]}.
type tableRecord struct {
	Fields map[string]any `json:"fields"`
}

type tableRequest struct {
	Records []tableRecord `json:"records"`
}

func tableSink(cfg TableConfig) func(context.Context, *payload.MeetingPayload) Result {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTableTimeout
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, p *payload.MeetingPayload) Result {
		res := Result{Destination: "table"}

		body, err := json.Marshal(tableRequest{Records: []tableRecord{{Fields: tableFields(p, cfg)}}})
		if err != nil {
			res.Err = fmt.Errorf("marshaling table record: %w", err)
			return res
		}

		url := strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.TableID
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			res.Err = fmt.Errorf("creating table request: %w", err)
			return res
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			res.Err = fmt.Errorf("posting table record: %w", err)
			return res
		}
		defer resp.Body.Close()
		res.StatusCode = resp.StatusCode

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			res.Err = fmt.Errorf("table API returned %d: %s", resp.StatusCode, respBody)
			return res
		}

		res.Success = true
		return res
	}
}

// tableFields flattens the payload into the column map delivered to the
// tabular store. Participants collapse to a comma-separated email list since
// tabular cells are scalar.
func tableFields(p *payload.MeetingPayload, cfg TableConfig) map[string]any {
	emails := make([]string, 0, len(p.Participants))
	for _, part := range p.Participants {
		emails = append(emails, part.Email)
	}

	fields := map[string]any{
		"Meeting ID":   p.MeetingID,
		"Title":        p.Title,
		"Date":         p.Date,
		"Organization": p.Organization.Name,
		"Participants": strings.Join(emails, ", "),
		"Summary":      p.Template.Summary,
		"Action Items": p.Template.ActionItems,
		"Processed At": p.ProcessedAt,
	}
	if p.DurationMinutes != nil {
		fields["Duration (min)"] = *p.DurationMinutes
	}
	for k, v := range cfg.ExtraFields {
		fields[k] = v
	}
	return fields
}
