package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server. The tool set is read-only:
// agents can inspect the pipeline but never trigger deliveries.
type MCPDeps struct {
	Pipeline Pipeline
	History  HistoryReader // optional; history tools report unavailability when nil
}

// NewMCPServer creates an MCP server with the pipeline-inspection tools and
// status resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"meetsync",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("meetsync — meeting-notes delivery pipeline. Tools are read-only inspection of sync state and delivery history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("sync_status",
			mcp.WithDescription("Current pipeline status: last check time, processed/skipped counts, failure streak."),
		),
		mcpSyncStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_processed_meetings",
			mcp.WithDescription("List meetings in the processed ledger, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListProcessed(deps),
	)

	s.AddTool(
		mcp.NewTool("list_skipped_meetings",
			mcp.WithDescription("List meetings skipped by template validation, with reasons and skip counts."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListSkipped(deps),
	)

	s.AddTool(
		mcp.NewTool("delivery_history",
			mcp.WithDescription("Recent per-sink delivery attempts, optionally filtered by meeting id."),
			mcp.WithString("meeting_id", mcp.Description("Filter to one meeting")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpDeliveryHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"meetsync://status",
			"Pipeline Status",
			mcp.WithResourceDescription("Current pipeline status as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func statusPayload(deps MCPDeps) StatusResponse {
	st := deps.Pipeline.Snapshot()
	return StatusResponse{
		LastCheck:      st.LastCheckTimestamp,
		ProcessedCount: len(st.ProcessedMeetings),
		SkippedCount:   len(st.SkippedMeetings),
		FailureStreak:  st.FailureTracking.ConsecutiveFailures,
		LastSuccessAt:  st.FailureTracking.LastSuccessAt,
	}
}

func mcpSyncStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(statusPayload(deps))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListProcessed(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := toolLimit(req)

		st := deps.Pipeline.Snapshot()
		recs := st.ProcessedMeetings
		if len(recs) > limit {
			recs = recs[len(recs)-limit:]
		}

		type processedEntry struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			ProcessedAt string `json:"processed_at"`
			Success     bool   `json:"success"`
		}
		out := make([]processedEntry, len(recs))
		for i, rec := range recs {
			out[len(recs)-1-i] = processedEntry{
				ID:          rec.ID,
				Title:       rec.Title,
				ProcessedAt: rec.ProcessedAt.Format(time.RFC3339),
				Success:     rec.Success,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListSkipped(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := toolLimit(req)

		st := deps.Pipeline.Snapshot()
		recs := st.SkippedMeetings
		if len(recs) > limit {
			recs = recs[len(recs)-limit:]
		}

		type skippedEntry struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			Reason       string `json:"reason"`
			SkipCount    int    `json:"skip_count"`
			LastNotified string `json:"last_notified"`
		}
		out := make([]skippedEntry, len(recs))
		for i, rec := range recs {
			out[i] = skippedEntry{
				ID:           rec.ID,
				Title:        rec.Title,
				Reason:       rec.Reason,
				SkipCount:    rec.SkipCount,
				LastNotified: rec.LastNotifiedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeliveryHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.History == nil {
			return mcpError("delivery history is disabled"), nil
		}

		limit := toolLimit(req)
		meetingID := req.GetString("meeting_id", "")

		var (
			deliveries []any
			err        error
		)
		if meetingID != "" {
			ds, derr := deps.History.DeliveriesForMeeting(meetingID, limit)
			err = derr
			for _, d := range ds {
				deliveries = append(deliveries, d)
			}
		} else {
			ds, derr := deps.History.RecentDeliveries(limit)
			err = derr
			for _, d := range ds {
				deliveries = append(deliveries, d)
			}
		}
		if err != nil {
			return mcpError(fmt.Sprintf("reading delivery history: %v", err)), nil
		}
		if deliveries == nil {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(deliveries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(statusPayload(deps))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func toolLimit(req mcp.CallToolRequest) int {
	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
