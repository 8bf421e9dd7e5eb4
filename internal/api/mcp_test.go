package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/meetsync/internal/history"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// TestMCPSyncStatus verifies the status tool payload.
func TestMCPSyncStatus(t *testing.T) {
	deps := MCPDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}}

	result, err := mcpSyncStatus(deps)(context.Background(), makeCallToolRequest("sync_status", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var got StatusResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got.ProcessedCount != 2 || got.SkippedCount != 1 || got.FailureStreak != 2 {
		t.Errorf("status = %+v", got)
	}
}

// TestMCPListProcessed verifies ordering, limit, and field shape.
func TestMCPListProcessed(t *testing.T) {
	deps := MCPDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}}

	result, err := mcpListProcessed(deps)(context.Background(),
		makeCallToolRequest("list_processed_meetings", map[string]interface{}{"limit": 1}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0]["id"] != "doc-2" {
		t.Errorf("first entry id = %v, want doc-2 (newest first)", got[0]["id"])
	}
}

// TestMCPListSkipped verifies the skip ledger tool.
func TestMCPListSkipped(t *testing.T) {
	deps := MCPDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}}

	result, err := mcpListSkipped(deps)(context.Background(),
		makeCallToolRequest("list_skipped_meetings", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := toolText(t, result)
	if !strings.Contains(text, "doc-9") || !strings.Contains(text, "missing_required_template") {
		t.Errorf("result missing skipped entry: %s", text)
	}
}

// TestMCPDeliveryHistory covers the filter and the disabled case.
func TestMCPDeliveryHistory(t *testing.T) {
	hist := &mockHistory{deliveries: []history.Delivery{
		{ID: "d-1", MeetingID: "doc-1", Sink: "webhook", Success: true},
		{ID: "d-2", MeetingID: "doc-2", Sink: "table", Success: false},
	}}
	deps := MCPDeps{Pipeline: &mockPipeline{}, History: hist}

	result, err := mcpDeliveryHistory(deps)(context.Background(),
		makeCallToolRequest("delivery_history", map[string]interface{}{"meeting_id": "doc-2"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "d-2") || strings.Contains(text, "d-1") {
		t.Errorf("filtered history = %s", text)
	}

	// Disabled history reports an error result, not a transport error.
	noHist := MCPDeps{Pipeline: &mockPipeline{}}
	result, err = mcpDeliveryHistory(noHist)(context.Background(),
		makeCallToolRequest("delivery_history", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for disabled history")
	}
}

// TestMCPStatusResource verifies the status resource mirrors the tool.
func TestMCPStatusResource(t *testing.T) {
	deps := MCPDeps{Pipeline: &mockPipeline{snapshot: testSnapshot()}}

	contents, err := mcpResourceStatus(deps)(context.Background(), makeReadResourceRequest("meetsync://status"))
	if err != nil {
		t.Fatalf("resource error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var got StatusResponse
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if got.ProcessedCount != 2 {
		t.Errorf("ProcessedCount = %d, want 2", got.ProcessedCount)
	}
}

// TestMCPServerRegisters constructs the server to catch registration panics.
func TestMCPServerRegisters(t *testing.T) {
	s := NewMCPServer(MCPDeps{Pipeline: &mockPipeline{}})
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
