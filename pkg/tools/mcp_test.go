package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestContentTextJoinsPartsWithBlankLines(t *testing.T) {
	got := contentText([]mcp.Content{
		mcp.TextContent{Type: "text", Text: "part one"},
		mcp.TextContent{Type: "text", Text: "part two"},
	})
	if got != "part one\n\npart two" {
		t.Errorf("got %q, want parts separated by a blank line", got)
	}
}

func TestContentTextSkipsNonText(t *testing.T) {
	got := contentText([]mcp.Content{
		mcp.TextContent{Type: "text", Text: "kept"},
		mcp.ImageContent{Type: "image"},
	})
	if got != "kept" {
		t.Errorf("got %q", got)
	}
}

func TestMCPToolValidateRequiresObject(t *testing.T) {
	tool := &mcpTool{name: "remote"}
	if err := tool.Validate(json.RawMessage(`[1,2]`)); err == nil {
		t.Error("non-object input must be rejected")
	}
	if err := tool.Validate(json.RawMessage(`{"a":1}`)); err != nil {
		t.Errorf("object input rejected: %v", err)
	}
}
