package types

import (
	"encoding/json"
	"testing"
)

func TestTextBlockRoundTrip(t *testing.T) {
	block := TextContent("hello")

	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != ContentTypeText || decoded.Text != "hello" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestToolUseBlockRoundTrip(t *testing.T) {
	block := ToolUseContent("use-1", "calculate", json.RawMessage(`{"a":1}`))

	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("wire decode failed: %v", err)
	}
	if wire["type"] != "tool_use" || wire["name"] != "calculate" || wire["id"] != "use-1" {
		t.Fatalf("wire = %v", wire)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.ToolName != "calculate" || decoded.ID != "use-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestToolResultBlockRoundTrip(t *testing.T) {
	block := ToolResultContent("use-1", []ContentBlock{TextContent("8")}, true)

	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != ContentTypeToolResult || decoded.ToolUseID != "use-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if !decoded.IsError || len(decoded.Content) != 1 || decoded.Content[0].Text != "8" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestImageBlockRoundTrip(t *testing.T) {
	block := ImageContent("aGVsbG8=", "image/png")

	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != ContentTypeImage || decoded.Data != "aGVsbG8=" || decoded.MimeType != "image/png" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestResourceLinkKeepsNameField(t *testing.T) {
	block := ResourceLinkContent("file:///x", "x-file")

	data, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ContentBlock
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Name != "x-file" || decoded.ToolName != "" {
		t.Fatalf("name routed to wrong variant: %+v", decoded)
	}
}

func TestContentBlockRejectsMissingType(t *testing.T) {
	var decoded ContentBlock
	if err := json.Unmarshal([]byte(`{"text":"no type"}`), &decoded); err == nil {
		t.Fatal("expected rejection of block without type")
	}
}

func TestJoinedText(t *testing.T) {
	blocks := []ContentBlock{
		TextContent("a"),
		ImageContent("data", "image/png"),
		TextContent("b"),
	}
	if got := JoinedText(blocks); got != "a\nb" {
		t.Fatalf("joined = %q", got)
	}
}
