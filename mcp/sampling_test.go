package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/oxhq/mcpwire/mcp/types"
)

func toolRequest() *CreateMessageRequest {
	return &CreateMessageRequest{
		Messages: []SamplingMessage{
			{Role: "user", Content: []types.ContentBlock{types.TextContent("what is 5+3?")}},
		},
		MaxTokens: 100,
		Tools: []types.ToolDefinition{
			{Name: "calculate", InputSchema: map[string]any{"type": "object"}},
		},
	}
}

func TestSamplingMessageAcceptsSingleBlock(t *testing.T) {
	raw := []byte(`{"role":"user","content":{"type":"text","text":"hi"}}`)
	var msg SamplingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(msg.Content) != 1 || msg.Content[0].Text != "hi" {
		t.Fatalf("content = %+v", msg.Content)
	}
}

func TestSamplingMessageAcceptsBlockArray(t *testing.T) {
	raw := []byte(`{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`)
	var msg SamplingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(msg.Content) != 2 {
		t.Fatalf("content = %+v", msg.Content)
	}
}

func TestSamplingMessageRejectsBadRole(t *testing.T) {
	raw := []byte(`{"role":"system","content":{"type":"text","text":"x"}}`)
	var msg SamplingMessage
	if err := json.Unmarshal(raw, &msg); err == nil {
		t.Fatal("expected role rejection")
	}
}

func TestCreateMessageRequestValidation(t *testing.T) {
	req := &CreateMessageRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("empty messages should fail")
	}

	req = toolRequest()
	req.MaxTokens = 0
	if err := req.Validate(); err == nil {
		t.Fatal("maxTokens 0 should fail")
	}

	req = toolRequest()
	req.IncludeContext = "everything"
	if err := req.Validate(); err == nil {
		t.Fatal("bad includeContext should fail")
	}

	req = toolRequest()
	req.ToolChoice = &ToolChoice{Mode: "tool"}
	if err := req.Validate(); err == nil {
		t.Fatal("tool mode without name should fail")
	}

	if err := toolRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestSamplingWithoutToolsCallsHandlerOnce(t *testing.T) {
	calls := 0
	engine := NewSamplingEngine(func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		calls++
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.TextContent("done")},
			Model:      "test-model",
			StopReason: StopReasonEndTurn,
		}, nil
	}, nil, ToolLoopConfig{})

	req := toolRequest()
	req.Tools = nil
	result, err := engine.CreateMessage(context.Background(), req, CancelToken{})
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times", calls)
	}
	if result.StopReason != StopReasonEndTurn {
		t.Errorf("stopReason = %s", result.StopReason)
	}
}

func TestToolLoopWithinBounds(t *testing.T) {
	llmCalls := 0
	toolCalls := 0

	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		llmCalls++
		if llmCalls <= 2 {
			return &CreateMessageResult{
				Role: "assistant",
				Content: []types.ContentBlock{
					types.ToolUseContent(fmt.Sprintf("use-%d", llmCalls), "calculate", json.RawMessage(`{"a":5,"b":3}`)),
				},
				Model:      "test-model",
				StopReason: StopReasonToolUse,
			}, nil
		}
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.TextContent("8")},
			Model:      "test-model",
			StopReason: StopReasonEndTurn,
		}, nil
	}

	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		toolCalls++
		if method != "tools/call" {
			t.Errorf("unexpected method: %s", method)
		}
		return map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "8"}},
		}, nil
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 10, Timeout: time.Minute})
	result, err := engine.CreateMessage(context.Background(), toolRequest(), CancelToken{})
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	if llmCalls != 3 {
		t.Errorf("llm calls = %d, want 3", llmCalls)
	}
	if toolCalls != 2 {
		t.Errorf("tool calls = %d, want 2", toolCalls)
	}
	if types.JoinedText(result.Content) != "8" {
		t.Errorf("final content = %+v", result.Content)
	}
}

func TestToolLoopExceedsIterations(t *testing.T) {
	llmCalls := 0
	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		llmCalls++
		return &CreateMessageResult{
			Role: "assistant",
			Content: []types.ContentBlock{
				types.ToolUseContent(fmt.Sprintf("use-%d", llmCalls), "calculate", nil),
			},
			Model:      "test-model",
			StopReason: StopReasonToolUse,
		}, nil
	}
	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		return map[string]any{"content": []any{}}, nil
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 2, Timeout: time.Minute})
	_, err := engine.CreateMessage(context.Background(), toolRequest(), CancelToken{})
	if err == nil {
		t.Fatal("expected iteration exhaustion")
	}
	mcpErr, ok := err.(*MCPError)
	if !ok || mcpErr.Code != InternalError {
		t.Fatalf("expected internal error, got %v", err)
	}
	if llmCalls != 2 {
		t.Errorf("llm calls = %d, want exactly 2", llmCalls)
	}
}

func TestToolLoopWallClockBound(t *testing.T) {
	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		time.Sleep(20 * time.Millisecond)
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.ToolUseContent("u", "calculate", nil)},
			Model:      "test-model",
			StopReason: StopReasonToolUse,
		}, nil
	}
	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		return nil, nil
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 1000, Timeout: 30 * time.Millisecond})
	_, err := engine.CreateMessage(context.Background(), toolRequest(), CancelToken{})
	if err == nil {
		t.Fatal("expected wall-clock exhaustion")
	}
}

func TestToolLoopToolErrorFedBack(t *testing.T) {
	var sawToolResult *types.ContentBlock
	llmCalls := 0

	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		llmCalls++
		if llmCalls == 1 {
			return &CreateMessageResult{
				Role:       "assistant",
				Content:    []types.ContentBlock{types.ToolUseContent("u1", "broken", nil)},
				Model:      "test-model",
				StopReason: StopReasonToolUse,
			}, nil
		}
		// Second round sees the synthesized tool_result.
		last := req.Messages[len(req.Messages)-1]
		for i := range last.Content {
			if last.Content[i].Type == types.ContentTypeToolResult {
				sawToolResult = &last.Content[i]
			}
		}
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.TextContent("recovered")},
			Model:      "test-model",
			StopReason: StopReasonEndTurn,
		}, nil
	}
	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("tool exploded")
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 5, Timeout: time.Minute})
	result, err := engine.CreateMessage(context.Background(), toolRequest(), CancelToken{})
	if err != nil {
		t.Fatalf("loop should survive tool errors: %v", err)
	}
	if types.JoinedText(result.Content) != "recovered" {
		t.Errorf("final content = %+v", result.Content)
	}
	if sawToolResult == nil {
		t.Fatal("second round never saw a tool_result block")
	}
	if !sawToolResult.IsError {
		t.Error("tool failure not flagged is_error")
	}
	if sawToolResult.ToolUseID != "u1" {
		t.Errorf("tool_use_id = %s", sawToolResult.ToolUseID)
	}
}

func TestToolLoopCancelledBetweenIterations(t *testing.T) {
	source := NewCancelSource()
	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		source.Cancel()
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.ToolUseContent("u", "calculate", nil)},
			Model:      "test-model",
			StopReason: StopReasonToolUse,
		}, nil
	}
	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		return nil, nil
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 10, Timeout: time.Minute})
	_, err := engine.CreateMessage(context.Background(), toolRequest(), source.Token())
	mcpErr, ok := err.(*MCPError)
	if !ok || mcpErr.Code != RequestCancelled {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestToolUseStopReasonWithoutToolUses(t *testing.T) {
	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.TextContent("nothing to call")},
			Model:      "test-model",
			StopReason: StopReasonToolUse,
		}, nil
	}
	caller := func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
		t.Fatal("tool caller must not run")
		return nil, nil
	}

	engine := NewSamplingEngine(handler, caller, ToolLoopConfig{MaxIterations: 3, Timeout: time.Minute})
	result, err := engine.CreateMessage(context.Background(), toolRequest(), CancelToken{})
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	if types.JoinedText(result.Content) != "nothing to call" {
		t.Errorf("result = %+v", result.Content)
	}
}
