package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/oxhq/mcpwire/mcp/tools"
	"github.com/oxhq/mcpwire/mcp/types"
)

// newLinkedPeers wires a client and a server together over an in-memory
// pipe and runs both read loops.
func newLinkedPeers(t *testing.T, opts ...ClientOption) (*Client, *Server) {
	t.Helper()

	serverEnd, clientEnd := NewPipePair()

	serverConfig := DefaultConfig()
	serverConfig.Name = "test-server"
	serverConfig.DatabaseURL = "skip"
	serverConfig.LogWriter = io.Discard

	server, err := NewServer(serverConfig, serverEnd)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	clientConfig := DefaultConfig()
	clientConfig.Name = "test-client"
	clientConfig.LogWriter = io.Discard

	client, err := NewClient(clientConfig, clientEnd, opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	go func() { _ = server.Start() }()
	go func() { _ = client.Start() }()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	return client, server
}

func TestClientInitializeHandshake(t *testing.T) {
	client, server := newLinkedPeers(t)

	result, err := client.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}

	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "test-server" {
		t.Errorf("serverInfo = %v", info)
	}

	if !client.State().Initialized() {
		t.Error("client state not marked initialized")
	}

	// The notifications/initialized side effect reaches the server shortly.
	deadline := time.Now().Add(time.Second)
	for !server.State().Initialized() {
		if time.Now().After(deadline) {
			t.Fatal("server never saw initialize")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientCallsServerTool(t *testing.T) {
	client, server := newLinkedPeers(t)
	if err := server.RegisterTool(tools.Calculate()); err != nil {
		t.Fatalf("register calculate: %v", err)
	}

	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	result, err := client.CallTool(context.Background(), "calculate", map[string]any{
		"operation": "multiply",
		"a":         6,
		"b":         7,
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}

	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v", content)
	}
	block, _ := content[0].(map[string]any)
	if block["text"] != "42" {
		t.Errorf("text = %v", block["text"])
	}
}

func TestServerFetchesClientRoots(t *testing.T) {
	client, server := newLinkedPeers(t)
	if err := client.Roots().SetRoots([]Root{
		{URI: "file:///workspace", Name: "workspace"},
	}); err != nil {
		t.Fatalf("SetRoots failed: %v", err)
	}

	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	roots, err := server.RequestRoots(context.Background())
	if err != nil {
		t.Fatalf("RequestRoots failed: %v", err)
	}
	if len(roots) != 1 || roots[0].URI != "file:///workspace" {
		t.Fatalf("roots = %v", roots)
	}
}

func TestSamplingToolLoopEndToEnd(t *testing.T) {
	llmCalls := 0
	handler := func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error) {
		llmCalls++
		if llmCalls == 1 {
			return &CreateMessageResult{
				Role: "assistant",
				Content: []types.ContentBlock{
					types.ToolUseContent("u1", "calculate", json.RawMessage(`{"operation":"add","a":5,"b":3}`)),
				},
				Model:      "test-model",
				StopReason: StopReasonToolUse,
			}, nil
		}

		// The tool result from the real server round trip feeds the final
		// answer.
		last := req.Messages[len(req.Messages)-1]
		answer := ""
		for _, block := range last.Content {
			if block.Type == types.ContentTypeToolResult {
				answer = types.JoinedText(block.Content)
			}
		}
		return &CreateMessageResult{
			Role:       "assistant",
			Content:    []types.ContentBlock{types.TextContent("the answer is " + answer)},
			Model:      "test-model",
			StopReason: StopReasonEndTurn,
		}, nil
	}

	client, server := newLinkedPeers(t, WithLLMHandler(handler, true))
	if err := server.RegisterTool(tools.Calculate()); err != nil {
		t.Fatalf("register calculate: %v", err)
	}
	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	result, err := server.RequestSampling(context.Background(), map[string]any{
		"messages": []any{
			map[string]any{
				"role":    "user",
				"content": map[string]any{"type": "text", "text": "what is 5+3?"},
			},
		},
		"maxTokens": 50,
		"tools": []any{
			map[string]any{"name": "calculate", "inputSchema": map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("RequestSampling failed: %v", err)
	}
	if llmCalls != 2 {
		t.Errorf("llm calls = %d, want 2", llmCalls)
	}

	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v", content)
	}
	block, _ := content[0].(map[string]any)
	if block["text"] != "the answer is 8" {
		t.Errorf("text = %v", block["text"])
	}

	if records := server.State().SamplingHistory(); len(records) != 1 {
		t.Errorf("sampling history = %d records", len(records))
	}
}

func TestElicitationURLModeEndToEnd(t *testing.T) {
	completed := make(chan *ElicitResult, 1)

	handler := func(ctx context.Context, req *ElicitRequest) (*ElicitResult, error) {
		// A real host would open req.URL in a browser here.
		return &ElicitResult{Action: ElicitActionAccept}, nil
	}

	client, server := newLinkedPeers(t,
		WithElicitationHandler(handler, true, true),
		WithElicitationCompletion(func(id string, result *ElicitResult) {
			completed <- result
		}),
	)
	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	result, err := server.RequestElicitation(context.Background(), map[string]any{
		"message":       "finish signup",
		"mode":          "url",
		"elicitationId": "el-e2e",
		"url":           "https://example.com/signup",
	})
	if err != nil {
		t.Fatalf("RequestElicitation failed: %v", err)
	}
	if result["action"] != "accept" {
		t.Fatalf("provisional result = %v", result)
	}

	// Later the server reports the out-of-band outcome.
	server.NotifyElicitationComplete("el-e2e", "accept", map[string]any{"plan": "pro"})

	select {
	case outcome := <-completed:
		if outcome.Action != ElicitActionAccept || outcome.Content["plan"] != "pro" {
			t.Fatalf("outcome = %+v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
}

func TestCancellationRace(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	sawCancelled := make(chan bool, 1)

	client, server := newLinkedPeers(t)
	slow := tools.NewTool("slow").
		WithInputSchema(map[string]any{"type": "object"}).
		WithHandler(func(ctx context.Context, params json.RawMessage) (any, error) {
			close(started)
			<-release
			token, _ := CancelTokenFromContext(ctx)
			sawCancelled <- token.IsCancelled()
			// Handler still returns normally; cancellation is cooperative.
			return "finished anyway", nil
		}).
		Build()
	if err := server.RegisterTool(slow); err != nil {
		t.Fatalf("register slow: %v", err)
	}
	if _, err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	base := client.Tracker().Stats()

	responded := make(chan any, 1)
	id, _, err := client.Call("tools/call", map[string]any{
		"name":      "slow",
		"arguments": map[string]any{},
	}, Meta{},
		func(result any) { responded <- result },
		func(callErr *MCPError) { responded <- callErr },
	)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	<-started
	if !client.CancelOutbound(id, "user aborted") {
		t.Fatal("CancelOutbound found no pending entry")
	}

	// The caller's callbacks drain into the cancel error immediately.
	select {
	case outcome := <-responded:
		callErr, ok := outcome.(*MCPError)
		if !ok || callErr.Code != RequestCancelled {
			t.Fatalf("expected cancel error, got %v", outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never drained the pending callbacks")
	}

	// Give the cancel notification time to reach the handler's token, then
	// let the handler finish; its late response must be discarded.
	deadline := time.Now().Add(2 * time.Second)
	for server.inboundCancels.ActiveCount() > 0 || countInflight(server) > 1 {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	if !<-sawCancelled {
		t.Error("handler token never reported cancelled")
	}

	// The late response is silently discarded by the client tracker.
	time.Sleep(50 * time.Millisecond)
	stats := client.Tracker().Stats()
	if stats.Completed != base.Completed {
		t.Errorf("late response was not discarded: %+v", stats)
	}
	if stats.Cancelled != base.Cancelled+1 {
		t.Errorf("cancel not accounted: %+v", stats)
	}
}

func countInflight(s *Server) int {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return len(s.inflightCtx)
}

func TestClientRequestTimeout(t *testing.T) {
	// A server that never answers: null transport on the client side.
	config := DefaultConfig()
	config.LogWriter = io.Discard
	config.RequestTimeout = 30 * time.Millisecond
	config.CallTimeout = time.Second

	client, err := NewClient(config, NewNullTransport())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	errCh := make(chan *MCPError, 1)
	_, _, err = client.Call("ping", map[string]any{}, Meta{},
		func(any) { t.Error("unexpected success") },
		func(callErr *MCPError) { errCh <- callErr },
	)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	select {
	case callErr := <-errCh:
		if callErr.Code != RequestTimeout {
			t.Fatalf("expected timeout, got %+v", callErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	stats := client.Tracker().Stats()
	if stats.TimedOut != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
