package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oxhq/mcpwire/mcp/types"
)

// SamplingMessage is one turn of a sampling conversation. Content may be a
// single block or an array on the wire; it is normalized to a slice here.
type SamplingMessage struct {
	Role    string               `json:"role"`
	Content []types.ContentBlock `json:"content"`
}

type samplingMessageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON accepts both the single-block and array content forms.
func (m *SamplingMessage) UnmarshalJSON(raw []byte) error {
	var wire samplingMessageWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	if wire.Role != "user" && wire.Role != "assistant" {
		return fmt.Errorf("invalid sampling role: %q", wire.Role)
	}
	blocks, err := decodeContentBlocks(wire.Content)
	if err != nil {
		return err
	}
	m.Role = wire.Role
	m.Content = blocks
	return nil
}

func decodeContentBlocks(raw json.RawMessage) ([]types.ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []types.ContentBlock
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single types.ContentBlock
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	return []types.ContentBlock{single}, nil
}

// ModelPreferences carries the client's model selection hints.
type ModelPreferences struct {
	Hints                []map[string]any `json:"hints,omitempty"`
	CostPriority         *float64         `json:"costPriority,omitempty"`
	SpeedPriority        *float64         `json:"speedPriority,omitempty"`
	IntelligencePriority *float64         `json:"intelligencePriority,omitempty"`
}

// ToolChoice constrains how the model may use tools.
type ToolChoice struct {
	Mode string `json:"mode"` // auto, required, none, tool
	Name string `json:"name,omitempty"`
}

// CreateMessageRequest is the parsed form of sampling/createMessage params.
type CreateMessageRequest struct {
	Messages         []SamplingMessage      `json:"messages"`
	MaxTokens        int64                  `json:"maxTokens"`
	Temperature      *float64               `json:"temperature,omitempty"`
	StopSequences    []string               `json:"stopSequences,omitempty"`
	SystemPrompt     string                 `json:"systemPrompt,omitempty"`
	IncludeContext   string                 `json:"includeContext,omitempty"`
	ModelPreferences *ModelPreferences      `json:"modelPreferences,omitempty"`
	Tools            []types.ToolDefinition `json:"tools,omitempty"`
	ToolChoice       *ToolChoice            `json:"toolChoice,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
}

// Validate enforces the request invariants.
func (r *CreateMessageRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewMCPError(InvalidParams, "messages must not be empty")
	}
	if r.MaxTokens < 1 {
		return NewMCPError(InvalidParams, "maxTokens must be at least 1")
	}
	switch r.IncludeContext {
	case "", "none", "thisServer", "allServers":
	default:
		return NewMCPError(InvalidParams, fmt.Sprintf("invalid includeContext: %q", r.IncludeContext))
	}
	if r.ToolChoice != nil {
		switch r.ToolChoice.Mode {
		case "auto", "required", "none":
		case "tool":
			if r.ToolChoice.Name == "" {
				return NewMCPError(InvalidParams, "toolChoice mode tool requires a name")
			}
		default:
			return NewMCPError(InvalidParams, fmt.Sprintf("invalid toolChoice mode: %q", r.ToolChoice.Mode))
		}
	}
	return nil
}

// Stop reasons reported by CreateMessageResult.
const (
	StopReasonEndTurn      = "endTurn"
	StopReasonStopSequence = "stopSequence"
	StopReasonMaxTokens    = "maxTokens"
	StopReasonToolUse      = "toolUse"
)

// CreateMessageResult is the LLM handler's answer to a createMessage call.
type CreateMessageResult struct {
	Role       string               `json:"role"`
	Content    []types.ContentBlock `json:"content"`
	Model      string               `json:"model"`
	StopReason string               `json:"stopReason,omitempty"`
}

type createMessageResultWire struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stopReason,omitempty"`
}

// UnmarshalJSON accepts both content forms, mirroring SamplingMessage.
func (r *CreateMessageResult) UnmarshalJSON(raw []byte) error {
	var wire createMessageResultWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	blocks, err := decodeContentBlocks(wire.Content)
	if err != nil {
		return err
	}
	r.Role = wire.Role
	r.Content = blocks
	r.Model = wire.Model
	r.StopReason = wire.StopReason
	return nil
}

// ToolUses extracts the tool_use blocks of a result in order.
func (r *CreateMessageResult) ToolUses() []types.ContentBlock {
	var uses []types.ContentBlock
	for _, block := range r.Content {
		if block.Type == types.ContentTypeToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// wantsToolRound reports whether the result asks for another tool round.
func (r *CreateMessageResult) wantsToolRound() bool {
	if r.StopReason == StopReasonToolUse {
		return true
	}
	return len(r.ToolUses()) > 0
}

// LLMHandler produces one assistant turn for the given request.
type LLMHandler func(ctx context.Context, req *CreateMessageRequest) (*CreateMessageResult, error)

// ToolCaller dispatches one tool invocation back to the requesting server.
// The method is always "tools/call"; params carry {name, arguments}.
type ToolCaller func(ctx context.Context, method string, params map[string]any) (map[string]any, error)

// SamplingEngine drives a user-supplied LLM handler through the agentic
// tool loop, bounded by iteration count and aggregate wall clock.
type SamplingEngine struct {
	handler    LLMHandler
	toolCaller ToolCaller
	config     ToolLoopConfig
	debugLog   func(format string, args ...any)
}

// NewSamplingEngine builds an engine around the handler. toolCaller may be
// nil, in which case tool rounds are disabled and the handler is invoked
// exactly once.
func NewSamplingEngine(handler LLMHandler, toolCaller ToolCaller, config ToolLoopConfig) *SamplingEngine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultToolLoopConfig().MaxIterations
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultToolLoopConfig().Timeout
	}
	return &SamplingEngine{
		handler:    handler,
		toolCaller: toolCaller,
		config:     config,
		debugLog:   func(format string, args ...any) {},
	}
}

// SetDebugLog installs the session's debug logger.
func (e *SamplingEngine) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		e.debugLog = fn
	}
}

// CreateMessage runs the sampling request to completion. Without attached
// tools or a configured tool caller the handler runs once; otherwise the
// loop feeds tool results back until the handler stops asking for tools or
// a bound fires. The token is polled between iterations and around every
// LLM call; cancellation is cooperative.
func (e *SamplingEngine) CreateMessage(ctx context.Context, req *CreateMessageRequest, token CancelToken) (*CreateMessageResult, error) {
	if e.handler == nil {
		return nil, NewMCPError(InternalError, "no LLM handler configured")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if len(req.Tools) == 0 || e.toolCaller == nil {
		return e.handler(ctx, req)
	}

	deadline := time.Now().Add(e.config.Timeout)

	// The request is mutated in place across rounds; work on a copy so the
	// caller's view stays stable.
	working := *req
	working.Messages = append([]SamplingMessage(nil), req.Messages...)

	for iteration := 1; ; iteration++ {
		if iteration > e.config.MaxIterations {
			return nil, NewMCPError(InternalError,
				fmt.Sprintf("tool loop exceeded %d iterations", e.config.MaxIterations))
		}
		if time.Now().After(deadline) {
			return nil, NewMCPError(InternalError,
				fmt.Sprintf("tool loop exceeded %s wall clock", e.config.Timeout))
		}
		if token.IsCancelled() {
			return nil, NewMCPError(RequestCancelled, "sampling cancelled")
		}

		result, err := e.handler(ctx, &working)
		if err != nil {
			return nil, err
		}
		if token.IsCancelled() {
			return nil, NewMCPError(RequestCancelled, "sampling cancelled")
		}
		if !result.wantsToolRound() {
			return result, nil
		}

		uses := result.ToolUses()
		if len(uses) == 0 {
			// toolUse stop reason with nothing to invoke; hand the result
			// back unchanged.
			return result, nil
		}

		var resultBlocks []types.ContentBlock
		for _, use := range uses {
			resultBlocks = append(resultBlocks, e.invokeTool(ctx, use))
		}

		working.Messages = append(working.Messages,
			SamplingMessage{Role: "assistant", Content: result.Content},
			SamplingMessage{Role: "user", Content: resultBlocks},
		)
	}
}

// invokeTool dispatches one tool_use block and synthesizes its tool_result.
// Dispatch failures become is_error results rather than aborting the loop;
// the model may recover.
func (e *SamplingEngine) invokeTool(ctx context.Context, use types.ContentBlock) types.ContentBlock {
	var arguments any
	if len(use.Arguments) > 0 {
		if err := json.Unmarshal(use.Arguments, &arguments); err != nil {
			return errorToolResult(use.ID, fmt.Sprintf("invalid tool arguments: %v", err))
		}
	}

	e.debugLog("tool loop invoking %s (%s)", use.ToolName, use.ID)
	raw, err := e.toolCaller(ctx, "tools/call", map[string]any{
		"name":      use.ToolName,
		"arguments": arguments,
	})
	if err != nil {
		return errorToolResult(use.ID, err.Error())
	}

	text, isError := collapseToolCallResult(raw)
	return types.ToolResultContent(use.ID, []types.ContentBlock{types.TextContent(text)}, isError)
}

// collapseToolCallResult flattens a tools/call result payload into one
// newline-joined string and the server's isError flag.
func collapseToolCallResult(raw map[string]any) (string, bool) {
	if raw == nil {
		return "", false
	}
	isError, _ := raw["isError"].(bool)

	items, _ := raw["content"].([]any)
	var parts []string
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if entry["type"] == types.ContentTypeText {
			if text, ok := entry["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		if encoded, err := json.Marshal(raw); err == nil {
			return string(encoded), isError
		}
		return "", isError
	}

	joined := parts[0]
	for _, part := range parts[1:] {
		joined += "\n" + part
	}
	return joined, isError
}

func errorToolResult(toolUseID, message string) types.ContentBlock {
	return types.ToolResultContent(toolUseID, []types.ContentBlock{types.TextContent(message)}, true)
}
