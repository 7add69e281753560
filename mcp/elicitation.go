package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Elicitation modes.
const (
	ElicitModeForm = "form"
	ElicitModeURL  = "url"
)

// Elicitation result actions.
const (
	ElicitActionAccept  = "accept"
	ElicitActionDecline = "decline"
	ElicitActionCancel  = "cancel"
)

// PrimitiveSchema describes one flat field of an elicitation form. Nested
// objects and arrays of objects are not allowed.
type PrimitiveSchema struct {
	Type        string   `json:"type"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Multiselect bool     `json:"multiselect,omitempty"`
}

// Validate enforces the flat-schema contract.
func (s *PrimitiveSchema) Validate() error {
	switch s.Type {
	case "string", "number", "integer", "boolean", "array":
		return nil
	default:
		return NewMCPError(InvalidParams, fmt.Sprintf("unsupported schema type: %q", s.Type))
	}
}

// ElicitRequest is the parsed form of elicitation/create params. Mode
// selects which field group is meaningful.
type ElicitRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`

	// form mode
	RequestedSchema map[string]PrimitiveSchema `json:"requestedSchema,omitempty"`
	Required        []string                   `json:"required,omitempty"`

	// url mode
	ElicitationID string `json:"elicitationId,omitempty"`
	URL           string `json:"url,omitempty"`
	ConfirmURL    string `json:"confirmUrl,omitempty"`
}

// Validate checks mode-specific invariants. An absent mode means form.
func (r *ElicitRequest) Validate() error {
	mode := r.Mode
	if mode == "" {
		mode = ElicitModeForm
	}
	switch mode {
	case ElicitModeForm:
		for name, schema := range r.RequestedSchema {
			if err := schema.Validate(); err != nil {
				return WrapError(InvalidParams, fmt.Sprintf("field %s", name), err)
			}
		}
		return nil
	case ElicitModeURL:
		if r.ElicitationID == "" {
			return NewMCPError(InvalidParams, "url mode requires elicitationId")
		}
		if r.URL == "" {
			return NewMCPError(InvalidParams, "url mode requires url")
		}
		return nil
	default:
		return NewMCPError(InvalidParams, fmt.Sprintf("unsupported elicitation mode: %q", mode))
	}
}

// ElicitResult is the user's answer. Content values are limited to
// strings, numbers, booleans and string arrays by the flat-schema contract.
type ElicitResult struct {
	Action  string         `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

// ElicitHandler collects user input for a request. In form mode the
// returned result is final; in url mode it is the provisional
// acknowledgment and the real outcome arrives out of band.
type ElicitHandler func(ctx context.Context, req *ElicitRequest) (*ElicitResult, error)

// ElicitationEngine runs both elicitation modes. URL-mode requests park a
// completion callback keyed by elicitation_id until the matching
// notifications/elicitation/complete arrives; late or duplicate
// notifications are silently ignored.
type ElicitationEngine struct {
	handler ElicitHandler

	mu      sync.Mutex
	pending map[string]func(*ElicitResult)

	debugLog func(format string, args ...any)
}

// NewElicitationEngine builds an engine around the handler.
func NewElicitationEngine(handler ElicitHandler) *ElicitationEngine {
	return &ElicitationEngine{
		handler:  handler,
		pending:  make(map[string]func(*ElicitResult)),
		debugLog: func(format string, args ...any) {},
	}
}

// SetDebugLog installs the session's debug logger.
func (e *ElicitationEngine) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		e.debugLog = fn
	}
}

// Create processes one elicitation/create request. onComplete is invoked
// later for url-mode requests once the completion notification arrives; it
// is ignored in form mode.
func (e *ElicitationEngine) Create(ctx context.Context, raw json.RawMessage, onComplete func(*ElicitResult)) (*ElicitResult, error) {
	if e.handler == nil {
		return nil, NewMCPError(MethodNotFound, "elicitation not supported")
	}

	var req ElicitRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, WrapError(InvalidParams, "invalid elicitation parameters", err)
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Mode == ElicitModeURL {
		if onComplete != nil {
			e.mu.Lock()
			e.pending[req.ElicitationID] = onComplete
			e.mu.Unlock()
		}

		result, err := e.handler(ctx, &req)
		if err != nil {
			e.mu.Lock()
			delete(e.pending, req.ElicitationID)
			e.mu.Unlock()
			return nil, err
		}
		if result == nil {
			result = &ElicitResult{Action: ElicitActionAccept}
		}
		return result, nil
	}

	result, err := e.handler(ctx, &req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, NewMCPError(InternalError, "elicitation handler returned no result")
	}
	return result, nil
}

// HandleComplete resolves a pending url-mode elicitation. Unknown IDs are
// logged and dropped.
func (e *ElicitationEngine) HandleComplete(raw json.RawMessage) {
	var params struct {
		ElicitationID string         `json:"elicitationId"`
		Action        string         `json:"action"`
		Content       map[string]any `json:"content,omitempty"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		e.debugLog("invalid elicitation completion payload: %v", err)
		return
	}

	e.mu.Lock()
	callback, ok := e.pending[params.ElicitationID]
	if ok {
		delete(e.pending, params.ElicitationID)
	}
	e.mu.Unlock()

	if !ok {
		e.debugLog("elicitation completion for unknown id: %s", params.ElicitationID)
		return
	}
	callback(&ElicitResult{Action: params.Action, Content: params.Content})
}

// PendingCount returns the number of url-mode requests awaiting completion.
func (e *ElicitationEngine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
