package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oxhq/mcpwire/mcp/types"
)

type listToolsResult struct {
	Tools      []types.ToolDefinition `json:"tools"`
	NextCursor *string                `json:"nextCursor,omitempty"`
}

type listPromptsResult struct {
	Prompts    []types.PromptDefinition `json:"prompts"`
	NextCursor *string                  `json:"nextCursor,omitempty"`
}

type listResourcesResult struct {
	Resources  []types.ResourceDefinition `json:"resources"`
	NextCursor *string                    `json:"nextCursor,omitempty"`
}

type listResourceTemplatesResult struct {
	ResourceTemplates []types.ResourceTemplateDefinition `json:"resourceTemplates"`
	NextCursor        *string                            `json:"nextCursor,omitempty"`
}

type readResourceResult struct {
	Contents []resourceContentWire `json:"contents"`
}

// resourceContentWire serializes text xor blob.
type resourceContentWire struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

// handleInitialize handles the MCP initialization handshake.
func (s *Server) handleInitialize(ctx context.Context, req Request) Response {
	var params struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ClientInfo      map[string]any `json:"clientInfo"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid initialize parameters")
	}

	clientName := "unknown"
	clientVersion := ""
	if params.ClientInfo != nil {
		if name, ok := params.ClientInfo["name"].(string); ok {
			clientName = name
		}
		if version, ok := params.ClientInfo["version"].(string); ok {
			clientVersion = version
		}
	}
	s.debugLog("Client initialize: %s v%s requested protocol %s", clientName, clientVersion, params.ProtocolVersion)

	negotiated := ProtocolVersion
	if params.ProtocolVersion != "" && params.ProtocolVersion != ProtocolVersion {
		s.debugLog("Client protocol %s not matched, negotiating %s", params.ProtocolVersion, negotiated)
	}

	s.sessionState.MarkInitialized(negotiated, params.Capabilities, params.ClientInfo)

	result := map[string]any{
		"protocolVersion": negotiated,
		"capabilities":    s.serverCapabilities(),
		"serverInfo": map[string]any{
			"name":    s.config.Name,
			"version": s.config.Version,
		},
	}
	if s.instructions != "" {
		result["instructions"] = s.instructions
	}

	return SuccessResponse(req.ID, result)
}

// handleInitializedNotification confirms the handshake and pulls the
// client's roots in the background when it declared the capability.
func (s *Server) handleInitializedNotification(ctx context.Context, msg NotificationMessage) error {
	s.debugLog("Initialization complete")
	if !s.sessionState.PeerHasCapability("roots") {
		return nil
	}
	go func() {
		if _, err := s.RequestRoots(context.Background()); err != nil {
			s.debugLog("roots/list request failed: %v", err)
		}
	}()
	return nil
}

// handlePing responds to keepalive pings.
func (s *Server) handlePing(ctx context.Context, req Request) Response {
	return SuccessResponse(req.ID, map[string]any{})
}

// handleListTools returns available tools to the client.
func (s *Server) handleListTools(ctx context.Context, req Request) Response {
	params, err := decodePaginationParams(req.Params)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid pagination parameters")
	}

	definitions := s.toolRegistry.GetDefinitions()
	page, nextCursor, err := applyPagination(definitions, params.Cursor, params.Limit)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, err.Error())
	}

	return SuccessResponse(req.ID, listToolsResult{Tools: page, NextCursor: nextCursor})
}

// handleCallTool executes a specific tool.
func (s *Server) handleCallTool(ctx context.Context, req Request) Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid params structure")
	}

	s.debugLog("Calling tool: %s", params.Name)

	progressStatus := "completed"
	if token, ok := req.Meta.ProgressToken(); ok {
		s.sendProgressNotification(token, 0, 100, "queued")
		defer func() {
			s.sendProgressNotification(token, 100, 100, progressStatus)
		}()
	}

	result, err := s.toolRegistry.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			progressStatus = "failed"
			return ErrorResponse(req.ID, InvalidParams,
				fmt.Sprintf("Tool not found: %s", params.Name))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			progressStatus = "cancelled"
			return SuccessResponse(req.ID, types.CallToolResult{
				Content: []types.ContentBlock{types.TextContent("Request cancelled")},
				IsError: true,
			})
		}

		progressStatus = "failed"
		return SuccessResponse(req.ID, types.CallToolResult{
			Content: []types.ContentBlock{types.TextContent(err.Error())},
			IsError: true,
		})
	}

	return SuccessResponse(req.ID, normalizeToolResult(result))
}

// normalizeToolResult coerces arbitrary handler return values into the
// standard CallToolResult payload.
func normalizeToolResult(result any) any {
	switch typed := result.(type) {
	case types.CallToolResult, *types.CallToolResult:
		return typed
	case string:
		return types.CallToolResult{
			Content: []types.ContentBlock{types.TextContent(typed)},
		}
	case []types.ContentBlock:
		return types.CallToolResult{Content: typed}
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return types.CallToolResult{
				Content: []types.ContentBlock{types.TextContent(fmt.Sprintf("%v", typed))},
			}
		}
		return types.CallToolResult{
			Content:           []types.ContentBlock{types.TextContent(string(encoded))},
			StructuredContent: typed,
		}
	}
}

// handleListPrompts returns available prompts to the client.
func (s *Server) handleListPrompts(ctx context.Context, req Request) Response {
	params, err := decodePaginationParams(req.Params)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid pagination parameters")
	}

	definitions := s.promptRegistry.GetDefinitions()
	page, nextCursor, err := applyPagination(definitions, params.Cursor, params.Limit)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, err.Error())
	}

	return SuccessResponse(req.ID, listPromptsResult{Prompts: page, NextCursor: nextCursor})
}

// handleGetPrompt renders a specific prompt.
func (s *Server) handleGetPrompt(ctx context.Context, req Request) Response {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid prompt parameters")
	}

	s.debugLog("Getting prompt: %s", params.Name)

	result, err := renderPrompt(s.promptRegistry, params.Name, params.Arguments)
	if err != nil {
		if mcpErr, ok := err.(*MCPError); ok {
			return ErrorResponseWithData(req.ID, mcpErr.Code, mcpErr.Message, mcpErr.Data)
		}
		return ErrorResponse(req.ID, InternalError, err.Error())
	}

	return SuccessResponse(req.ID, result)
}

// handleListResources returns available resources to the client.
func (s *Server) handleListResources(ctx context.Context, req Request) Response {
	params, err := decodePaginationParams(req.Params)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid pagination parameters")
	}

	definitions := s.resourceRegistry.GetDefinitions()
	page, nextCursor, err := applyPagination(definitions, params.Cursor, params.Limit)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, err.Error())
	}

	return SuccessResponse(req.ID, listResourcesResult{Resources: page, NextCursor: nextCursor})
}

// handleListResourceTemplates returns available resource templates.
func (s *Server) handleListResourceTemplates(ctx context.Context, req Request) Response {
	params, err := decodePaginationParams(req.Params)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid pagination parameters")
	}

	definitions := s.resourceTemplateRegistry.GetDefinitions()
	page, nextCursor, err := applyPagination(definitions, params.Cursor, params.Limit)
	if err != nil {
		return ErrorResponse(req.ID, InvalidParams, err.Error())
	}

	return SuccessResponse(req.ID, listResourceTemplatesResult{ResourceTemplates: page, NextCursor: nextCursor})
}

// handleReadResource returns the content of a specific resource. Exact
// URIs are matched first, then templates in registration order.
func (s *Server) handleReadResource(ctx context.Context, req Request) Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid resource read parameters")
	}
	if params.URI == "" {
		return ErrorResponse(req.ID, InvalidParams, "Resource URI is required")
	}

	s.debugLog("Reading resource: %s", params.URI)

	content, err := resolveResourceRead(s.resourceRegistry, s.resourceTemplateRegistry, params.URI)
	if err != nil {
		if mcpErr, ok := err.(*MCPError); ok {
			return ErrorResponseWithData(req.ID, mcpErr.Code, mcpErr.Message, mcpErr.Data)
		}
		return ErrorResponse(req.ID, InternalError, err.Error())
	}

	wire := resourceContentWire{
		URI:      content.URI,
		MimeType: content.MimeType,
	}
	if content.IsBlob {
		wire.Blob = content.Blob
	} else {
		wire.Text = content.Text
	}
	return SuccessResponse(req.ID, readResourceResult{Contents: []resourceContentWire{wire}})
}

// handleSubscribeResource subscribes the session to resource updates.
func (s *Server) handleSubscribeResource(ctx context.Context, req Request) Response {
	var params struct {
		URI        string `json:"uri"`
		Subscriber string `json:"subscriber,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid resource subscribe parameters")
	}
	if params.URI == "" {
		return ErrorResponse(req.ID, InvalidParams, "Resource URI is required")
	}

	subscriber := params.Subscriber
	if subscriber == "" {
		subscriber = s.sessionSubscriberID()
	}

	s.debugLog("Subscribing %s to resource: %s", subscriber, params.URI)
	s.subscriptions.Subscribe(params.URI, subscriber)
	return SuccessResponse(req.ID, map[string]any{})
}

// handleUnsubscribeResource removes a resource subscription. Idempotent.
func (s *Server) handleUnsubscribeResource(ctx context.Context, req Request) Response {
	var params struct {
		URI        string `json:"uri"`
		Subscriber string `json:"subscriber,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid resource unsubscribe parameters")
	}

	subscriber := params.Subscriber
	if subscriber == "" {
		subscriber = s.sessionSubscriberID()
	}

	s.debugLog("Unsubscribing %s from resource: %s", subscriber, params.URI)
	s.subscriptions.Unsubscribe(params.URI, subscriber)
	return SuccessResponse(req.ID, map[string]any{})
}

// handleSetLoggingLevel handles logging level configuration.
func (s *Server) handleSetLoggingLevel(ctx context.Context, req Request) Response {
	var params struct {
		Level LogLevel `json:"level"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, "Invalid logging level parameters")
	}
	if _, ok := logSeverity[params.Level]; !ok {
		return ErrorResponse(req.ID, InvalidParams, fmt.Sprintf("Unknown logging level: %s", params.Level))
	}

	s.sessionState.SetLoggingLevel(params.Level)
	s.debugLog("Logging level set to: %s", params.Level)
	return SuccessResponse(req.ID, map[string]any{})
}

// sessionSubscriberID identifies this transport session in the
// subscription table.
func (s *Server) sessionSubscriberID() string {
	if s.session != nil {
		return s.session.ID
	}
	return "session"
}

func (s *Server) serverCapabilities() map[string]any {
	return map[string]any{
		"tools": map[string]any{
			"listChanged": true,
		},
		"resources": map[string]any{
			"subscribe":   true,
			"listChanged": true,
		},
		"prompts": map[string]any{
			"listChanged": true,
		},
		"logging": map[string]any{},
	}
}
