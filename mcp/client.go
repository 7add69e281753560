package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Client is the MCP peer embedded in the LLM host. It owns the roots,
// sampling and elicitation capabilities and drives the server over a
// transport.
type Client struct {
	*peer

	roots       *RootsManager
	sampling    *SamplingEngine
	elicitation *ElicitationEngine

	samplingTools   bool
	elicitationForm bool
	elicitationURL  bool

	onElicitationDone func(elicitationID string, result *ElicitResult)
}

// ClientOption configures optional client capabilities.
type ClientOption func(*Client)

// WithLLMHandler installs the sampling handler. The client then advertises
// the sampling capability; withTools additionally advertises tool-loop
// support and enables the agentic loop.
func WithLLMHandler(handler LLMHandler, withTools bool) ClientOption {
	return func(c *Client) {
		var caller ToolCaller
		if withTools {
			caller = func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
				result, err := c.CallAndWait(ctx, method, params, Meta{})
				if err != nil {
					return nil, err
				}
				return normalizeResponseMap(result), nil
			}
		}
		c.sampling = NewSamplingEngine(handler, caller, c.config.ToolLoop)
		c.sampling.SetDebugLog(c.debugLog)
		c.samplingTools = withTools
	}
}

// WithElicitationHandler installs the elicitation handler and declares
// which modes the host UI supports.
func WithElicitationHandler(handler ElicitHandler, form, url bool) ClientOption {
	return func(c *Client) {
		c.elicitation = NewElicitationEngine(handler)
		c.elicitation.SetDebugLog(c.debugLog)
		c.elicitationForm = form
		c.elicitationURL = url
	}
}

// WithElicitationCompletion installs the callback fired when a url-mode
// elicitation completes out of band.
func WithElicitationCompletion(fn func(elicitationID string, result *ElicitResult)) ClientOption {
	return func(c *Client) {
		c.onElicitationDone = fn
	}
}

// NewStdioClient creates an MCP client that communicates over stdio.
func NewStdioClient(config Config, opts ...ClientOption) (*Client, error) {
	return NewClient(config, NewStdioTransport(os.Stdin, os.Stdout, nil), opts...)
}

// NewClient creates an MCP client on the supplied transport.
func NewClient(config Config, transport Transport, opts ...ClientOption) (*Client, error) {
	config = fillConfigDefaults(config)

	client := &Client{
		peer:  newPeer(config, transport),
		roots: NewRootsManager(),
	}
	client.roots.SetNotifyCallback(func() {
		client.sendNotification("notifications/roots/list_changed", map[string]any{})
	})

	for _, opt := range opts {
		opt(client)
	}

	client.registerHandlers()
	return client, nil
}

func (c *Client) registerHandlers() {
	c.router.RegisterRequest("ping", func(ctx context.Context, req Request) Response {
		return SuccessResponse(req.ID, map[string]any{})
	})
	c.router.RegisterRequest("roots/list", c.handleListRoots)
	c.router.RegisterRequest("sampling/createMessage", c.handleCreateMessage)
	c.router.RegisterRequest("elicitation/create", c.handleElicitationCreate)
	c.router.RegisterNotification("notifications/cancelled", c.handleCancelledNotification)
	c.router.RegisterNotification("notifications/elicitation/complete", c.handleElicitationComplete)
	c.router.RegisterNotification("notifications/message", c.handleServerLogMessage)
	c.router.RegisterNotification("notifications/tools/list_changed", c.swallowNotification)
	c.router.RegisterNotification("notifications/prompts/list_changed", c.swallowNotification)
	c.router.RegisterNotification("notifications/resources/list_changed", c.swallowNotification)
	c.router.RegisterNotification("notifications/resources/updated", c.swallowNotification)
}

// Roots returns the client's roots manager.
func (c *Client) Roots() *RootsManager { return c.roots }

// Elicitation returns the client's elicitation engine, nil when the
// capability was not configured.
func (c *Client) Elicitation() *ElicitationEngine { return c.elicitation }

// Start begins processing JSON-RPC traffic from the transport.
func (c *Client) Start() error {
	return c.Run(context.Background())
}

// Initialize performs the handshake. It must complete before any other
// request is issued.
func (c *Client) Initialize(ctx context.Context) (map[string]any, error) {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    c.clientCapabilities(),
		"clientInfo": map[string]any{
			"name":    c.config.Name,
			"version": c.config.Version,
		},
	}

	result, callErr := c.CallAndWait(ctx, "initialize", params, Meta{})
	if callErr != nil {
		return nil, fmt.Errorf("initialize: %s", callErr.Message)
	}

	payload := normalizeResponseMap(result)
	version, _ := payload["protocolVersion"].(string)
	capabilities, _ := payload["capabilities"].(map[string]any)
	info, _ := payload["serverInfo"].(map[string]any)
	c.sessionState.MarkInitialized(version, capabilities, info)

	c.sendNotification("notifications/initialized", map[string]any{})
	return payload, nil
}

func (c *Client) clientCapabilities() map[string]any {
	capabilities := map[string]any{
		"roots": map[string]any{
			"listChanged": true,
		},
	}
	if c.sampling != nil {
		capabilities["sampling"] = map[string]any{
			"tools": c.samplingTools,
		}
	}
	if c.elicitation != nil {
		capabilities["elicitation"] = map[string]any{
			"form": c.elicitationForm,
			"url":  c.elicitationURL,
		}
	}
	return capabilities
}

// handleListRoots serves the advertised file roots.
func (c *Client) handleListRoots(ctx context.Context, req Request) Response {
	return SuccessResponse(req.ID, map[string]any{"roots": c.roots.Roots()})
}

// handleCreateMessage runs the sampling engine for a server request.
func (c *Client) handleCreateMessage(ctx context.Context, req Request) Response {
	if c.sampling == nil {
		return ErrorResponse(req.ID, MethodNotFound, "sampling not supported")
	}

	var params CreateMessageRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParams, fmt.Sprintf("Invalid createMessage parameters: %v", err))
	}

	token, _ := CancelTokenFromContext(ctx)
	result, err := c.sampling.CreateMessage(ctx, &params, token)
	if err != nil {
		if mcpErr, ok := err.(*MCPError); ok {
			return ErrorResponseWithData(req.ID, mcpErr.Code, mcpErr.Message, mcpErr.Data)
		}
		return ErrorResponse(req.ID, InternalError, err.Error())
	}
	return SuccessResponse(req.ID, result)
}

// handleElicitationCreate runs the elicitation engine for a server request.
func (c *Client) handleElicitationCreate(ctx context.Context, req Request) Response {
	if c.elicitation == nil {
		return ErrorResponse(req.ID, MethodNotFound, "elicitation not supported")
	}

	var elicitationID string
	if len(req.Params) > 0 {
		var probe struct {
			ElicitationID string `json:"elicitationId,omitempty"`
		}
		_ = json.Unmarshal(req.Params, &probe)
		elicitationID = probe.ElicitationID
	}

	var onComplete func(*ElicitResult)
	if c.onElicitationDone != nil && elicitationID != "" {
		onComplete = func(result *ElicitResult) {
			c.onElicitationDone(elicitationID, result)
		}
	}

	result, err := c.elicitation.Create(ctx, req.Params, onComplete)
	if err != nil {
		if mcpErr, ok := err.(*MCPError); ok {
			return ErrorResponseWithData(req.ID, mcpErr.Code, mcpErr.Message, mcpErr.Data)
		}
		return ErrorResponse(req.ID, InternalError, err.Error())
	}
	return SuccessResponse(req.ID, result)
}

// handleElicitationComplete resolves a pending url-mode elicitation.
func (c *Client) handleElicitationComplete(ctx context.Context, msg NotificationMessage) error {
	if c.elicitation != nil {
		c.elicitation.HandleComplete(msg.Params)
	}
	return nil
}

// handleServerLogMessage relays server log notifications to the debug log.
func (c *Client) handleServerLogMessage(ctx context.Context, msg NotificationMessage) error {
	var params struct {
		Level  LogLevel `json:"level"`
		Logger string   `json:"logger,omitempty"`
		Data   LogData  `json:"data,omitempty"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	c.debugLog("server log [%s] %s: %v", params.Level, params.Logger, params.Data)
	return nil
}

func (c *Client) swallowNotification(ctx context.Context, msg NotificationMessage) error {
	c.debugLog("notification: %s", msg.Method)
	return nil
}

// ListTools fetches one page of the server's tools.
func (c *Client) ListTools(ctx context.Context, cursor string, limit int) (map[string]any, error) {
	params := map[string]any{}
	if cursor != "" {
		params["cursor"] = cursor
	}
	if limit > 0 {
		params["limit"] = limit
	}
	result, callErr := c.CallAndWait(ctx, "tools/list", params, Meta{})
	if callErr != nil {
		return nil, callErr
	}
	return normalizeResponseMap(result), nil
}

// CallTool invokes a server tool by name.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (map[string]any, error) {
	result, callErr := c.CallAndWait(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	}, Meta{})
	if callErr != nil {
		return nil, callErr
	}
	return normalizeResponseMap(result), nil
}

// ReadResource reads a server resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (map[string]any, error) {
	result, callErr := c.CallAndWait(ctx, "resources/read", map[string]any{"uri": uri}, Meta{})
	if callErr != nil {
		return nil, callErr
	}
	return normalizeResponseMap(result), nil
}

// GetPrompt renders a server prompt by name.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (map[string]any, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}
	result, callErr := c.CallAndWait(ctx, "prompts/get", params, Meta{})
	if callErr != nil {
		return nil, callErr
	}
	return normalizeResponseMap(result), nil
}
