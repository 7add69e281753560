package mcp

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/oxhq/mcpwire/db"
	"github.com/oxhq/mcpwire/mcp/types"
	"github.com/oxhq/mcpwire/models"
)

// Server is the MCP peer providing tools, resources and prompts over a
// transport. NewStdioServer wires it to stdin/stdout; NewServer accepts any
// transport.
type Server struct {
	*peer

	toolRegistry             *ToolRegistry
	promptRegistry           *PromptRegistry
	resourceRegistry         *ResourceRegistry
	resourceTemplateRegistry *ResourceTemplateRegistry

	subscriptions *SubscriptionTable

	// Session transcript persistence (optional)
	store   *gorm.DB
	session *models.Session

	instructions string
}

// NewStdioServer creates an MCP server that communicates over stdio.
func NewStdioServer(config Config) (*Server, error) {
	return NewServer(config, NewStdioTransport(os.Stdin, os.Stdout, nil))
}

// NewServer creates an MCP server on the supplied transport.
func NewServer(config Config, transport Transport) (*Server, error) {
	config = fillConfigDefaults(config)

	server := &Server{
		peer:                     newPeer(config, transport),
		toolRegistry:             NewToolRegistry(),
		promptRegistry:           NewPromptRegistry(),
		resourceRegistry:         NewResourceRegistry(),
		resourceTemplateRegistry: NewResourceTemplateRegistry(),
		subscriptions:            NewSubscriptionTable(),
	}

	// Registries push list_changed notifications through the session.
	server.toolRegistry.SetNotifyCallback(func() {
		server.sendNotification("notifications/tools/list_changed", map[string]any{})
	})
	server.promptRegistry.SetNotifyCallback(func() {
		server.sendNotification("notifications/prompts/list_changed", map[string]any{})
	})
	server.resourceRegistry.SetNotifyCallback(func() {
		server.sendNotification("notifications/resources/list_changed", map[string]any{})
	})
	server.resourceTemplateRegistry.SetNotifyCallback(func() {
		server.sendNotification("notifications/resources/list_changed", map[string]any{})
	})

	if config.DatabaseURL != "" && config.DatabaseURL != "skip" {
		database, err := db.Connect(config.DatabaseURL, config.Debug)
		if err != nil {
			// Continue without persistence; the transcript store is an
			// audit log, not core state.
			server.debugLog("Database connection failed, continuing without persistence: %v", err)
		} else {
			server.store = database
			session := &models.Session{ID: generateSessionID(), Peer: "server"}
			if err := database.Create(session).Error; err != nil {
				server.debugLog("Failed to create session row: %v", err)
			} else {
				server.session = session
				server.debugLog("Session created: %s", session.ID)
			}
		}
	}

	server.registerHandlers()
	return server, nil
}

func fillConfigDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Version == "" {
		config.Version = defaults.Version
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.ToolLoop.MaxIterations == 0 && config.ToolLoop.Timeout == 0 {
		config.ToolLoop = defaults.ToolLoop
	}
	return config
}

func (s *Server) registerHandlers() {
	s.router.RegisterRequest("initialize", s.requireNothing(s.handleInitialize))
	s.router.RegisterRequest("ping", s.requireNothing(s.handlePing))
	s.router.RegisterRequest("tools/list", s.requireInit(s.handleListTools))
	s.router.RegisterRequest("tools/call", s.requireInit(s.handleCallTool))
	s.router.RegisterRequest("prompts/list", s.requireInit(s.handleListPrompts))
	s.router.RegisterRequest("prompts/get", s.requireInit(s.handleGetPrompt))
	s.router.RegisterRequest("resources/list", s.requireInit(s.handleListResources))
	s.router.RegisterRequest("resources/read", s.requireInit(s.handleReadResource))
	s.router.RegisterRequest("resources/templates/list", s.requireInit(s.handleListResourceTemplates))
	s.router.RegisterRequest("resources/subscribe", s.requireInit(s.handleSubscribeResource))
	s.router.RegisterRequest("resources/unsubscribe", s.requireInit(s.handleUnsubscribeResource))
	s.router.RegisterRequest("logging/setLevel", s.requireInit(s.handleSetLoggingLevel))
	s.router.RegisterNotification("notifications/initialized", s.handleInitializedNotification)
	s.router.RegisterNotification("notifications/cancelled", s.handleCancelledNotification)
	s.router.RegisterNotification("notifications/roots/list_changed", s.handleRootsListChanged)
}

// requireNothing passes the request straight through.
func (s *Server) requireNothing(fn func(context.Context, Request) Response) RequestHandler {
	return fn
}

// requireInit rejects requests issued before the initialize handshake.
func (s *Server) requireInit(fn func(context.Context, Request) Response) RequestHandler {
	return func(ctx context.Context, msg RequestMessage) ResponseMessage {
		if !s.sessionState.Initialized() {
			return ErrorResponse(msg.ID, InvalidRequest, "initialize handshake has not completed")
		}
		return fn(ctx, msg)
	}
}

// Start begins processing JSON-RPC traffic from the transport.
func (s *Server) Start() error {
	sessionID := ""
	if s.session != nil {
		sessionID = s.session.ID
	}
	s.debugLog("MCP server started, session: %s", sessionID)
	return s.Run(context.Background())
}

// SetInstructions sets the instructions string returned by initialize.
func (s *Server) SetInstructions(instructions string) {
	s.instructions = instructions
}

// Tools returns the server's tool registry.
func (s *Server) Tools() *ToolRegistry { return s.toolRegistry }

// Prompts returns the server's prompt registry.
func (s *Server) Prompts() *PromptRegistry { return s.promptRegistry }

// Resources returns the server's resource registry.
func (s *Server) Resources() *ResourceRegistry { return s.resourceRegistry }

// ResourceTemplates returns the server's template registry.
func (s *Server) ResourceTemplates() *ResourceTemplateRegistry { return s.resourceTemplateRegistry }

// Subscriptions returns the resource subscription table.
func (s *Server) Subscriptions() *SubscriptionTable { return s.subscriptions }

// RegisterTool registers a tool built with the mcp/tools builder.
func (s *Server) RegisterTool(tool types.Tool) error {
	return s.toolRegistry.Register(tool.Name(), tool)
}

// RegisterPrompt registers a prompt component.
func (s *Server) RegisterPrompt(prompt types.Prompt) error {
	return s.promptRegistry.Register(prompt.Name(), prompt)
}

// RegisterResource registers a readable resource keyed by URI.
func (s *Server) RegisterResource(resource types.Resource) error {
	return s.resourceRegistry.Register(resource.URI(), resource)
}

// RegisterResourceTemplate registers a templated resource entry point.
func (s *Server) RegisterResourceTemplate(template ResourceTemplate) error {
	return s.resourceTemplateRegistry.Register(template.Definition.Name, template)
}

// NotifyResourceUpdated fans out notifications/resources/updated to every
// current subscriber of uri, in subscription order.
func (s *Server) NotifyResourceUpdated(uri string) {
	for _, subscriber := range s.subscriptions.Subscribers(uri) {
		s.sendNotification("notifications/resources/updated", map[string]any{
			"uri":        uri,
			"subscriber": subscriber,
		})
	}
}

// callClient sends a JSON-RPC request to the client and blocks for the
// response or the call timeout.
func (s *Server) callClient(ctx context.Context, method string, params any, meta Meta) (map[string]any, *MCPError) {
	result, err := s.CallAndWait(ctx, method, params, meta)
	if err != nil {
		return nil, err
	}
	return normalizeResponseMap(result), nil
}

// RequestSampling asks the client's LLM to generate a message. Clients
// without the capability are skipped with a nil result.
func (s *Server) RequestSampling(ctx context.Context, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = make(map[string]any)
	}
	meta := Meta{}
	if token, ok := progressTokenFromContext(ctx); ok {
		meta = meta.WithProgressToken(token)
	}

	result, callErr := s.callClient(ctx, "sampling/createMessage", params, meta)
	if callErr != nil {
		if callErr.Code == MethodNotFound {
			s.debugLog("Client does not support sampling/createMessage; skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("sampling error: %s", callErr.Message)
	}

	s.sessionState.AppendSamplingRecord(params, result)
	s.recordExchange("outbound", "sampling/createMessage", params, result)
	return result, nil
}

// RequestElicitation asks the client for user input. Clients without the
// capability are skipped with a nil result.
func (s *Server) RequestElicitation(ctx context.Context, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = make(map[string]any)
	}
	meta := Meta{}
	if token, ok := progressTokenFromContext(ctx); ok {
		meta = meta.WithProgressToken(token)
	}

	result, callErr := s.callClient(ctx, "elicitation/create", params, meta)
	if callErr != nil {
		if callErr.Code == MethodNotFound {
			s.debugLog("Client does not support elicitation/create; continuing without input")
			return nil, nil
		}
		return nil, fmt.Errorf("elicitation error: %s", callErr.Message)
	}

	s.sessionState.AppendElicitationRecord(params, result)
	s.recordExchange("outbound", "elicitation/create", params, result)
	return result, nil
}

// NotifyElicitationComplete reports the out-of-band outcome of a url-mode
// elicitation to the client.
func (s *Server) NotifyElicitationComplete(elicitationID, action string, content map[string]any) {
	params := map[string]any{
		"elicitationId": elicitationID,
		"action":        action,
	}
	if content != nil {
		params["content"] = content
	}
	s.sendNotification("notifications/elicitation/complete", params)
}

// RequestRoots fetches the client's advertised roots.
func (s *Server) RequestRoots(ctx context.Context) ([]Root, error) {
	result, callErr := s.callClient(ctx, "roots/list", map[string]any{}, Meta{})
	if callErr != nil {
		return nil, fmt.Errorf("roots/list error: %s", callErr.Message)
	}

	var roots []Root
	if items, ok := result["roots"].([]any); ok {
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			root := Root{}
			root.URI, _ = entry["uri"].(string)
			root.Name, _ = entry["name"].(string)
			if root.URI != "" {
				roots = append(roots, root)
			}
		}
	}
	return roots, nil
}

// handleRootsListChanged refreshes the client's roots when told they moved.
func (s *Server) handleRootsListChanged(ctx context.Context, msg NotificationMessage) error {
	go func() {
		if _, err := s.RequestRoots(context.Background()); err != nil {
			s.debugLog("roots refresh failed: %v", err)
		}
	}()
	return nil
}

// recordExchange appends one row to the transcript store when enabled.
func (s *Server) recordExchange(direction, method string, params, result map[string]any) {
	if s.store == nil || s.session == nil {
		return
	}
	row, err := models.NewExchange(s.session.ID, direction, method, params, result)
	if err != nil {
		s.debugLog("Failed to encode exchange row: %v", err)
		return
	}
	if err := s.store.Create(row).Error; err != nil {
		s.debugLog("Failed to persist exchange row: %v", err)
	}
}

// LogInfo sends an info level log notification to the client.
func (s *Server) LogInfo(message string, data ...LogData) {
	s.sendLogMessage(LogLevelInfo, message, firstLogData(data))
}

// LogWarning sends a warning level log notification to the client.
func (s *Server) LogWarning(message string, data ...LogData) {
	s.sendLogMessage(LogLevelWarning, message, firstLogData(data))
}

// LogError sends an error level log notification to the client.
func (s *Server) LogError(message string, data ...LogData) {
	s.sendLogMessage(LogLevelError, message, firstLogData(data))
}

// LogDebug sends a debug level log notification to the client.
func (s *Server) LogDebug(message string, data ...LogData) {
	s.sendLogMessage(LogLevelDebug, message, firstLogData(data))
}

func firstLogData(data []LogData) LogData {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

// SessionRecord returns the persisted session row, if any.
func (s *Server) SessionRecord() *models.Session { return s.session }

// Close flushes and releases the transcript store and the transport.
func (s *Server) Close() error {
	if s.store != nil {
		if sqlDB, err := s.store.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return s.peer.Close()
}
