package mcp

import (
	"context"
	"fmt"
	"sync"
)

// RequestHandler processes a JSON-RPC request message and returns a response.
type RequestHandler func(ctx context.Context, msg RequestMessage) ResponseMessage

// NotificationHandler processes a JSON-RPC notification.
type NotificationHandler func(ctx context.Context, msg NotificationMessage) error

// Router maintains a registry of MCP request and notification handlers and
// provides centralized dispatch with JSON-RPC compliance checks. Handlers
// are registered during session construction and treated as immutable for
// the session's lifetime.
type Router struct {
	mu                   sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
}

// NewRouter creates an empty router instance.
func NewRouter() *Router {
	return &Router{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
	}
}

// RegisterRequest associates a handler with a JSON-RPC method name. Existing
// registrations are replaced.
func (r *Router) RegisterRequest(method string, handler RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestHandlers[method] = handler
}

// RegisterNotification associates a notification handler with a method name.
func (r *Router) RegisterNotification(method string, handler NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notificationHandlers[method] = handler
}

// DispatchRequest routes a request message to the appropriate handler. It
// returns a JSON-RPC error response at the request's own ID if validation
// fails or the method is unknown. Handler panics are converted to internal
// errors rather than crossing the transport boundary.
func (r *Router) DispatchRequest(ctx context.Context, msg RequestMessage) (resp ResponseMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = ErrorResponse(msg.ID, InternalError, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	if err := checkVersion(msg.JSONRPC); err != nil {
		return ErrorResponse(msg.ID, InvalidRequest, err.Error())
	}
	if msg.Method == "" {
		return ErrorResponse(msg.ID, InvalidRequest, "method must not be empty")
	}

	r.mu.RLock()
	handler, ok := r.requestHandlers[msg.Method]
	r.mu.RUnlock()
	if !ok {
		return ErrorResponse(msg.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method))
	}

	resp = handler(ctx, msg)
	if resp.JSONRPC == "" {
		resp.JSONRPC = JSONRPCVersion
	}
	resp.ID = msg.ID
	return promoteErrorResult(resp)
}

// DispatchNotification routes a notification message. An unregistered
// method is reported to the caller for logging, never answered on the wire.
func (r *Router) DispatchNotification(ctx context.Context, msg NotificationMessage) error {
	if err := checkVersion(msg.JSONRPC); err != nil {
		return err
	}

	r.mu.RLock()
	handler, ok := r.notificationHandlers[msg.Method]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification handler not registered: %s", msg.Method)
	}

	return handler(ctx, msg)
}

// promoteErrorResult lifts a handler result carrying a top-level "error" key
// into a proper JSON-RPC error response at the same ID. Strict clients
// require the correlation; a success envelope wrapping an error object would
// break them.
func promoteErrorResult(resp ResponseMessage) ResponseMessage {
	if resp.Error != nil {
		return resp
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		return resp
	}
	raw, ok := result["error"]
	if !ok {
		return resp
	}

	errObj := &ErrorObject{Code: InternalError, Message: "handler error"}
	if detail, ok := raw.(map[string]any); ok {
		if code, ok := detail["code"].(float64); ok {
			errObj.Code = int(code)
		} else if code, ok := detail["code"].(int); ok {
			errObj.Code = code
		}
		if message, ok := detail["message"].(string); ok {
			errObj.Message = message
		}
		if data, ok := detail["data"]; ok {
			errObj.Data = data
		}
	} else if message, ok := raw.(string); ok {
		errObj.Message = message
	}

	return ResponseMessage{
		JSONRPC: resp.JSONRPC,
		Meta:    resp.Meta,
		ID:      resp.ID,
		Error:   errObj,
	}
}
