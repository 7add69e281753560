package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// SessionMetrics captures lightweight counters for observability.
type SessionMetrics struct {
	InboundMessages  int64 `json:"inbound_messages"`
	OutboundMessages int64 `json:"outbound_messages"`
	PendingRequests  int   `json:"pending_requests"`
}

// peer is the session core shared by Client and Server: one reader loop on
// the transport, a router for inbound traffic, and the tracker, timeout and
// cancellation machinery for outbound calls.
type peer struct {
	config    Config
	transport Transport

	router       *Router
	sessionState *SessionState

	tracker  *RequestTracker
	timeouts *TimeoutManager

	// Tokens exposed to local callers for requests we sent.
	outboundCancels *CancellationManager

	// Cooperative cancellation for requests we are handling.
	inboundCancels *CancellationManager
	inflightMu     sync.Mutex
	inflightCtx    map[string]context.CancelFunc

	debugLog func(format string, args ...any)

	inboundCount  atomic.Int64
	outboundCount atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(config Config, transport Transport) *peer {
	if transport == nil {
		transport = NewNullTransport()
	}

	p := &peer{
		config:          config,
		transport:       transport,
		router:          NewRouter(),
		sessionState:    NewSessionState(),
		tracker:         NewRequestTracker(),
		timeouts:        NewTimeoutManager(0),
		outboundCancels: NewCancellationManager(),
		inboundCancels:  NewCancellationManager(),
		inflightCtx:     make(map[string]context.CancelFunc),
		closed:          make(chan struct{}),
	}

	logWriter := config.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	if config.Debug {
		p.debugLog = func(format string, args ...any) {
			fmt.Fprintf(logWriter, "[DEBUG] "+format+"\n", args...)
		}
	} else {
		p.debugLog = func(format string, args ...any) {}
	}

	return p
}

// Run reads frames from the transport until EOF or closure and dispatches
// them. Requests are handled on their own goroutines so a slow handler
// never blocks responses or cancellation notifications.
func (p *peer) Run(ctx context.Context) error {
	for {
		raw, err := p.transport.Receive()
		if err != nil {
			if err == io.EOF || err == ErrTransportClosed {
				p.debugLog("transport drained, shutting down")
				return nil
			}
			return err
		}
		p.inboundCount.Add(1)
		p.dispatchFrame(ctx, raw)
	}
}

func (p *peer) dispatchFrame(ctx context.Context, raw []byte) {
	preview := string(raw)
	if len(preview) > 512 {
		preview = preview[:512] + "..."
	}
	p.debugLog("Received: %s", preview)

	msg, err := DecodeMessage(raw)
	if err != nil {
		// Recover whatever ID the broken frame still carries so strict
		// clients can correlate the error.
		id := ExtractRawID(raw)
		code := ParseError
		if mcpErr, ok := err.(*MCPError); ok && mcpErr.Code == InvalidRequest {
			code = InvalidRequest
		}
		p.sendResponse(ErrorResponse(id, code, err.Error()))
		return
	}

	switch msg.Kind {
	case KindRequest:
		go func() {
			resp := p.dispatchRequest(ctx, msg.Request)
			p.sendResponse(resp)
		}()
	case KindNotification:
		if err := p.router.DispatchNotification(ctx, msg.Notification); err != nil {
			p.debugLog("Notification dispatch: %v", err)
		}
	case KindResponse:
		p.resolveResponse(msg.Response)
	}
}

// dispatchRequest wraps router dispatch with per-request cancellation and
// progress plumbing.
func (p *peer) dispatchRequest(ctx context.Context, req RequestMessage) ResponseMessage {
	key := stringifyID(req.ID)
	token := p.inboundCancels.Register(req.ID)
	reqCtx, cancel := context.WithCancel(ctx)
	reqCtx = withCancelToken(reqCtx, token)

	if progressToken, ok := req.Meta.ProgressToken(); ok {
		reqCtx = withProgressToken(reqCtx, progressToken)
		p.registerInflight(progressToken, cancel)
		defer p.clearInflight(progressToken)
	}
	p.registerInflight(key, cancel)
	defer func() {
		p.clearInflight(key)
		p.inboundCancels.Unregister(req.ID)
		cancel()
	}()

	return p.router.DispatchRequest(reqCtx, req)
}

// resolveResponse forwards an inbound response to the tracker, firing
// whichever callback matches the body. Absent entries mean the request
// already completed, timed out or was cancelled; the response is discarded.
func (p *peer) resolveResponse(resp ResponseMessage) {
	p.timeouts.Cancel(resp.ID)
	p.outboundCancels.Unregister(resp.ID)

	entry := p.tracker.Complete(resp.ID)
	if entry == nil {
		p.debugLog("No pending request for response id: %v", resp.ID)
		return
	}

	if resp.Error != nil {
		if entry.OnError != nil {
			entry.OnError(errorFromObject(resp.Error))
		}
		return
	}
	if entry.OnSuccess != nil {
		entry.OnSuccess(resp.Result)
	}
}

// Call sends a request with callback completion and returns the allocated
// ID plus a cancellation token for the caller to observe.
func (p *peer) Call(method string, params any, meta Meta, onSuccess func(any), onError func(*MCPError)) (int64, CancelToken, error) {
	id := p.tracker.NextID()
	token := p.outboundCancels.Register(id)

	p.tracker.RegisterPending(id,
		func(result any) {
			if onSuccess != nil {
				onSuccess(result)
			}
		},
		func(err *MCPError) {
			p.timeouts.Cancel(id)
			p.outboundCancels.Unregister(id)
			if onError != nil {
				onError(err)
			}
		},
	)

	req, err := NewRequestMessage(id, method, params)
	if err != nil {
		p.tracker.Cancel(id)
		p.outboundCancels.Unregister(id)
		return 0, CancelToken{}, err
	}
	req.Meta = meta

	if p.config.RequestTimeout > 0 {
		p.timeouts.SetTimeout(id, p.config.RequestTimeout, func() {
			p.outboundCancels.Unregister(id)
			p.tracker.Expire(id)
		})
	}

	if err := p.sendRequestMessage(req); err != nil {
		p.timeouts.Cancel(id)
		p.outboundCancels.Unregister(id)
		p.tracker.Fail(id, WrapError(InternalError, "transport send failed", err))
		return 0, CancelToken{}, err
	}

	return id, token, nil
}

// CallAndWait is the blocking facade: a single-use future wrapped in the
// success/error callbacks, waited on with the configured call timeout.
func (p *peer) CallAndWait(ctx context.Context, method string, params any, meta Meta) (any, *MCPError) {
	future := NewFuture()

	id, _, err := p.Call(method, params, meta,
		func(result any) { future.Complete(result) },
		func(callErr *MCPError) { future.Fail(callErr) },
	)
	if err != nil {
		return nil, WrapError(InternalError, "send request", err)
	}

	timeout := p.config.CallTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := deadlineRemaining(deadline)
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	result, callErr := future.Wait(timeout)
	if callErr != nil && callErr.Code == RequestTimeout {
		// Drain the pending entry; a late response must be discarded.
		p.CancelOutbound(id, "deadline exceeded")
	}
	return result, callErr
}

// CancelOutbound drains a pending request into a cancel-error and emits the
// best-effort notifications/cancelled. Races with the response path are
// resolved by whoever removes the tracker entry first.
func (p *peer) CancelOutbound(id any, reason string) bool {
	p.timeouts.Cancel(id)
	p.outboundCancels.CancelRequest(id)

	drained := p.tracker.Fail(id, NewMCPError(RequestCancelled, "request cancelled"))
	if !drained {
		return false
	}

	params := map[string]any{"requestId": id}
	if reason != "" {
		params["reason"] = reason
	}
	p.sendNotification("notifications/cancelled", params)
	return true
}

// handleCancelledNotification reacts to the remote side cancelling one of
// the requests we are currently handling. Unknown keys are logged only;
// the race with normal completion is benign.
func (p *peer) handleCancelledNotification(ctx context.Context, msg NotificationMessage) error {
	params, err := decodeCancelledParams(msg.Params)
	if err != nil {
		p.debugLog("Invalid cancellation payload: %v", err)
		return nil
	}

	handled := false
	if params.progressToken != "" {
		handled = p.cancelInflight(params.progressToken) || handled
	}
	if params.requestKey != "" {
		p.inboundCancels.CancelRequest(params.requestKey)
		handled = p.cancelInflight(params.requestKey) || handled
	}

	if !handled {
		p.debugLog("Cancellation received for unknown key: token=%s id=%s",
			params.progressToken, params.requestKey)
	}
	return nil
}

func (p *peer) registerInflight(key string, cancel context.CancelFunc) {
	if key == "" || cancel == nil {
		return
	}
	p.inflightMu.Lock()
	p.inflightCtx[key] = cancel
	p.inflightMu.Unlock()
}

func (p *peer) clearInflight(key string) {
	if key == "" {
		return
	}
	p.inflightMu.Lock()
	delete(p.inflightCtx, key)
	p.inflightMu.Unlock()
}

func (p *peer) cancelInflight(key string) bool {
	if key == "" {
		return false
	}
	p.inflightMu.Lock()
	cancel, ok := p.inflightCtx[key]
	if ok {
		delete(p.inflightCtx, key)
	}
	p.inflightMu.Unlock()

	if ok && cancel != nil {
		cancel()
	}
	return ok
}

// sendResponse writes a response frame. Notification-shaped empty
// responses (ID nil and no body) are swallowed.
func (p *peer) sendResponse(resp ResponseMessage) {
	if resp.ID == nil && resp.Result == nil && resp.Error == nil {
		return
	}
	data, err := EncodeFrame(resp)
	if err != nil {
		p.debugLog("Failed to marshal response: %v", err)
		return
	}
	p.writeFrame(data)
}

func (p *peer) sendRequestMessage(req RequestMessage) error {
	data, err := EncodeFrame(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return p.writeFrame(data)
}

// sendNotification emits a fire-and-forget notification.
func (p *peer) sendNotification(method string, params any) {
	note, err := NewNotificationMessage(method, params)
	if err != nil {
		p.debugLog("Failed to build notification %s: %v", method, err)
		return
	}
	data, err := EncodeFrame(note)
	if err != nil {
		p.debugLog("Failed to marshal notification %s: %v", method, err)
		return
	}
	p.writeFrame(data)
}

func (p *peer) writeFrame(data []byte) error {
	preview := string(data)
	if len(preview) > 512 {
		preview = preview[:512] + "..."
	}
	p.debugLog("Sending: %s", preview)

	if err := p.transport.Send(data); err != nil {
		p.debugLog("Transport send failed: %v", err)
		return err
	}
	p.outboundCount.Add(1)
	return nil
}

// sendProgressNotification emits notifications/progress for a token.
func (p *peer) sendProgressNotification(token string, progress, total float64, message string) {
	params := map[string]any{
		"progressToken": token,
		"progress":      progress,
	}
	if total > 0 {
		params["total"] = total
	}
	if message != "" {
		params["message"] = message
	}
	p.sendNotification("notifications/progress", params)
}

// ReportProgress emits a progress notification when the handler context
// carries a progress token.
func (p *peer) ReportProgress(ctx context.Context, progress, total float64, message string) {
	if token, ok := progressTokenFromContext(ctx); ok {
		p.sendProgressNotification(token, progress, total, message)
	}
}

// sendLogMessage emits notifications/message gated by the session's level.
func (p *peer) sendLogMessage(level LogLevel, message string, data LogData) {
	if !shouldEmitLog(p.sessionState.LoggingLevel(), level) {
		return
	}
	p.sendNotification("notifications/message", buildLogParams(level, p.config.Name, message, data))
}

// Metrics exposes lightweight counters useful for debugging.
func (p *peer) Metrics() SessionMetrics {
	return SessionMetrics{
		InboundMessages:  p.inboundCount.Load(),
		OutboundMessages: p.outboundCount.Load(),
		PendingRequests:  p.tracker.PendingCount(),
	}
}

// Tracker exposes the session's request tracker, mainly for tests and
// metrics.
func (p *peer) Tracker() *RequestTracker { return p.tracker }

// State exposes the negotiated session state.
func (p *peer) State() *SessionState { return p.sessionState }

// Close shuts down the transport and the timer goroutine.
func (p *peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.timeouts.Stop()
		err = p.transport.Close()
		close(p.closed)
	})
	return err
}

type cancelledParams struct {
	requestKey    string
	progressToken string
}

func decodeCancelledParams(raw []byte) (cancelledParams, error) {
	var wire struct {
		RequestID     any    `json:"requestId"`
		ProgressToken string `json:"progressToken,omitempty"`
		Reason        string `json:"reason,omitempty"`
	}
	if len(raw) > 0 {
		if err := jsonUnmarshal(raw, &wire); err != nil {
			return cancelledParams{}, err
		}
	}
	return cancelledParams{
		requestKey:    stringifyID(wire.RequestID),
		progressToken: wire.ProgressToken,
	}, nil
}
