package mcp

import (
	"sync"
	"sync/atomic"
	"time"
)

// PendingRequest holds the completion callbacks for one in-flight outbound
// request. Exactly one terminal transition happens per entry: complete,
// cancel, or timeout.
type PendingRequest struct {
	OnSuccess func(result any)
	OnError   func(err *MCPError)
	CreatedAt time.Time
}

// TrackerStats exposes the conservation counters. At every instant
// Registered == Completed + Cancelled + TimedOut + Pending.
type TrackerStats struct {
	Registered int64 `json:"registered"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
	TimedOut   int64 `json:"timed_out"`
	Pending    int   `json:"pending"`
}

// RequestTracker is the sole ID authority for a session. IDs are monotonic
// 64-bit integers allocated lock-free; the pending table maps canonical ID
// keys to completion callbacks. Callbacks are always invoked outside the
// table lock.
type RequestTracker struct {
	idCounter atomic.Int64

	mu      sync.Mutex
	pending map[string]*PendingRequest

	registered atomic.Int64
	completed  atomic.Int64
	cancelled  atomic.Int64
	timedOut   atomic.Int64
}

// NewRequestTracker creates an empty tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		pending: make(map[string]*PendingRequest),
	}
}

// NextID allocates the next request ID. The library never reuses an ID
// within a session and callers never choose their own.
func (t *RequestTracker) NextID() int64 {
	return t.idCounter.Add(1)
}

// RegisterPending records the callback pair for an outbound request.
func (t *RequestTracker) RegisterPending(id any, onSuccess func(any), onError func(*MCPError)) {
	key := stringifyID(id)
	entry := &PendingRequest{
		OnSuccess: onSuccess,
		OnError:   onError,
		CreatedAt: time.Now(),
	}

	t.mu.Lock()
	t.pending[key] = entry
	t.mu.Unlock()
	t.registered.Add(1)
}

// Complete atomically removes and returns the pending entry for id. A nil
// return means the request already reached a terminal state (cancelled or
// timed out) and the late response should be discarded.
func (t *RequestTracker) Complete(id any) *PendingRequest {
	entry := t.remove(id)
	if entry != nil {
		t.completed.Add(1)
	}
	return entry
}

// Cancel removes the pending entry without firing either callback. It is a
// no-op when the entry is already gone.
func (t *RequestTracker) Cancel(id any) bool {
	entry := t.remove(id)
	if entry != nil {
		t.cancelled.Add(1)
		return true
	}
	return false
}

// Expire drains the entry for id into its error callback with a timeout
// error. Returns false when complete or cancel won the race.
func (t *RequestTracker) Expire(id any) bool {
	entry := t.remove(id)
	if entry == nil {
		return false
	}
	t.timedOut.Add(1)
	if entry.OnError != nil {
		entry.OnError(NewMCPError(RequestTimeout, "request timed out"))
	}
	return true
}

// Fail drains the entry for id into its error callback with the supplied
// error. Used for transport-level send failures and by CancelOutbound; the
// entry is counted as cancelled in Stats.
func (t *RequestTracker) Fail(id any, err *MCPError) bool {
	entry := t.remove(id)
	if entry == nil {
		return false
	}
	t.cancelled.Add(1)
	if entry.OnError != nil {
		entry.OnError(err)
	}
	return true
}

// PendingCount returns the number of in-flight requests.
func (t *RequestTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stats returns the conservation counters.
func (t *RequestTracker) Stats() TrackerStats {
	t.mu.Lock()
	pending := len(t.pending)
	t.mu.Unlock()
	return TrackerStats{
		Registered: t.registered.Load(),
		Completed:  t.completed.Load(),
		Cancelled:  t.cancelled.Load(),
		TimedOut:   t.timedOut.Load(),
		Pending:    pending,
	}
}

func (t *RequestTracker) remove(id any) *PendingRequest {
	key := stringifyID(id)
	t.mu.Lock()
	entry, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return entry
}
