package mcp

import (
	"sync"
	"sync/atomic"
)

// CancelToken is the freely-cloneable observer half of a cancellation pair.
// Handlers poll IsCancelled between units of work; cancellation is strictly
// cooperative.
type CancelToken struct {
	state *cancelState
}

type cancelState struct {
	fired atomic.Bool
	done  chan struct{}
	once  sync.Once
}

// IsCancelled reports whether cancellation has been requested. Non-blocking.
func (t CancelToken) IsCancelled() bool {
	if t.state == nil {
		return false
	}
	return t.state.fired.Load()
}

// Done returns a channel closed once cancellation fires. A nil-state token
// returns a never-closing channel.
func (t CancelToken) Done() <-chan struct{} {
	if t.state == nil {
		return nil
	}
	return t.state.done
}

// CancelSource is the exclusively-owned authority end of a cancellation
// pair. Its token transitions Armed → Fired on Cancel; the transition is
// terminal and idempotent.
type CancelSource struct {
	state *cancelState
}

// NewCancelSource creates an armed source/token pair.
func NewCancelSource() *CancelSource {
	return &CancelSource{state: &cancelState{done: make(chan struct{})}}
}

// Token returns an observer for this source.
func (s *CancelSource) Token() CancelToken {
	return CancelToken{state: s.state}
}

// Cancel requests cooperative cancellation. Safe to call repeatedly.
func (s *CancelSource) Cancel() {
	s.state.once.Do(func() {
		s.state.fired.Store(true)
		close(s.state.done)
	})
}

// CancellationManager maps in-flight request IDs to their cancel sources.
// Both CancelRequest and Unregister silently tolerate missing entries; that
// tolerance is what makes late cancel notifications and completed-response
// races safe.
type CancellationManager struct {
	mu      sync.Mutex
	sources map[string]*CancelSource
}

// NewCancellationManager creates an empty manager.
func NewCancellationManager() *CancellationManager {
	return &CancellationManager{sources: make(map[string]*CancelSource)}
}

// Register creates a source for the request and returns its token.
func (m *CancellationManager) Register(id any) CancelToken {
	source := NewCancelSource()
	key := stringifyID(id)

	m.mu.Lock()
	m.sources[key] = source
	m.mu.Unlock()

	return source.Token()
}

// CancelRequest fires the source for id if it is still registered. Returns
// whether a source was found; absence is not an error.
func (m *CancellationManager) CancelRequest(id any) bool {
	key := stringifyID(id)

	m.mu.Lock()
	source, ok := m.sources[key]
	if ok {
		delete(m.sources, key)
	}
	m.mu.Unlock()

	if ok {
		source.Cancel()
	}
	return ok
}

// Unregister disarms the source for id without firing it. Idempotent.
func (m *CancellationManager) Unregister(id any) {
	key := stringifyID(id)
	m.mu.Lock()
	delete(m.sources, key)
	m.mu.Unlock()
}

// ActiveCount returns the number of registered sources.
func (m *CancellationManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}
