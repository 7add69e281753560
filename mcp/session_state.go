package mcp

import (
	"sync"
	"time"

	"github.com/oxhq/mcpwire/mcp/types"
)

// SessionState captures negotiated protocol details and client preferences
// for the active MCP connection.
type SessionState struct {
	mu                 sync.RWMutex
	initialized        bool
	protocolVersion    string
	peerCapabilities   map[string]any
	peerInfo           map[string]any
	loggingLevel       LogLevel
	samplingHistory    []types.SamplingRecord
	elicitationHistory []types.ElicitationRecord
}

// NewSessionState returns a session state with sensible defaults.
func NewSessionState() *SessionState {
	return &SessionState{
		peerCapabilities: make(map[string]any),
		loggingLevel:     LogLevelInfo,
	}
}

// MarkInitialized records the negotiated protocol version and the remote
// peer's capabilities and info.
func (s *SessionState) MarkInitialized(protocolVersion string, capabilities, info map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.protocolVersion = protocolVersion
	s.samplingHistory = nil
	s.elicitationHistory = nil
	s.peerCapabilities = cloneMap(capabilities)
	if s.peerCapabilities == nil {
		s.peerCapabilities = make(map[string]any)
	}
	s.peerInfo = cloneMap(info)
}

// Initialized reports whether the handshake has completed.
func (s *SessionState) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// NegotiatedVersion returns the negotiated protocol version.
func (s *SessionState) NegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// PeerCapabilities returns a shallow copy of the negotiated capabilities.
func (s *SessionState) PeerCapabilities() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.peerCapabilities)
}

// PeerHasCapability walks a dotted capability path like "sampling.tools".
func (s *SessionState) PeerHasCapability(path ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := any(s.peerCapabilities)
	for _, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return false
		}
		current, ok = node[key]
		if !ok {
			return false
		}
	}
	if flag, ok := current.(bool); ok {
		return flag
	}
	return current != nil
}

// PeerInfo returns the remote clientInfo/serverInfo map.
func (s *SessionState) PeerInfo() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.peerInfo)
}

// SetLoggingLevel stores the requested minimum logging level.
func (s *SessionState) SetLoggingLevel(level LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggingLevel = level
}

// LoggingLevel returns the currently configured minimum logging level.
func (s *SessionState) LoggingLevel() LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggingLevel
}

// AppendSamplingRecord stores a sampling exchange for later inspection.
func (s *SessionState) AppendSamplingRecord(params, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplingHistory = append(s.samplingHistory, types.SamplingRecord{
		Timestamp: time.Now().UTC(),
		Params:    cloneMap(params),
		Result:    cloneMap(result),
	})
}

// SamplingHistory retrieves a copy of recorded sampling exchanges.
func (s *SessionState) SamplingHistory() []types.SamplingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := make([]types.SamplingRecord, len(s.samplingHistory))
	copy(clone, s.samplingHistory)
	return clone
}

// AppendElicitationRecord stores an elicitation exchange.
func (s *SessionState) AppendElicitationRecord(params, result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elicitationHistory = append(s.elicitationHistory, types.ElicitationRecord{
		Timestamp: time.Now().UTC(),
		Params:    cloneMap(params),
		Result:    cloneMap(result),
	})
}

// ElicitationHistory returns recorded elicitation exchanges.
func (s *SessionState) ElicitationHistory() []types.ElicitationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := make([]types.ElicitationRecord, len(s.elicitationHistory))
	copy(clone, s.elicitationHistory)
	return clone
}

func cloneMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	clone := make(map[string]any, len(input))
	for k, v := range input {
		clone[k] = v
	}
	return clone
}
