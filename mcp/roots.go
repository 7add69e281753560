package mcp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/mcpwire/mcp/types"
)

// Root is re-exported from the shared types package.
type Root = types.Root

const fileURIPrefix = "file://"

// RootsManager holds the ordered list of file roots a client advertises.
// SetRoots replaces the list atomically but never auto-notifies; the owner
// calls NotifyChanged to emit notifications/roots/list_changed.
type RootsManager struct {
	mu     sync.RWMutex
	roots  []Root
	notify func()
}

// NewRootsManager creates an empty manager.
func NewRootsManager() *RootsManager {
	return &RootsManager{}
}

// SetNotifyCallback installs the list-changed callback.
func (m *RootsManager) SetNotifyCallback(fn func()) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// ValidateRootURI enforces the file:// scheme.
func ValidateRootURI(uri string) error {
	if !strings.HasPrefix(uri, fileURIPrefix) {
		return NewMCPError(InvalidParams, fmt.Sprintf("root URI must begin with file://: %s", uri))
	}
	if uri == fileURIPrefix {
		return NewMCPError(InvalidParams, "root URI has no path")
	}
	return nil
}

// SetRoots validates and replaces the advertised roots. A single invalid
// URI rejects the whole update and leaves prior state intact.
func (m *RootsManager) SetRoots(roots []Root) error {
	for _, root := range roots {
		if err := ValidateRootURI(root.URI); err != nil {
			return err
		}
	}

	clone := make([]Root, len(roots))
	copy(clone, roots)

	m.mu.Lock()
	m.roots = clone
	m.mu.Unlock()
	return nil
}

// Roots returns a copy of the current list in order.
func (m *RootsManager) Roots() []Root {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := make([]Root, len(m.roots))
	copy(clone, m.roots)
	return clone
}

// NotifyChanged fires the configured callback once.
func (m *RootsManager) NotifyChanged() {
	m.mu.RLock()
	notify := m.notify
	m.mu.RUnlock()
	if notify != nil {
		notify()
	}
}

// Contains reports whether path falls under any advertised root. Roots may
// carry doublestar glob patterns in their path portion; plain roots match
// by prefix.
func (m *RootsManager) Contains(path string) bool {
	normalized := strings.TrimPrefix(path, fileURIPrefix)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, root := range m.roots {
		rootPath := strings.TrimPrefix(root.URI, fileURIPrefix)
		if strings.ContainsAny(rootPath, "*?[{") {
			if ok, err := doublestar.Match(rootPath, normalized); err == nil && ok {
				return true
			}
			continue
		}
		if normalized == rootPath || strings.HasPrefix(normalized, strings.TrimSuffix(rootPath, "/")+"/") {
			return true
		}
	}
	return false
}
