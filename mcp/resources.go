package mcp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oxhq/mcpwire/mcp/types"
)

// ResourceContent represents the content of a resource read. Text and Blob
// are mutually exclusive; IsBlob discriminates.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
	IsBlob   bool   `json:"-"`
}

// TemplateHandler resolves a templated read once all placeholders have been
// bound from the request URI.
type TemplateHandler func(uri string, vars map[string]string) (*ResourceContent, error)

// ResourceTemplate pairs a template definition with its read handler.
type ResourceTemplate struct {
	Definition types.ResourceTemplateDefinition
	Handler    TemplateHandler
}

// MatchURITemplate binds a URI against a `{var}` template. Placeholders
// match one path segment except a trailing placeholder, which captures the
// rest of the URI. Returns nil when the URI does not fit the template.
func MatchURITemplate(template, uri string) map[string]string {
	vars := make(map[string]string)
	rest := uri
	tmpl := template

	for {
		open := strings.Index(tmpl, "{")
		if open < 0 {
			if rest == tmpl {
				return vars
			}
			return nil
		}
		closing := strings.Index(tmpl[open:], "}")
		if closing < 0 {
			return nil
		}
		closing += open

		literal := tmpl[:open]
		if !strings.HasPrefix(rest, literal) {
			return nil
		}
		rest = rest[len(literal):]
		name := tmpl[open+1 : closing]
		tmpl = tmpl[closing+1:]

		if tmpl == "" {
			// Trailing placeholder captures everything left.
			if rest == "" || name == "" {
				return nil
			}
			vars[name] = rest
			return vars
		}

		// Bind up to the next literal character, one segment at most.
		next := tmpl[0]
		end := strings.IndexByte(rest, next)
		if end <= 0 {
			return nil
		}
		value := rest[:end]
		if strings.ContainsRune(value, '/') {
			return nil
		}
		if name == "" {
			return nil
		}
		vars[name] = value
		rest = rest[end:]
	}
}

// resolveResourceRead finds content for a read request. Exact URIs win;
// templates are consulted in registration order afterwards.
func resolveResourceRead(registry *ResourceRegistry, templates *ResourceTemplateRegistry, uri string) (*ResourceContent, error) {
	if resource, ok := registry.Get(uri); ok {
		return readResource(resource)
	}

	for _, template := range templates.List() {
		vars := MatchURITemplate(template.Definition.URITemplate, uri)
		if vars == nil {
			continue
		}
		if template.Handler == nil {
			return nil, NewMCPError(InternalError, fmt.Sprintf("template %s has no handler", template.Definition.Name))
		}
		return template.Handler(uri, vars)
	}

	return nil, NewMCPError(InvalidParams, "Resource not found", map[string]any{"uri": uri})
}

func readResource(resource types.Resource) (*ResourceContent, error) {
	if blobber, ok := resource.(types.BlobResource); ok {
		blob, err := blobber.Blob()
		if err != nil {
			return nil, err
		}
		return &ResourceContent{
			URI:      resource.URI(),
			MimeType: resource.MimeType(),
			Blob:     blob,
			IsBlob:   true,
		}, nil
	}

	text, err := resource.Contents()
	if err != nil {
		return nil, err
	}
	return &ResourceContent{
		URI:      resource.URI(),
		MimeType: resource.MimeType(),
		Text:     text,
	}, nil
}

// SubscriptionTable tracks which subscribers want update notifications for
// which resource URIs. Subscribers are remembered in subscription order and
// iterated over a snapshot so delivery happens without the lock held.
type SubscriptionTable struct {
	mu   sync.Mutex
	subs map[string][]string
}

// NewSubscriptionTable creates an empty table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{subs: make(map[string][]string)}
}

// Subscribe records interest of subscriber in uri. Re-subscribing is a
// no-op that keeps the original position.
func (t *SubscriptionTable) Subscribe(uri, subscriber string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.subs[uri] {
		if existing == subscriber {
			return
		}
	}
	t.subs[uri] = append(t.subs[uri], subscriber)
}

// Unsubscribe removes the subscriber from uri. Idempotent.
func (t *SubscriptionTable) Unsubscribe(uri, subscriber string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.subs[uri]
	for i, existing := range list {
		if existing == subscriber {
			t.subs[uri] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(t.subs[uri]) == 0 {
		delete(t.subs, uri)
	}
}

// DropSubscriber removes the subscriber from every URI. Used when the
// subscriber's session ends.
func (t *SubscriptionTable) DropSubscriber(subscriber string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for uri, list := range t.subs {
		for i, existing := range list {
			if existing == subscriber {
				t.subs[uri] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(t.subs[uri]) == 0 {
			delete(t.subs, uri)
		}
	}
}

// Subscribers returns a snapshot of uri's subscribers in subscription order.
func (t *SubscriptionTable) Subscribers(uri string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.subs[uri]
	snapshot := make([]string, len(list))
	copy(snapshot, list)
	return snapshot
}
