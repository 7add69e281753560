package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/oxhq/mcpwire/mcp/types"
)

// ErrToolNotFound indicates that a requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrDuplicateComponent indicates a Register call with an existing key.
var ErrDuplicateComponent = errors.New("component already registered")

// Registry is a generic registry for MCP components
type Registry[T any] interface {
	Register(name string, component T) error
	Unregister(name string)
	Get(name string) (T, bool)
	List() []T
	Names() []string
}

// BaseRegistry provides a thread-safe generic registry implementation that
// preserves registration order and fans out change notifications.
type BaseRegistry[T any] struct {
	mu         sync.RWMutex
	components map[string]T
	ordered    []string
	notify     func()
}

// NewBaseRegistry creates a new generic registry
func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		components: make(map[string]T),
		ordered:    make([]string, 0),
	}
}

// SetNotifyCallback installs the single change callback invoked after every
// successful Register or Unregister. The owning session uses it to emit
// `.../list_changed` notifications.
func (r *BaseRegistry[T]) SetNotifyCallback(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Register adds a component to the registry. Registering an existing key
// fails with ErrDuplicateComponent.
func (r *BaseRegistry[T]) Register(name string, component T) error {
	r.mu.Lock()
	if _, exists := r.components[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
	}
	r.ordered = append(r.ordered, name)
	r.components[name] = component
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Unregister removes a component. Idempotent; the notify callback only
// fires when an entry was actually removed.
func (r *BaseRegistry[T]) Unregister(name string) {
	r.mu.Lock()
	_, exists := r.components[name]
	if exists {
		delete(r.components, name)
		for i, key := range r.ordered {
			if key == name {
				r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
				break
			}
		}
	}
	notify := r.notify
	r.mu.Unlock()

	if exists && notify != nil {
		notify()
	}
}

// Get retrieves a component by name
func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	component, exists := r.components[name]
	return component, exists
}

// List returns all components in registration order
func (r *BaseRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]T, 0, len(r.ordered))
	for _, name := range r.ordered {
		result = append(result, r.components[name])
	}
	return result
}

// Names returns all component names in registration order
func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// Len returns the number of registered components.
func (r *BaseRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// ToolRegistry manages tool registration and execution
type ToolRegistry struct {
	*BaseRegistry[types.Tool]
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{BaseRegistry: NewBaseRegistry[types.Tool]()}
}

// Execute runs a tool by name with the given parameters. Arguments are
// validated against the tool's input schema first; a schema violation
// produces CallToolResult{IsError:true} rather than an error so the model
// can read the diagnostic and retry.
func (tr *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (any, error) {
	tool, exists := tr.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if diag := validateToolArguments(tool.InputSchema(), params); diag != "" {
		return types.CallToolResult{
			Content: []types.ContentBlock{types.TextContent(diag)},
			IsError: true,
		}, nil
	}

	handler := tool.Handler()
	return handler(ctx, params)
}

// GetDefinitions returns tool definitions for the MCP protocol
func (tr *ToolRegistry) GetDefinitions() []types.ToolDefinition {
	tools := tr.List()
	definitions := make([]types.ToolDefinition, 0, len(tools))

	for _, tool := range tools {
		def := types.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: types.NormalizeSchema(tool.InputSchema()),
		}
		if out := tool.OutputSchema(); out != nil {
			def.OutputSchema = types.NormalizeSchema(out)
		}
		definitions = append(definitions, def)
	}

	return definitions
}

// validateToolArguments applies the schema checks the dispatch boundary
// enforces: required keys present, declared property types respected.
// Returns an empty string when the arguments pass.
func validateToolArguments(schema map[string]any, params json.RawMessage) string {
	if schema == nil {
		return ""
	}

	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return fmt.Sprintf("arguments must be a JSON object: %v", err)
		}
	}

	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := args[key]; !present {
				return fmt.Sprintf("missing required argument: %s", key)
			}
		}
	} else if required, ok := schema["required"].([]any); ok {
		for _, item := range required {
			key, _ := item.(string)
			if key == "" {
				continue
			}
			if _, present := args[key]; !present {
				return fmt.Sprintf("missing required argument: %s", key)
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, value := range args {
		prop, ok := properties[key].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if want == "" {
			continue
		}
		if !matchesSchemaType(want, value) {
			return fmt.Sprintf("argument %s: expected %s", key, want)
		}
	}
	return ""
}

func matchesSchemaType(want string, value any) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		num, ok := value.(float64)
		return ok && num == float64(int64(num))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// PromptRegistry manages prompt registration
type PromptRegistry struct {
	*BaseRegistry[types.Prompt]
}

// NewPromptRegistry creates a new prompt registry
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{BaseRegistry: NewBaseRegistry[types.Prompt]()}
}

// GetDefinitions returns prompt definitions in registration order.
func (pr *PromptRegistry) GetDefinitions() []types.PromptDefinition {
	prompts := pr.List()
	definitions := make([]types.PromptDefinition, 0, len(prompts))
	for _, prompt := range prompts {
		definitions = append(definitions, types.PromptDefinition{
			Name:        prompt.Name(),
			Description: prompt.Description(),
			Arguments:   prompt.Arguments(),
		})
	}
	return definitions
}

// ResourceRegistry manages resource registration
type ResourceRegistry struct {
	*BaseRegistry[types.Resource]
}

// NewResourceRegistry creates a new resource registry
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{BaseRegistry: NewBaseRegistry[types.Resource]()}
}

// GetDefinitions returns resource definitions in registration order.
func (rr *ResourceRegistry) GetDefinitions() []types.ResourceDefinition {
	resources := rr.List()
	definitions := make([]types.ResourceDefinition, 0, len(resources))
	for _, resource := range resources {
		definitions = append(definitions, types.ResourceDefinition{
			URI:         resource.URI(),
			Name:        resource.Name(),
			Description: resource.Description(),
			MimeType:    resource.MimeType(),
		})
	}
	return definitions
}

// ResourceTemplateRegistry manages resource template registration
type ResourceTemplateRegistry struct {
	*BaseRegistry[ResourceTemplate]
}

// NewResourceTemplateRegistry creates a new resource template registry
func NewResourceTemplateRegistry() *ResourceTemplateRegistry {
	return &ResourceTemplateRegistry{BaseRegistry: NewBaseRegistry[ResourceTemplate]()}
}

// GetDefinitions returns template definitions in registration order.
func (tr *ResourceTemplateRegistry) GetDefinitions() []types.ResourceTemplateDefinition {
	templates := tr.List()
	definitions := make([]types.ResourceTemplateDefinition, 0, len(templates))
	for _, template := range templates {
		definitions = append(definitions, template.Definition)
	}
	return definitions
}
