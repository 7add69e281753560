// Package tools provides the builder used to construct MCP tools plus a
// couple of ready-made demonstration tools.
package tools

import (
	"github.com/oxhq/mcpwire/mcp/types"
)

// BaseTool provides common tool functionality
type BaseTool struct {
	name         string
	description  string
	inputSchema  map[string]any
	outputSchema map[string]any
	handler      types.ToolHandler
}

// Name returns the tool name
func (t *BaseTool) Name() string {
	return t.name
}

// Description returns the tool description
func (t *BaseTool) Description() string {
	return t.description
}

// InputSchema returns the tool's input schema
func (t *BaseTool) InputSchema() map[string]any {
	return t.inputSchema
}

// OutputSchema returns the tool's output schema, nil when undeclared.
func (t *BaseTool) OutputSchema() map[string]any {
	return t.outputSchema
}

// Handler returns the tool's handler function
func (t *BaseTool) Handler() types.ToolHandler {
	return t.handler
}

// ToolBuilder helps construct tools with fluent interface
type ToolBuilder struct {
	tool *BaseTool
}

// NewTool creates a new tool builder
func NewTool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool: &BaseTool{
			name:        name,
			inputSchema: make(map[string]any),
		},
	}
}

// WithDescription sets the tool description
func (b *ToolBuilder) WithDescription(desc string) *ToolBuilder {
	b.tool.description = desc
	return b
}

// WithInputSchema sets the input schema
func (b *ToolBuilder) WithInputSchema(schema map[string]any) *ToolBuilder {
	b.tool.inputSchema = schema
	return b
}

// WithOutputSchema sets the output schema
func (b *ToolBuilder) WithOutputSchema(schema map[string]any) *ToolBuilder {
	b.tool.outputSchema = schema
	return b
}

// WithHandler sets the handler function
func (b *ToolBuilder) WithHandler(handler types.ToolHandler) *ToolBuilder {
	b.tool.handler = handler
	return b
}

// Build returns the constructed tool
func (b *ToolBuilder) Build() types.Tool {
	return b.tool
}
