// Package prompts provides the builder used to construct MCP prompts.
package prompts

import (
	"fmt"
	"strings"

	"github.com/oxhq/mcpwire/mcp/types"
)

// BasePrompt is a template-backed prompt. `{{name}}` placeholders in the
// template are substituted from the rendering arguments.
type BasePrompt struct {
	name        string
	description string
	arguments   []types.PromptArgument
	template    string
	role        string
}

// Name returns the prompt name.
func (p *BasePrompt) Name() string { return p.name }

// Description returns the prompt description.
func (p *BasePrompt) Description() string { return p.description }

// Arguments returns the declared arguments.
func (p *BasePrompt) Arguments() []types.PromptArgument { return p.arguments }

// Render substitutes arguments into the template and returns the messages.
func (p *BasePrompt) Render(args map[string]string) ([]types.PromptMessage, error) {
	for _, arg := range p.arguments {
		if arg.Required {
			if _, present := args[arg.Name]; !present {
				return nil, fmt.Errorf("%w: %s", types.ErrMissingArgument, arg.Name)
			}
		}
	}

	text := p.template
	for name, value := range args {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}

	role := p.role
	if role == "" {
		role = "user"
	}
	return []types.PromptMessage{
		{Role: role, Content: types.TextContent(text)},
	}, nil
}

// PromptBuilder helps construct prompts with a fluent interface.
type PromptBuilder struct {
	prompt *BasePrompt
}

// NewPrompt creates a new prompt builder.
func NewPrompt(name string) *PromptBuilder {
	return &PromptBuilder{prompt: &BasePrompt{name: name}}
}

// WithDescription sets the prompt description.
func (b *PromptBuilder) WithDescription(desc string) *PromptBuilder {
	b.prompt.description = desc
	return b
}

// WithArgument declares one argument.
func (b *PromptBuilder) WithArgument(name, description string, required bool) *PromptBuilder {
	b.prompt.arguments = append(b.prompt.arguments, types.PromptArgument{
		Name:        name,
		Description: description,
		Required:    required,
	})
	return b
}

// WithTemplate sets the message template.
func (b *PromptBuilder) WithTemplate(template string) *PromptBuilder {
	b.prompt.template = template
	return b
}

// WithRole sets the rendered message role (default "user").
func (b *PromptBuilder) WithRole(role string) *PromptBuilder {
	b.prompt.role = role
	return b
}

// Build returns the constructed prompt.
func (b *PromptBuilder) Build() types.Prompt {
	return b.prompt
}
