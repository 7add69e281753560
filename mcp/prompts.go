package mcp

import (
	"errors"
	"fmt"

	"github.com/oxhq/mcpwire/mcp/types"
)

// PromptMessage is re-exported for handler results.
type PromptMessage = types.PromptMessage

type getPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// renderPrompt resolves a prompts/get request against the registry,
// enforcing required arguments before rendering.
func renderPrompt(registry *PromptRegistry, name string, args map[string]string) (*getPromptResult, error) {
	prompt, ok := registry.Get(name)
	if !ok {
		return nil, NewMCPError(InvalidParams, fmt.Sprintf("Prompt not found: %s", name))
	}

	for _, arg := range prompt.Arguments() {
		if !arg.Required {
			continue
		}
		if _, present := args[arg.Name]; !present {
			return nil, NewMCPError(InvalidParams,
				fmt.Sprintf("Missing required argument: %s", arg.Name),
				map[string]any{"argument": arg.Name})
		}
	}

	messages, err := prompt.Render(args)
	if err != nil {
		if errors.Is(err, types.ErrMissingArgument) {
			return nil, WrapError(InvalidParams, "Invalid prompt arguments", err)
		}
		return nil, err
	}

	return &getPromptResult{
		Description: prompt.Description(),
		Messages:    messages,
	}, nil
}
