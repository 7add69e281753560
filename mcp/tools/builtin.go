package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/oxhq/mcpwire/mcp/types"
)

// Echo returns a tool that repeats its message argument back verbatim.
func Echo() types.Tool {
	return NewTool("echo").
		WithDescription("Echo the supplied message back to the caller").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Text to echo back",
				},
			},
			"required": []string{"message"},
		}).
		WithHandler(func(ctx context.Context, params json.RawMessage) (any, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, fmt.Errorf("decode echo arguments: %w", err)
			}
			return types.CallToolResult{
				Content: []types.ContentBlock{types.TextContent(args.Message)},
			}, nil
		}).
		Build()
}

// Calculate returns a four-function arithmetic tool.
func Calculate() types.Tool {
	return NewTool("calculate").
		WithDescription("Apply a basic arithmetic operation to two operands").
		WithInputSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []string{"add", "subtract", "multiply", "divide"},
				},
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"operation", "a", "b"},
		}).
		WithHandler(func(ctx context.Context, params json.RawMessage) (any, error) {
			var args struct {
				Operation string  `json:"operation"`
				A         float64 `json:"a"`
				B         float64 `json:"b"`
			}
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, fmt.Errorf("decode calculate arguments: %w", err)
			}

			var value float64
			switch args.Operation {
			case "add":
				value = args.A + args.B
			case "subtract":
				value = args.A - args.B
			case "multiply":
				value = args.A * args.B
			case "divide":
				if args.B == 0 {
					return types.CallToolResult{
						Content: []types.ContentBlock{types.TextContent("division by zero")},
						IsError: true,
					}, nil
				}
				value = args.A / args.B
			default:
				return types.CallToolResult{
					Content: []types.ContentBlock{types.TextContent(fmt.Sprintf("unknown operation: %s", args.Operation))},
					IsError: true,
				}, nil
			}

			return types.CallToolResult{
				Content: []types.ContentBlock{types.TextContent(formatNumber(value))},
			}, nil
		}).
		Build()
}

// formatNumber renders integral results without a decimal point.
func formatNumber(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
