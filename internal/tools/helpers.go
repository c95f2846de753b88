// Package tools implements the MCP tool handlers exposed by the server.
//
// Each tool is a struct with its dependencies injected via constructor:
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Agent tools return backend failures as Go errors so the dispatcher's
// retry pipeline can classify them. Argument problems are reported with
// mcp.NewToolResultError and are never retried.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// Executor runs a unit of work through the retry pipeline.
type Executor interface {
	Execute(ctx context.Context, name string, unit retry.UnitFunc) (any, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts an array of strings. Non-string items are skipped.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		if ss, ok := req.GetArguments()[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tools: encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
