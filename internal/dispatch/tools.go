package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/protocol"
	"github.com/vibeteam/vibeteam-mcp/internal/registry"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

func (d *Dispatcher) listTools(context.Context, *protocol.Request) (any, *protocol.ErrorObject) {
	return mcp.ListToolsResult{Tools: d.tools.List()}, nil
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (d *Dispatcher) callTool(ctx context.Context, req *protocol.Request) (any, *protocol.ErrorObject) {
	var p callToolParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, invalidParams("tools/call: %v", err)
	}
	if p.Name == "" {
		return nil, invalidParams("Missing tool name")
	}

	tool, err := d.tools.Lookup(p.Name)
	if err != nil {
		return nil, invalidParams("Unknown tool: %s", p.Name)
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}
	if err := registry.ValidateArguments(tool.Definition, p.Arguments); err != nil {
		rpcErr := invalidParams("Invalid params: %v", err)
		var ipe *registry.InvalidParamsError
		if errors.As(err, &ipe) {
			rpcErr.Data = map[string]any{"missing": ipe.Missing, "invalid": ipe.Invalid}
		}
		return nil, rpcErr
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = p.Name
	callReq.Params.Arguments = p.Arguments

	logger := d.logger.With("tool", p.Name, "kind", tool.Kind.String())
	logger.Debug("calling tool")

	var result *mcp.CallToolResult
	if tool.Kind == registry.Retryable && d.exec != nil {
		var out any
		out, err = d.exec.Execute(ctx, p.Name, func(ctx context.Context) (any, error) {
			return invoke(ctx, tool.Handler, callReq)
		})
		result, _ = out.(*mcp.CallToolResult)
	} else {
		result, err = invoke(ctx, tool.Handler, callReq)
	}

	var pe *panicError
	if errors.As(err, &pe) {
		logger.Error("panic in tool handler", "panic", pe.value, "stack", pe.stack)
		d.record(p.Name, false)
		return nil, protocol.NewError(protocol.CodeInternalError, fmt.Sprintf("Internal error: %v", pe.value))
	}
	if err != nil {
		d.record(p.Name, false)
		return failureResult(p.Name, err, logger), nil
	}

	if result == nil {
		result = mcp.NewToolResultText("")
	}
	d.record(p.Name, !result.IsError)
	return result, nil
}

func (d *Dispatcher) record(tool string, ok bool) {
	if d.recorder != nil {
		d.recorder.RecordInvocation(tool, ok)
	}
}

// ─── Handler invocation ──────────────────────────────────────────────────────

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func invoke(ctx context.Context, h registry.HandlerFunc, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return h(ctx, req)
}

// ─── Failure payload ─────────────────────────────────────────────────────────

// FailurePayload is the JSON body of a failed tool call.
type FailurePayload struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Tool      string `json:"tool"`
	Attempts  int    `json:"attempts"`
	Retryable bool   `json:"retryable"`
	Category  string `json:"category"`
	Pattern   string `json:"pattern,omitempty"`
	Exhausted bool   `json:"exhausted"`
}

// Failure codes carried in FailurePayload.Error.
const (
	FailureExhausted    = "retries_exhausted"
	FailureNonRetryable = "non_retryable"
	FailureInterrupted  = "interrupted"
)

func newFailurePayload(tool string, err error) FailurePayload {
	var f *retry.Failure
	if !errors.As(err, &f) {
		return FailurePayload{
			Error:    FailureNonRetryable,
			Message:  err.Error(),
			Tool:     tool,
			Attempts: 1,
			Category: retry.CategoryNonRetryable.String(),
		}
	}

	p := FailurePayload{
		Message:   f.LastError,
		Tool:      tool,
		Attempts:  f.Attempts,
		Retryable: f.Retryable,
		Category:  f.Category.String(),
		Pattern:   f.Pattern,
		Exhausted: f.Exhausted,
	}
	switch {
	case f.Exhausted:
		p.Error = FailureExhausted
	case f.Retryable:
		p.Error = FailureInterrupted
	default:
		p.Error = FailureNonRetryable
	}
	return p
}

func failureResult(tool string, err error, logger *slog.Logger) *mcp.CallToolResult {
	p := newFailurePayload(tool, err)
	logger.Warn("tool call failed",
		"error_code", p.Error,
		"attempts", p.Attempts,
		"category", p.Category,
		"pattern", p.Pattern,
	)
	data, mErr := json.MarshalIndent(p, "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError(p.Message)
	}
	return mcp.NewToolResultError(string(data))
}
