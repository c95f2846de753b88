// Package dispatch routes decoded protocol requests to the method table
// and builds the responses.
//
// Errors never end a session here: every failure becomes an error response
// or an isError tool result. Notifications are executed and produce no response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/protocol"
	"github.com/vibeteam/vibeteam-mcp/internal/registry"
	"github.com/vibeteam/vibeteam-mcp/internal/resources"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// ProtocolVersion is the MCP revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// Executor runs a unit of work through the retry pipeline.
type Executor interface {
	Execute(ctx context.Context, name string, unit retry.UnitFunc) (any, error)
}

// ResourceReader lists and reads resources.
type ResourceReader interface {
	List() []mcp.Resource
	Read(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)
}

// InvocationRecorder is notified of every finished tools/call.
type InvocationRecorder interface {
	RecordInvocation(tool string, ok bool)
}

type methodFunc func(ctx context.Context, req *protocol.Request) (any, *protocol.ErrorObject)

// Dispatcher implements the server's method table.
type Dispatcher struct {
	tools        *registry.Registry
	resources    ResourceReader
	exec         Executor
	recorder     InvocationRecorder
	info         mcp.Implementation
	instructions string
	logger       *slog.Logger

	methods map[string]methodFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithResources sets the resource catalog.
func WithResources(r ResourceReader) Option {
	return func(d *Dispatcher) { d.resources = r }
}

// WithRecorder sets the invocation recorder.
func WithRecorder(r InvocationRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithServerInfo sets the implementation reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(d *Dispatcher) { d.info = mcp.Implementation{Name: name, Version: version} }
}

// WithInstructions sets the instructions returned by initialize.
func WithInstructions(s string) Option {
	return func(d *Dispatcher) { d.instructions = s }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher. Retryable tools run through exec.
func New(tools *registry.Registry, exec Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:  tools,
		exec:   exec,
		info:   mcp.Implementation{Name: "vibeteam-mcp", Version: "dev"},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.methods = map[string]methodFunc{
		protocol.MethodInitialize:    d.initialize,
		protocol.MethodInitialized:   d.empty,
		protocol.MethodPing:          d.empty,
		protocol.MethodShutdown:      d.empty,
		protocol.MethodToolsList:     d.listTools,
		protocol.MethodToolsCall:     d.callTool,
		protocol.MethodResourcesList: d.listResources,
		protocol.MethodResourcesRead: d.readResource,
		protocol.MethodComplete:      d.complete,
	}
	return d
}

// Handle processes one request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	logger := d.logger.With("method", req.Method)
	if sid := protocol.SessionID(ctx); sid != "" {
		logger = logger.With("session", sid)
	}

	fn, ok := d.methods[req.Method]
	if !ok {
		logger.Debug("method not found")
		if req.IsNotification() {
			return nil
		}
		return protocol.NewErrorResponse(req.ResponseID(),
			protocol.NewError(protocol.CodeMethodNotFound, "Method not found: "+req.Method))
	}

	result, rpcErr := d.safeCall(ctx, fn, req, logger)
	if req.IsNotification() {
		if rpcErr != nil {
			logger.Debug("notification failed", "error", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		logger.Debug("request failed", "code", rpcErr.Code, "error", rpcErr.Message)
		return protocol.NewErrorResponse(req.ResponseID(), rpcErr)
	}
	return protocol.NewResult(req.ResponseID(), result)
}

func (d *Dispatcher) safeCall(ctx context.Context, fn methodFunc, req *protocol.Request, logger *slog.Logger) (result any, rpcErr *protocol.ErrorObject) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in method handler", "panic", r, "stack", string(debug.Stack()))
			result, rpcErr = nil, protocol.NewError(protocol.CodeInternalError, fmt.Sprintf("Internal error: %v", r))
		}
	}()
	return fn(ctx, req)
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

func (d *Dispatcher) initialize(ctx context.Context, req *protocol.Request) (any, *protocol.ErrorObject) {
	var p initializeParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, invalidParams("initialize: %v", err)
	}
	d.logger.Info("client initialized",
		"client", p.ClientInfo.Name,
		"client_version", p.ClientInfo.Version,
		"protocol", p.ProtocolVersion,
		"session", protocol.SessionID(ctx),
	)

	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":      map[string]any{"listChanged": false},
			"resources":  map[string]any{"subscribe": false, "listChanged": false},
			"completion": map[string]any{},
		},
		"serverInfo": d.info,
	}
	if d.instructions != "" {
		result["instructions"] = d.instructions
	}
	return result, nil
}

func (d *Dispatcher) empty(context.Context, *protocol.Request) (any, *protocol.ErrorObject) {
	return struct{}{}, nil
}

func (d *Dispatcher) complete(context.Context, *protocol.Request) (any, *protocol.ErrorObject) {
	return map[string]any{
		"completion": map[string]any{
			"values":  []string{},
			"hasMore": false,
		},
	}, nil
}

// ─── Resources ───────────────────────────────────────────────────────────────

func (d *Dispatcher) listResources(context.Context, *protocol.Request) (any, *protocol.ErrorObject) {
	list := []mcp.Resource{}
	if d.resources != nil {
		list = append(list, d.resources.List()...)
	}
	return mcp.ListResourcesResult{Resources: list}, nil
}

type readResourceParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) readResource(ctx context.Context, req *protocol.Request) (any, *protocol.ErrorObject) {
	var p readResourceParams
	if err := req.DecodeParams(&p); err != nil {
		return nil, invalidParams("resources/read: %v", err)
	}
	if p.URI == "" {
		return nil, invalidParams("Missing resource uri")
	}
	if d.resources == nil {
		return nil, invalidParams("Unknown resource: %s", p.URI)
	}

	rr := mcp.ReadResourceRequest{}
	rr.Params.URI = p.URI
	contents, err := d.resources.Read(ctx, rr)
	if errors.Is(err, resources.ErrUnknownResource) {
		return nil, invalidParams("Unknown resource: %s", p.URI)
	}
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInternalError, fmt.Sprintf("Internal error: %v", err))
	}
	return mcp.ReadResourceResult{Contents: contents}, nil
}

func invalidParams(format string, args ...any) *protocol.ErrorObject {
	return protocol.NewError(protocol.CodeInvalidParams, fmt.Sprintf(format, args...))
}
