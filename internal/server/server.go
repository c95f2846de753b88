// Package server wires all components and creates the dispatcher.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools and resources that depend on small
// interfaces. No business logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
	"github.com/vibeteam/vibeteam-mcp/internal/config"
	"github.com/vibeteam/vibeteam-mcp/internal/dispatch"
	"github.com/vibeteam/vibeteam-mcp/internal/journal"
	"github.com/vibeteam/vibeteam-mcp/internal/metrics"
	"github.com/vibeteam/vibeteam-mcp/internal/registry"
	"github.com/vibeteam/vibeteam-mcp/internal/resources"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
	"github.com/vibeteam/vibeteam-mcp/internal/tools"
)

// Name is the implementation name reported by initialize.
const Name = "vibeteam-mcp"

// Version is set at build time via ldflags.
var Version = "dev"

// Server holds the wired components.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Pipeline   *retry.Pipeline
	Tools      *registry.Registry
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Journal    *journal.Journal
	Agent      *agent.Tracker
}

// ExtraTool is a tool registered in addition to the built-in set.
type ExtraTool struct {
	Definition mcp.Tool
	Handler    registry.HandlerFunc
	Kind       registry.Kind
}

type options struct {
	backend agent.Backend
	sleeper retry.Sleeper
	jitter  func() float64
	extra   []ExtraTool
}

// Option customizes New.
type Option func(*options)

// WithBackend replaces the CLI agent backend.
func WithBackend(b agent.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithSleeper replaces the pipeline's backoff wait.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithJitter sets the pipeline's jitter source.
func WithJitter(rnd func() float64) Option {
	return func(o *options) { o.jitter = rnd }
}

// WithTools registers extra tools after the built-in ones.
func WithTools(extra ...ExtraTool) Option {
	return func(o *options) { o.extra = append(o.extra, extra...) }
}

// handler is implemented by every tool in internal/tools.
type handler interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the server with all tools and resources registered.
//
// The returned cleanup function closes the journal and must be called on
// shutdown. It is always non-nil. A duplicate tool name is reported as a
// *registry.DuplicateToolError.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, func(), error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// --- Shared dependencies ---

	backend := o.backend
	if backend == nil {
		backend = agent.NewCLIBackend(cfg.Agent.Command, cfg.WorkingDirectory)
	}
	tracker := agent.NewTracker(backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cleanup := noop
	pipelineOpts := []retry.Option{
		retry.WithLogger(logger.With("component", "retry")),
		retry.WithObserver(m),
	}

	// The journal is optional: without it the attempts resource reports an
	// error and everything else keeps working.
	j, err := journal.Open(journal.DefaultConfig(), logger.With("component", "journal"))
	if err != nil {
		logger.Warn("retry journal disabled", "error", err)
		j = nil
	} else {
		pipelineOpts = append(pipelineOpts, retry.WithObserver(j))
		cleanup = func() {
			if err := j.Close(); err != nil {
				logger.Warn("journal close", "error", err)
			}
		}
	}
	if o.sleeper != nil {
		pipelineOpts = append(pipelineOpts, retry.WithSleeper(o.sleeper))
	}
	if o.jitter != nil {
		pipelineOpts = append(pipelineOpts, retry.WithJitter(o.jitter))
	}
	policy := cfg.Policy()
	pipeline := retry.New(policy, pipelineOpts...)

	// --- Tools ---

	dir := cfg.WorkingDirectory
	toolLogger := logger.With("component", "tools")

	toolReg := registry.New()
	builtin := []struct {
		tool handler
		kind registry.Kind
	}{
		{tools.NewExecuteTaskTool(tracker, dir), registry.Retryable},
		{tools.NewReviewCodeTool(tracker, dir), registry.Retryable},
		{tools.NewGenerateCodeTool(tracker, dir), registry.Retryable},
		{tools.NewFixCodeTool(tracker, dir), registry.Retryable},
		{tools.NewWriteTestsTool(tracker, dir), registry.Retryable},
		{tools.NewManageProjectTool(tracker, dir), registry.Retryable},
		// Batch tools run the pipeline per task themselves.
		{tools.NewCompleteTasksTool(pipeline, tracker, dir, toolLogger), registry.Direct},
		{tools.NewTaskWorkflowTool(pipeline, tracker, dir, toolLogger), registry.Direct},
		{tools.NewRetryStatsTool(pipeline.Statistics(), policy), registry.Direct},
	}
	for _, b := range builtin {
		if err := toolReg.Register(b.tool.Definition(), b.tool.Handle, b.kind); err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("server: %w", err)
		}
	}
	for _, t := range o.extra {
		if err := toolReg.Register(t.Definition, t.Handler, t.Kind); err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("server: %w", err)
		}
	}
	toolReg.Freeze()

	// --- Resources ---

	var attempts resources.AttemptSource
	if j != nil {
		attempts = j
	}
	catalog := resources.NewCatalog()
	if err := resources.NewHandler(dir, tracker, pipeline.Statistics(), attempts).Register(catalog); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("server: %w", err)
	}

	d := dispatch.New(toolReg, pipeline,
		dispatch.WithResources(catalog),
		dispatch.WithRecorder(m),
		dispatch.WithServerInfo(Name, Version),
		dispatch.WithInstructions(serverInstructions()),
		dispatch.WithLogger(logger.With("component", "dispatch")),
	)

	logger.Info("server ready",
		"tools", toolReg.Len(),
		"resources", len(catalog.List()),
		"max_attempts", policy.MaxAttempts,
		"base_delay", retry.FormatDuration(policy.BaseDelay),
		"working_directory", dir,
	)

	return &Server{
		Dispatcher: d,
		Pipeline:   pipeline,
		Tools:      toolReg,
		Metrics:    m,
		Gatherer:   reg,
		Journal:    j,
		Agent:      tracker,
	}, cleanup, nil
}

// IsDuplicateTool reports whether err comes from a duplicate registration.
func IsDuplicateTool(err error) bool {
	var dup *registry.DuplicateToolError
	return errors.As(err, &dup)
}

// noop is the default cleanup.
func noop() {}

// serverInstructions tells the client how to use the tools.
func serverInstructions() string {
	return `You have access to vibeteam-mcp, an AI engineering team exposed as tools.

## Tools
- execute_task: run a free-form engineering task in the working directory
- review_code, generate_code, fix_code, write_tests: focused code tasks
- manage_project: plan and coordinate a larger piece of work
- complete_tasks: run a list of tasks one by one
- vibeteam_task_workflow: run the open "[ ]" items of a checklist
- retry_stats: inspect retry behaviour

## Retries
Calls that fail with transient upstream errors (rate limits, usage limits,
timeouts, overloaded or unavailable services) are retried automatically with
exponential backoff. Waits can be long. A failed call returns a JSON object:
- exhausted=true means the error was retryable but every attempt failed
- retryable=false means the error was permanent and was not retried
Do not immediately re-issue an exhausted call; check retry_stats or the
retry:///attempts resource first.`
}
