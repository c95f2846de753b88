package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// taskOutcome is the per-task entry in a batch result.
type taskOutcome struct {
	Task      string `json:"task"`
	Status    string `json:"status"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
	Category  string `json:"category,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty"`
	Committed *bool  `json:"committed,omitempty"`
}

// batchRunner runs each task of a batch through the pipeline on its own,
// so one exhausted task does not abort the rest.
type batchRunner struct {
	exec    Executor
	backend agent.Backend
	dir     string
	logger  *slog.Logger
}

func (b *batchRunner) run(ctx context.Context, name, label string, task agent.Task) (taskOutcome, error) {
	attempts := 0
	out, err := b.exec.Execute(ctx, name, func(ctx context.Context) (any, error) {
		attempts++
		return b.backend.Run(ctx, task)
	})
	if err == nil {
		s, _ := out.(string)
		return taskOutcome{Task: label, Status: "completed", Result: s, Attempts: attempts}, nil
	}
	if ctx.Err() != nil {
		return taskOutcome{}, ctx.Err()
	}

	o := taskOutcome{Task: label, Status: "failed", Error: err.Error(), Attempts: attempts}
	var f *retry.Failure
	if errors.As(err, &f) {
		o.Error = f.LastError
		o.Attempts = f.Attempts
		o.Exhausted = f.Exhausted
		if f.Retryable {
			o.Category = f.Category.String()
			o.Pattern = f.Pattern
		}
	}
	b.logger.Warn("batch task failed", "tool", name, "task", label, "attempts", o.Attempts, "error", o.Error)
	return o, nil
}

func countCompleted(results []taskOutcome) int {
	n := 0
	for _, r := range results {
		if r.Status == "completed" {
			n++
		}
	}
	return n
}

// --- complete_tasks ---

// CompleteTasksTool handles the complete_tasks MCP tool.
type CompleteTasksTool struct {
	batchRunner
}

// NewCompleteTasksTool creates a CompleteTasksTool.
func NewCompleteTasksTool(exec Executor, backend agent.Backend, dir string, logger *slog.Logger) *CompleteTasksTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CompleteTasksTool{batchRunner{exec: exec, backend: backend, dir: dir, logger: logger}}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteTasksTool) Definition() mcp.Tool {
	return mcp.NewTool("complete_tasks",
		mcp.WithDescription("Complete an array of tasks sequentially. Each task is retried on its own."),
		mcp.WithArray("tasks",
			mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Array of task descriptions to complete"),
		),
		mcp.WithNumber("max_tasks",
			mcp.Description("Maximum number of tasks to complete (optional, default: all)"),
		),
	)
}

// Handle processes the complete_tasks tool call.
func (t *CompleteTasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := stringsArg(req, "tasks")
	if len(tasks) == 0 {
		return mcp.NewToolResultError("No tasks provided"), nil
	}

	todo := tasks
	if n := intArg(req, "max_tasks", 0); n > 0 && n < len(tasks) {
		todo = tasks[:n]
	}

	results := make([]taskOutcome, 0, len(todo))
	for i, task := range todo {
		t.logger.Info("processing task", "tool", "complete_tasks", "index", i+1, "of", len(todo))
		o, err := t.run(ctx, "complete_tasks", task, agent.Task{
			Kind:             agent.KindExecute,
			Prompt:           task,
			WorkingDirectory: t.dir,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}

	completed := countCompleted(results)
	return jsonResult(map[string]any{
		"status":          "success",
		"total_tasks":     len(tasks),
		"processed_tasks": len(todo),
		"completed_tasks": completed,
		"failed_tasks":    len(todo) - completed,
		"results":         results,
	})
}

// --- vibeteam_task_workflow ---

// TaskWorkflowTool handles the vibeteam_task_workflow MCP tool.
type TaskWorkflowTool struct {
	batchRunner
}

// NewTaskWorkflowTool creates a TaskWorkflowTool.
func NewTaskWorkflowTool(exec Executor, backend agent.Backend, dir string, logger *slog.Logger) *TaskWorkflowTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TaskWorkflowTool{batchRunner{exec: exec, backend: backend, dir: dir, logger: logger}}
}

// Definition returns the MCP tool definition for registration.
func (t *TaskWorkflowTool) Definition() mcp.Tool {
	return mcp.NewTool("vibeteam_task_workflow",
		mcp.WithDescription(
			"Execute the full task workflow for each open task: complete it, test, fix issues, "+
				"review the diff and optionally commit. Only '[ ]' tasks are processed.",
		),
		mcp.WithArray("tasks",
			mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Array of task descriptions in checkbox format (e.g., '[ ] Implement feature X')"),
		),
		mcp.WithBoolean("auto_commit",
			mcp.Description("Automatically commit changes after completing each task (default: false)"),
		),
	)
}

// Handle processes the vibeteam_task_workflow tool call.
func (t *TaskWorkflowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks := stringsArg(req, "tasks")
	if len(tasks) == 0 {
		return mcp.NewToolResultError("No tasks provided"), nil
	}
	autoCommit := boolArg(req, "auto_commit", false)

	var open []string
	for _, line := range tasks {
		if desc, ok := agent.ParseCheckbox(line); ok && desc != "" {
			open = append(open, desc)
		}
	}

	results := make([]taskOutcome, 0, len(open))
	for _, desc := range open {
		o, err := t.run(ctx, "vibeteam_task_workflow", desc, agent.Task{
			Kind:             agent.KindWorkflow,
			Prompt:           agent.WorkflowPrompt(desc, autoCommit),
			WorkingDirectory: t.dir,
		})
		if err != nil {
			return nil, err
		}
		if o.Status == "completed" {
			committed := autoCommit
			o.Committed = &committed
		}
		results = append(results, o)
	}

	completed := countCompleted(results)
	return jsonResult(map[string]any{
		"status":            "success",
		"total_tasks":       len(tasks),
		"uncompleted_tasks": len(open),
		"processed_tasks":   len(results),
		"completed_tasks":   completed,
		"failed_tasks":      len(results) - completed,
		"results":           results,
	})
}
