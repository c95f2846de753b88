package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
)

// ExecuteTaskTool handles the execute_task MCP tool.
type ExecuteTaskTool struct {
	backend agent.Backend
	baseDir string
}

// NewExecuteTaskTool creates an ExecuteTaskTool. Relative working
// directories are resolved against baseDir.
func NewExecuteTaskTool(backend agent.Backend, baseDir string) *ExecuteTaskTool {
	return &ExecuteTaskTool{backend: backend, baseDir: baseDir}
}

// Definition returns the MCP tool definition for registration.
func (t *ExecuteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("execute_task",
		mcp.WithDescription("Execute a software engineering task using the coding agent"),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Detailed description of the task to execute"),
		),
		mcp.WithString("working_directory",
			mcp.Description("Working directory for the task (optional)"),
		),
	)
}

// Handle processes the execute_task tool call.
func (t *ExecuteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := strings.TrimSpace(req.GetString("description", ""))
	if description == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}

	dir := t.baseDir
	if wd := strings.TrimSpace(req.GetString("working_directory", "")); wd != "" {
		if !filepath.IsAbs(wd) {
			wd = filepath.Join(t.baseDir, wd)
		}
		info, err := os.Stat(wd)
		if err != nil || !info.IsDir() {
			return mcp.NewToolResultError("working_directory does not exist: " + wd), nil
		}
		dir = wd
	}

	out, err := t.backend.Run(ctx, agent.Task{Kind: agent.KindExecute, Prompt: description, WorkingDirectory: dir})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"status":            "success",
		"result":            out,
		"working_directory": dir,
	})
}
