package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
)

const defaultTeamSize = 2

// ManageProjectTool handles the manage_project MCP tool.
type ManageProjectTool struct {
	backend agent.Backend
	dir     string
}

// NewManageProjectTool creates a ManageProjectTool.
func NewManageProjectTool(backend agent.Backend, dir string) *ManageProjectTool {
	return &ManageProjectTool{backend: backend, dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *ManageProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("manage_project",
		mcp.WithDescription("Coordinate a team of coding agents on a project"),
		mcp.WithString("project_description",
			mcp.Required(),
			mcp.Description("Description of the project to manage"),
		),
		mcp.WithNumber("team_size",
			mcp.Description("Number of agents to coordinate (default: 2)"),
		),
	)
}

// Handle processes the manage_project tool call.
func (t *ManageProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc := strings.TrimSpace(req.GetString("project_description", ""))
	if desc == "" {
		return mcp.NewToolResultError("'project_description' is required"), nil
	}
	teamSize := intArg(req, "team_size", defaultTeamSize)
	if teamSize < 1 {
		return mcp.NewToolResultError("'team_size' must be at least 1"), nil
	}

	out, err := t.backend.Run(ctx, agent.Task{
		Kind:             agent.KindManage,
		Prompt:           agent.ManagePrompt(desc, teamSize),
		WorkingDirectory: t.dir,
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"status":         "success",
		"team_size":      teamSize,
		"project_result": out,
	})
}
