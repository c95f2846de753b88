package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
)

// --- review_code ---

// ReviewCodeTool handles the review_code MCP tool.
type ReviewCodeTool struct {
	backend agent.Backend
	dir     string
}

// NewReviewCodeTool creates a ReviewCodeTool.
func NewReviewCodeTool(backend agent.Backend, dir string) *ReviewCodeTool {
	return &ReviewCodeTool{backend: backend, dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *ReviewCodeTool) Definition() mcp.Tool {
	return mcp.NewTool("review_code",
		mcp.WithDescription("Review code for quality, bugs, and improvements"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Code to review")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Programming language (e.g., python, javascript)")),
		mcp.WithString("context", mcp.Description("Additional context about the code (optional)")),
	)
}

// Handle processes the review_code tool call.
func (t *ReviewCodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	language := strings.TrimSpace(req.GetString("language", ""))
	if strings.TrimSpace(code) == "" || language == "" {
		return mcp.NewToolResultError("'code' and 'language' are required"), nil
	}

	prompt := agent.ReviewPrompt(code, language, req.GetString("context", ""))
	out, err := t.backend.Run(ctx, agent.Task{Kind: agent.KindReview, Prompt: prompt, WorkingDirectory: t.dir})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"status": "success", "review": out})
}

// --- generate_code ---

// GenerateCodeTool handles the generate_code MCP tool.
type GenerateCodeTool struct {
	backend agent.Backend
	dir     string
}

// NewGenerateCodeTool creates a GenerateCodeTool.
func NewGenerateCodeTool(backend agent.Backend, dir string) *GenerateCodeTool {
	return &GenerateCodeTool{backend: backend, dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *GenerateCodeTool) Definition() mcp.Tool {
	return mcp.NewTool("generate_code",
		mcp.WithDescription("Generate code based on specifications"),
		mcp.WithString("specification", mcp.Required(), mcp.Description("Detailed specification of what to generate")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Target programming language")),
		mcp.WithString("style_guide", mcp.Description("Code style guidelines to follow (optional)")),
	)
}

// Handle processes the generate_code tool call.
func (t *GenerateCodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec := strings.TrimSpace(req.GetString("specification", ""))
	language := strings.TrimSpace(req.GetString("language", ""))
	if spec == "" || language == "" {
		return mcp.NewToolResultError("'specification' and 'language' are required"), nil
	}

	prompt := agent.GeneratePrompt(spec, language, req.GetString("style_guide", ""))
	out, err := t.backend.Run(ctx, agent.Task{Kind: agent.KindGenerate, Prompt: prompt, WorkingDirectory: t.dir})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"status": "success", "code": out})
}

// --- fix_code ---

// FixCodeTool handles the fix_code MCP tool.
type FixCodeTool struct {
	backend agent.Backend
	dir     string
}

// NewFixCodeTool creates a FixCodeTool.
func NewFixCodeTool(backend agent.Backend, dir string) *FixCodeTool {
	return &FixCodeTool{backend: backend, dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *FixCodeTool) Definition() mcp.Tool {
	return mcp.NewTool("fix_code",
		mcp.WithDescription("Fix bugs or issues in code"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Code with issues")),
		mcp.WithString("error_message", mcp.Required(), mcp.Description("Error message or description of the issue")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Programming language")),
	)
}

// Handle processes the fix_code tool call.
func (t *FixCodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	errMsg := strings.TrimSpace(req.GetString("error_message", ""))
	language := strings.TrimSpace(req.GetString("language", ""))
	if strings.TrimSpace(code) == "" || errMsg == "" || language == "" {
		return mcp.NewToolResultError("'code', 'error_message' and 'language' are required"), nil
	}

	prompt := agent.FixPrompt(code, errMsg, language)
	out, err := t.backend.Run(ctx, agent.Task{Kind: agent.KindFix, Prompt: prompt, WorkingDirectory: t.dir})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"status": "success", "fixed_code": out})
}

// --- write_tests ---

// WriteTestsTool handles the write_tests MCP tool.
type WriteTestsTool struct {
	backend agent.Backend
	dir     string
}

// NewWriteTestsTool creates a WriteTestsTool.
func NewWriteTestsTool(backend agent.Backend, dir string) *WriteTestsTool {
	return &WriteTestsTool{backend: backend, dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *WriteTestsTool) Definition() mcp.Tool {
	return mcp.NewTool("write_tests",
		mcp.WithDescription("Write unit tests for code"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Code to write tests for")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Programming language")),
		mcp.WithString("test_framework", mcp.Required(), mcp.Description("Test framework to use (e.g., pytest, jest)")),
	)
}

// Handle processes the write_tests tool call.
func (t *WriteTestsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	language := strings.TrimSpace(req.GetString("language", ""))
	framework := strings.TrimSpace(req.GetString("test_framework", ""))
	if strings.TrimSpace(code) == "" || language == "" || framework == "" {
		return mcp.NewToolResultError("'code', 'language' and 'test_framework' are required"), nil
	}

	prompt := agent.TestsPrompt(code, language, framework)
	out, err := t.backend.Run(ctx, agent.Task{Kind: agent.KindTests, Prompt: prompt, WorkingDirectory: t.dir})
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"status": "success", "tests": out})
}
