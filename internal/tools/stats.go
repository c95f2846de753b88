package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// StatsSource provides the retry statistics summary.
type StatsSource interface {
	Summary() retry.Summary
}

// RetryStatsTool handles the retry_stats MCP tool.
type RetryStatsTool struct {
	stats  StatsSource
	policy retry.Policy
}

// NewRetryStatsTool creates a RetryStatsTool.
func NewRetryStatsTool(stats StatsSource, policy retry.Policy) *RetryStatsTool {
	return &RetryStatsTool{stats: stats, policy: policy}
}

// Definition returns the MCP tool definition for registration.
func (t *RetryStatsTool) Definition() mcp.Tool {
	return mcp.NewTool("retry_stats",
		mcp.WithDescription("Report retry statistics and the active retry policy"),
	)
}

// Handle processes the retry_stats tool call.
func (t *RetryStatsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"statistics": t.stats.Summary(),
		"policy": map[string]any{
			"maxAttempts":     t.policy.MaxAttempts,
			"baseDelay":       retry.FormatDuration(t.policy.BaseDelay),
			"maxDelay":        retry.FormatDuration(t.policy.MaxDelay),
			"exponentialBase": t.policy.ExponentialBase,
			"jitterFraction":  t.policy.JitterFraction,
		},
	})
}
