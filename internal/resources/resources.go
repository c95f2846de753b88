package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
	"github.com/vibeteam/vibeteam-mcp/internal/journal"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

const recentAttempts = 50

// StatusSource reports backend activity.
type StatusSource interface {
	Snapshot() agent.Status
}

// StatsSource reports retry statistics.
type StatsSource interface {
	Summary() retry.Summary
}

// AttemptSource reports journaled retry events.
type AttemptSource interface {
	Recent(limit int) ([]journal.Entry, error)
}

// Handler serves the built-in resources.
type Handler struct {
	dir      string
	status   StatusSource
	stats    StatsSource
	attempts AttemptSource
}

// NewHandler creates a resource Handler with its dependencies. Nil
// sources are allowed; the matching resources report they are unavailable.
func NewHandler(dir string, status StatusSource, stats StatsSource, attempts AttemptSource) *Handler {
	return &Handler{dir: dir, status: status, stats: stats, attempts: attempts}
}

// Register adds every built-in resource to c.
func (h *Handler) Register(c *Catalog) error {
	for _, r := range []struct {
		res mcp.Resource
		fn  HandlerFunc
	}{
		{h.WorkspaceResource(), h.HandleWorkspace},
		{h.TasksResource(), h.HandleTasks},
		{h.AgentStatusResource(), h.HandleAgentStatus},
		{h.RetryStatsResource(), h.HandleRetryStats},
		{h.RetryAttemptsResource(), h.HandleRetryAttempts},
	} {
		if err := c.Add(r.res, r.fn); err != nil {
			return err
		}
	}
	return nil
}

// --- workspace:/// ---

// WorkspaceResource returns the resource definition for the workspace listing.
func (h *Handler) WorkspaceResource() mcp.Resource {
	return mcp.NewResource(
		"workspace:///",
		"Current Workspace",
		mcp.WithResourceDescription("Files in the current working directory"),
		mcp.WithMIMEType("text/plain"),
	)
}

// HandleWorkspace lists non-hidden files under the working directory.
func (h *Handler) HandleWorkspace(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var files []string
	err := filepath.WalkDir(h.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == h.dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return errorResource(req.Params.URI, fmt.Sprintf("reading workspace: %v", err)), nil
	}
	sort.Strings(files)
	return textResource(req.Params.URI, "text/plain", "Files in workspace:\n"+strings.Join(files, "\n")), nil
}

// --- workspace:///tasks.md ---

// TasksResource returns the resource definition for the tasks file.
func (h *Handler) TasksResource() mcp.Resource {
	return mcp.NewResource(
		"workspace:///tasks.md",
		"Tasks File",
		mcp.WithResourceDescription("Current tasks.md file if it exists"),
		mcp.WithMIMEType("text/markdown"),
	)
}

// HandleTasks returns tasks.md from the working directory.
func (h *Handler) HandleTasks(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, "tasks.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return textResource(req.Params.URI, "text/plain", "No tasks.md file found in the current directory"), nil
		}
		return errorResource(req.Params.URI, fmt.Sprintf("reading tasks.md: %v", err)), nil
	}
	return textResource(req.Params.URI, "text/markdown", string(data)), nil
}

// --- agent:///status ---

// AgentStatusResource returns the resource definition for agent status.
func (h *Handler) AgentStatusResource() mcp.Resource {
	return mcp.NewResource(
		"agent:///status",
		"Agent Status",
		mcp.WithResourceDescription("Current status of the coding agent backend"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleAgentStatus reports the working directory and backend activity.
func (h *Handler) HandleAgentStatus(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out := map[string]any{"working_directory": h.dir}
	if h.status != nil {
		out["agent"] = h.status.Snapshot()
	} else {
		out["agent"] = "not initialized"
	}
	return jsonResource(req.Params.URI, out)
}

// --- retry:///stats ---

// RetryStatsResource returns the resource definition for retry statistics.
func (h *Handler) RetryStatsResource() mcp.Resource {
	return mcp.NewResource(
		"retry:///stats",
		"Retry Statistics",
		mcp.WithResourceDescription("Attempts, outcomes and matched error patterns since startup"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRetryStats returns the statistics summary as JSON.
func (h *Handler) HandleRetryStats(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.stats == nil {
		return errorResource(req.Params.URI, "retry statistics unavailable"), nil
	}
	return jsonResource(req.Params.URI, h.stats.Summary())
}

// --- retry:///attempts ---

// RetryAttemptsResource returns the resource definition for the attempt journal.
func (h *Handler) RetryAttemptsResource() mcp.Resource {
	return mcp.NewResource(
		"retry:///attempts",
		"Recent Retry Attempts",
		mcp.WithResourceDescription("Most recent retry and outcome events, newest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRetryAttempts returns the most recent journal entries.
func (h *Handler) HandleRetryAttempts(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.attempts == nil {
		return errorResource(req.Params.URI, "retry journal unavailable"), nil
	}
	entries, err := h.attempts.Recent(recentAttempts)
	if err != nil {
		return nil, fmt.Errorf("resources: reading journal: %w", err)
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return jsonResource(req.Params.URI, entries)
}

// --- helpers ---

func textResource(uri, mime, text string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mime,
			Text:     text,
		},
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("resources: marshaling %s: %w", uri, err)
	}
	return textResource(uri, "application/json", string(data)), nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return textResource(uri, "text/plain", fmt.Sprintf("Error: %s", message))
}
