package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// --- Test helpers ---

// fakeBackend replays scripted errors, then succeeds with "done: <prompt>".
type fakeBackend struct {
	errs  []error
	tasks []agent.Task
}

func (f *fakeBackend) Run(_ context.Context, task agent.Task) (string, error) {
	f.tasks = append(f.tasks, task)
	if i := len(f.tasks) - 1; i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return "done: " + task.Prompt, nil
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(getResultText(result)), &m); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, getResultText(result))
	}
	return m
}

func newTestPipeline() *retry.Pipeline {
	p := retry.DefaultPolicy()
	p.JitterFraction = 0
	return retry.New(p, retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
}

// --- Definitions ---

func TestDefinitions_RequiredArguments(t *testing.T) {
	b := &fakeBackend{}
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewExecuteTaskTool(b, "").Definition(), "execute_task", []string{"description"}},
		{NewReviewCodeTool(b, "").Definition(), "review_code", []string{"code", "language"}},
		{NewGenerateCodeTool(b, "").Definition(), "generate_code", []string{"specification", "language"}},
		{NewFixCodeTool(b, "").Definition(), "fix_code", []string{"code", "error_message", "language"}},
		{NewWriteTestsTool(b, "").Definition(), "write_tests", []string{"code", "language", "test_framework"}},
		{NewCompleteTasksTool(nil, b, "", nil).Definition(), "complete_tasks", []string{"tasks"}},
		{NewTaskWorkflowTool(nil, b, "", nil).Definition(), "vibeteam_task_workflow", []string{"tasks"}},
		{NewManageProjectTool(b, "").Definition(), "manage_project", []string{"project_description"}},
		{NewRetryStatsTool(retry.NewStatistics(), retry.DefaultPolicy()).Definition(), "retry_stats", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("name = %q, want %q", tt.def.Name, tt.name)
			}
			if strings.Join(tt.def.InputSchema.Required, ",") != strings.Join(tt.required, ",") {
				t.Errorf("required = %v, want %v", tt.def.InputSchema.Required, tt.required)
			}
			if tt.def.Description == "" {
				t.Error("description should not be empty")
			}
		})
	}
}

// --- execute_task ---

func TestExecuteTaskTool_Handle_Success(t *testing.T) {
	base := t.TempDir()
	sub := filepath.Join(base, "svc")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{}
	tool := NewExecuteTaskTool(b, base)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"description":       "add a health endpoint",
		"working_directory": "svc",
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}

	m := decodeResult(t, result)
	if m["status"] != "success" || m["working_directory"] != sub {
		t.Errorf("result = %v", m)
	}
	if len(b.tasks) != 1 || b.tasks[0].WorkingDirectory != sub || b.tasks[0].Kind != agent.KindExecute {
		t.Errorf("backend tasks = %+v", b.tasks)
	}
}

func TestExecuteTaskTool_Handle_MissingDirectory(t *testing.T) {
	b := &fakeBackend{}
	tool := NewExecuteTaskTool(b, t.TempDir())

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"description":       "x",
		"working_directory": "nope",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !isErrorResult(result) {
		t.Error("expected error result for missing directory")
	}
	if len(b.tasks) != 0 {
		t.Error("backend should not run")
	}
}

func TestExecuteTaskTool_Handle_BackendErrorPropagates(t *testing.T) {
	b := &fakeBackend{errs: []error{errors.New("usage limit reached")}}
	tool := NewExecuteTaskTool(b, t.TempDir())

	_, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"description": "x"}))
	if err == nil || err.Error() != "usage limit reached" {
		t.Errorf("err = %v, want backend message untouched", err)
	}
}

// --- code tools ---

func TestCodeTools_MissingArguments(t *testing.T) {
	b := &fakeBackend{}
	tests := []struct {
		name   string
		handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args   map[string]interface{}
	}{
		{"review", NewReviewCodeTool(b, "").Handle, map[string]interface{}{"code": "x"}},
		{"generate", NewGenerateCodeTool(b, "").Handle, map[string]interface{}{"language": "go"}},
		{"fix", NewFixCodeTool(b, "").Handle, map[string]interface{}{"code": "x", "language": "go"}},
		{"tests", NewWriteTestsTool(b, "").Handle, map[string]interface{}{"code": "x", "language": "go"}},
		{"manage", NewManageProjectTool(b, "").Handle, map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !isErrorResult(result) {
				t.Errorf("expected error result, got %s", getResultText(result))
			}
		})
	}
	if len(b.tasks) != 0 {
		t.Errorf("backend ran %d times, want 0", len(b.tasks))
	}
}

func TestCodeTools_ResultKeys(t *testing.T) {
	b := &fakeBackend{}
	tests := []struct {
		name   string
		handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args   map[string]interface{}
		key    string
		kind   agent.Kind
	}{
		{"review", NewReviewCodeTool(b, "").Handle,
			map[string]interface{}{"code": "x := 1", "language": "go", "context": "hot path"}, "review", agent.KindReview},
		{"generate", NewGenerateCodeTool(b, "").Handle,
			map[string]interface{}{"specification": "a stack", "language": "go"}, "code", agent.KindGenerate},
		{"fix", NewFixCodeTool(b, "").Handle,
			map[string]interface{}{"code": "x", "error_message": "undefined: y", "language": "go"}, "fixed_code", agent.KindFix},
		{"tests", NewWriteTestsTool(b, "").Handle,
			map[string]interface{}{"code": "x", "language": "go", "test_framework": "testing"}, "tests", agent.KindTests},
		{"manage", NewManageProjectTool(b, "").Handle,
			map[string]interface{}{"project_description": "a todo app", "team_size": float64(3)}, "project_result", agent.KindManage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			m := decodeResult(t, result)
			if s, _ := m[tt.key].(string); !strings.HasPrefix(s, "done: ") {
				t.Errorf("result[%q] = %v", tt.key, m[tt.key])
			}
			last := b.tasks[len(b.tasks)-1]
			if last.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", last.Kind, tt.kind)
			}
		})
	}
	if !strings.Contains(b.tasks[0].Prompt, "Context: hot path") {
		t.Errorf("review prompt missing context: %q", b.tasks[0].Prompt)
	}
	if !strings.Contains(b.tasks[4].Prompt, "coordinating 3 engineers") {
		t.Errorf("manage prompt = %q", b.tasks[4].Prompt)
	}
}

// --- complete_tasks ---

func TestCompleteTasksTool_Handle_PerTaskRetry(t *testing.T) {
	b := &fakeBackend{errs: []error{
		errors.New("503 Service Unavailable"), // task 1, attempt 1
		nil,                                   // task 1, attempt 2
		errors.New("syntax error"),            // task 2, attempt 1: permanent
		nil,                                   // task 3
	}}
	tool := NewCompleteTasksTool(newTestPipeline(), b, "", nil)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"tasks": []interface{}{"one", "two", "three", "four"},
		"max_tasks": float64(3),
	}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	m := decodeResult(t, result)
	if m["total_tasks"] != float64(4) || m["processed_tasks"] != float64(3) {
		t.Errorf("totals = %v / %v", m["total_tasks"], m["processed_tasks"])
	}
	if m["completed_tasks"] != float64(2) || m["failed_tasks"] != float64(1) {
		t.Errorf("completed = %v, failed = %v", m["completed_tasks"], m["failed_tasks"])
	}

	results := m["results"].([]any)
	first := results[0].(map[string]any)
	if first["status"] != "completed" || first["attempts"] != float64(2) {
		t.Errorf("first = %v", first)
	}
	second := results[1].(map[string]any)
	if second["status"] != "failed" || second["error"] != "syntax error" || second["attempts"] != float64(1) {
		t.Errorf("second = %v", second)
	}
	if _, ok := second["category"]; ok {
		t.Error("non-retryable failure should not carry a category")
	}
}

func TestCompleteTasksTool_Handle_Empty(t *testing.T) {
	tool := NewCompleteTasksTool(newTestPipeline(), &fakeBackend{}, "", nil)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"tasks": []interface{}{}}))
	if err != nil {
		t.Fatal(err)
	}
	if !isErrorResult(result) || getResultText(result) != "No tasks provided" {
		t.Errorf("result = %s", getResultText(result))
	}
}

func TestCompleteTasksTool_Handle_ExhaustedTask(t *testing.T) {
	limit := errors.New("rate limit exceeded")
	b := &fakeBackend{errs: []error{limit, limit, limit}}
	tool := NewCompleteTasksTool(newTestPipeline(), b, "", nil)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"tasks": []interface{}{"only"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	r := decodeResult(t, result)["results"].([]any)[0].(map[string]any)
	if r["exhausted"] != true || r["attempts"] != float64(3) || r["pattern"] != "rate limit" || r["category"] != "quota-limit" {
		t.Errorf("result = %v", r)
	}
}

// --- vibeteam_task_workflow ---

func TestTaskWorkflowTool_Handle_OnlyOpenTasks(t *testing.T) {
	b := &fakeBackend{}
	tool := NewTaskWorkflowTool(newTestPipeline(), b, "", nil)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"tasks":       []interface{}{"[ ] Add login", "[x] Setup repo", "[ ] Add logout", "note"},
		"auto_commit": true,
	}))
	if err != nil {
		t.Fatal(err)
	}

	m := decodeResult(t, result)
	if m["uncompleted_tasks"] != float64(2) || m["completed_tasks"] != float64(2) || m["total_tasks"] != float64(4) {
		t.Errorf("result = %v", m)
	}
	if len(b.tasks) != 2 {
		t.Fatalf("backend ran %d times, want 2", len(b.tasks))
	}
	if !strings.HasSuffix(b.tasks[0].Prompt, "Task to complete: Add login") || !strings.Contains(b.tasks[0].Prompt, "Commit") {
		t.Errorf("prompt = %q", b.tasks[0].Prompt)
	}
	r := m["results"].([]any)[1].(map[string]any)
	if r["task"] != "Add logout" || r["committed"] != true {
		t.Errorf("second result = %v", r)
	}
}

// --- retry_stats ---

func TestRetryStatsTool_Handle(t *testing.T) {
	p := newTestPipeline()
	calls := 0
	_, _ = p.Execute(context.Background(), "t", func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		return "ok", nil
	})

	tool := NewRetryStatsTool(p.Statistics(), p.Policy())
	result, err := tool.Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatal(err)
	}
	m := decodeResult(t, result)
	stats := m["statistics"].(map[string]any)
	if stats["successfulInvocations"] != float64(1) || stats["mostCommonPattern"] != "timeout" {
		t.Errorf("statistics = %v", stats)
	}
	policy := m["policy"].(map[string]any)
	if policy["baseDelay"] != "1.0m" || policy["maxAttempts"] != float64(3) {
		t.Errorf("policy = %v", policy)
	}
}
