package resources

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vibeteam/vibeteam-mcp/internal/agent"
	"github.com/vibeteam/vibeteam-mcp/internal/journal"
	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

type fakeStatus struct{ s agent.Status }

func (f fakeStatus) Snapshot() agent.Status { return f.s }

type fakeAttempts struct {
	entries []journal.Entry
	err     error
}

func (f fakeAttempts) Recent(int) ([]journal.Entry, error) { return f.entries, f.err }

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func contentText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content type = %T", contents[0])
	}
	return tc.Text
}

func newTestCatalog(t *testing.T, h *Handler) *Catalog {
	t.Helper()
	c := NewCatalog()
	if err := h.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return c
}

func TestCatalog_ListOrder(t *testing.T) {
	c := newTestCatalog(t, NewHandler(t.TempDir(), nil, nil, nil))

	want := []string{"workspace:///", "workspace:///tasks.md", "agent:///status", "retry:///stats", "retry:///attempts"}
	got := c.List()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].URI != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, got[i].URI, want[i])
		}
	}
}

func TestCatalog_DuplicateAndUnknown(t *testing.T) {
	h := NewHandler(t.TempDir(), nil, nil, nil)
	c := newTestCatalog(t, h)

	if err := c.Add(h.WorkspaceResource(), h.HandleWorkspace); err == nil {
		t.Error("duplicate URI should be rejected")
	}
	if _, err := c.Read(context.Background(), readReq("file:///etc/passwd")); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("err = %v, want ErrUnknownResource", err)
	}
}

func TestHandleWorkspace_SkipsHidden(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"main.go", "pkg/util.go", ".env", ".git/HEAD"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := newTestCatalog(t, NewHandler(dir, nil, nil, nil))
	contents, err := c.Read(context.Background(), readReq("workspace:///"))
	if err != nil {
		t.Fatal(err)
	}
	text := contentText(t, contents)
	if text != "Files in workspace:\nmain.go\npkg/util.go" {
		t.Errorf("text = %q", text)
	}
}

func TestHandleTasks(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, nil, nil)

	contents, _ := h.HandleTasks(context.Background(), readReq("workspace:///tasks.md"))
	if !strings.Contains(contentText(t, contents), "No tasks.md") {
		t.Error("missing tasks.md should be reported")
	}

	if err := os.WriteFile(filepath.Join(dir, "tasks.md"), []byte("- [ ] one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	contents, _ = h.HandleTasks(context.Background(), readReq("workspace:///tasks.md"))
	if contentText(t, contents) != "- [ ] one\n" {
		t.Errorf("tasks = %q", contentText(t, contents))
	}
}

func TestHandleAgentStatus(t *testing.T) {
	h := NewHandler("/work", fakeStatus{agent.Status{Runs: 4, Failures: 1}}, nil, nil)
	contents, err := h.HandleAgentStatus(context.Background(), readReq("agent:///status"))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(contentText(t, contents)), &m); err != nil {
		t.Fatal(err)
	}
	a := m["agent"].(map[string]any)
	if m["working_directory"] != "/work" || a["runs"] != float64(4) || a["failures"] != float64(1) {
		t.Errorf("status = %v", m)
	}
}

func TestHandleRetryStats(t *testing.T) {
	stats := retry.NewStatistics()
	h := NewHandler("", nil, stats, nil)
	contents, err := h.HandleRetryStats(context.Background(), readReq("retry:///stats"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(contentText(t, contents), `"totalAttempts": 0`) {
		t.Errorf("stats = %s", contentText(t, contents))
	}

	contents, _ = NewHandler("", nil, nil, nil).HandleRetryStats(context.Background(), readReq("retry:///stats"))
	if !strings.HasPrefix(contentText(t, contents), "Error:") {
		t.Error("nil stats should produce an error resource")
	}
}

func TestHandleRetryAttempts(t *testing.T) {
	h := NewHandler("", nil, nil, fakeAttempts{})
	contents, err := h.HandleRetryAttempts(context.Background(), readReq("retry:///attempts"))
	if err != nil {
		t.Fatal(err)
	}
	if contentText(t, contents) != "[]" {
		t.Errorf("empty journal = %q, want []", contentText(t, contents))
	}

	h = NewHandler("", nil, nil, fakeAttempts{entries: []journal.Entry{{ID: 1, Tool: "fix_code", State: "waiting"}}})
	contents, _ = h.HandleRetryAttempts(context.Background(), readReq("retry:///attempts"))
	if !strings.Contains(contentText(t, contents), `"tool": "fix_code"`) {
		t.Errorf("attempts = %s", contentText(t, contents))
	}

	h = NewHandler("", nil, nil, fakeAttempts{err: errors.New("db closed")})
	if _, err := h.HandleRetryAttempts(context.Background(), readReq("retry:///attempts")); err == nil {
		t.Error("journal error should propagate")
	}
}
