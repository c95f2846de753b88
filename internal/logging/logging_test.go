package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Output: &buf, NoColor: true})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("retry scheduled", "tool", "fix_code")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(out, "retry scheduled") || !strings.Contains(out, "tool=fix_code") {
		t.Errorf("console output = %q", out)
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Output: &buf, Debug: true, NoColor: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("attempt started")
	if !strings.Contains(buf.String(), "attempt started") {
		t.Errorf("debug record missing: %q", buf.String())
	}
}

func TestNew_FileTee(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "vibeteam.log")

	logger, closer, err := New(Options{Output: &buf, File: path, NoColor: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.With("session", "abc").Warn("tool call failed", "attempts", 3)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "tool call failed") {
		t.Errorf("console missing record: %q", buf.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("file line is not JSON: %q", data)
	}
	if rec["msg"] != "tool call failed" || rec["session"] != "abc" || rec["attempts"] != float64(3) {
		t.Errorf("file record = %v", rec)
	}
}
