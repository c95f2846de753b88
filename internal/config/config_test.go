package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vibeteam.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- Default ---

func TestDefault_Values(t *testing.T) {
	cfg := Default()

	if cfg.Transport != TransportStdio {
		t.Errorf("Transport = %s, want stdio", cfg.Transport)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %s, want claude", cfg.Agent.Command)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}

	want := retry.DefaultPolicy()
	if got := cfg.Policy(); got != want {
		t.Errorf("Policy() = %+v, want %+v", got, want)
	}
}

// --- Layering ---

func TestLoad_YAMLFile(t *testing.T) {
	path := writeYAML(t, `
transport: tcp
port: 9000
retry:
  max_attempts: 5
  base_delay: 1.5
  max_delay: 30
`)
	cfg, err := Load(LoadOptions{File: path, Lookup: envMap(nil)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportTCP || cfg.Port != 9000 {
		t.Errorf("transport/port = %s/%d", cfg.Transport, cfg.Port)
	}
	p := cfg.Policy()
	if p.MaxAttempts != 5 || p.BaseDelay != 1500*time.Millisecond || p.MaxDelay != 30*time.Second {
		t.Errorf("policy = %+v", p)
	}
	// Unset keys keep their defaults.
	if p.ExponentialBase != 2.0 || !cfg.Retry.Enabled {
		t.Errorf("defaults lost: %+v", cfg.Retry)
	}
}

func TestLoad_YAMLExpandsEnv(t *testing.T) {
	t.Setenv("VIBETEAM_TEST_DIR", "/srv/work")
	path := writeYAML(t, "working_directory: ${VIBETEAM_TEST_DIR}/repo\n")

	cfg, err := Load(LoadOptions{File: path, Lookup: envMap(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkingDirectory != "/srv/work/repo" {
		t.Errorf("WorkingDirectory = %s", cfg.WorkingDirectory)
	}
}

func TestLoad_YAMLUnknownKeyRejected(t *testing.T) {
	path := writeYAML(t, "transprot: tcp\n")
	_, err := Load(LoadOptions{File: path, Lookup: envMap(nil)})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml"), Lookup: envMap(nil)})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "port: 9000\nretry:\n  max_attempts: 5\n")
	cfg, err := Load(LoadOptions{
		File: path,
		Lookup: envMap(map[string]string{
			"VIBETEAM_PORT":       "9100",
			"TEAM_RETRY_ATTEMPTS": "7",
			"VIBETEAM_DEBUG":      "true",
			"TEAM_WORKING_DIR":    "/legacy",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Port)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Retry.MaxAttempts)
	}
	if !cfg.Debug {
		t.Error("Debug should be set from env")
	}
	if cfg.WorkingDirectory != "/legacy" {
		t.Errorf("WorkingDirectory = %s", cfg.WorkingDirectory)
	}
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	cfg, err := Load(LoadOptions{Lookup: envMap(map[string]string{
		"TEAM_WORKING_DIR":     "/legacy",
		"VIBETEAM_WORKING_DIR": "/current",
	})})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkingDirectory != "/current" {
		t.Errorf("WorkingDirectory = %s, want /current", cfg.WorkingDirectory)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := Load(LoadOptions{Lookup: envMap(map[string]string{"VIBETEAM_PORT": "eighty"})})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--port", "9200", "--retry=false"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{
		Lookup: envMap(map[string]string{"VIBETEAM_PORT": "9100", "VIBETEAM_TRANSPORT": "tcp"}),
		Flags:  fs,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want 9200 (flag)", cfg.Port)
	}
	// Unchanged flags do not clobber env.
	if cfg.Transport != TransportTCP {
		t.Errorf("Transport = %s, want tcp (env)", cfg.Transport)
	}
	if got := cfg.Policy().MaxAttempts; got != 1 {
		t.Errorf("MaxAttempts with retry disabled = %d, want 1", got)
	}
}

// --- Validate ---

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad transport", func(c *Config) { c.Transport = "http" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"empty dir", func(c *Config) { c.WorkingDirectory = "" }},
		{"empty agent", func(c *Config) { c.Agent.Command = "" }},
		{"max below base", func(c *Config) { c.Retry.BaseDelay = 60; c.Retry.MaxDelay = 10 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"jitter one", func(c *Config) { c.Retry.Jitter = 1 }},
		{"base one", func(c *Config) { c.Retry.ExponentialBase = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidate_PolicyErrorKeepsCause(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxDelay = 1
	if err := cfg.Validate(); !errors.Is(err, retry.ErrInvalidPolicy) {
		t.Errorf("Validate() = %v, want ErrInvalidPolicy in chain", err)
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Host = "0.0.0.0"
	cfg.Port = 9999
	if got := cfg.Addr(); got != "0.0.0.0:9999" {
		t.Errorf("Addr() = %s", got)
	}
}
