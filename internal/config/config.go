// Package config assembles the server configuration from defaults, an
// optional YAML file, the environment and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// ErrInvalid marks a configuration that cannot be started.
var ErrInvalid = errors.New("config: invalid configuration")

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportTCP   = "tcp"
)

// Config is the full server configuration.
type Config struct {
	Transport        string      `yaml:"transport"`
	Host             string      `yaml:"host"`
	Port             int         `yaml:"port"`
	WorkingDirectory string      `yaml:"working_directory"`
	Debug            bool        `yaml:"debug"`
	LogFile          string      `yaml:"log_file"`
	MetricsAddr      string      `yaml:"metrics_addr"`
	Retry            RetryConfig `yaml:"retry"`
	Agent            AgentConfig `yaml:"agent"`
}

// RetryConfig holds the retry policy knobs. Delays are in seconds.
type RetryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelay       float64 `yaml:"base_delay"`
	MaxDelay        float64 `yaml:"max_delay"`
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          float64 `yaml:"jitter"`
}

// AgentConfig selects the external agent command.
type AgentConfig struct {
	Command string `yaml:"command"`
}

// Default returns the built-in configuration.
func Default() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Config{
		Transport:        TransportStdio,
		Host:             "127.0.0.1",
		Port:             8080,
		WorkingDirectory: wd,
		Retry: RetryConfig{
			Enabled:         true,
			MaxAttempts:     3,
			BaseDelay:       60,
			MaxDelay:        3600,
			ExponentialBase: 2.0,
			Jitter:          0.25,
		},
		Agent: AgentConfig{Command: "claude"},
	}
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is an optional YAML file. Empty means none.
	File string
	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
	// Flags, when set, are applied last. Only flags the user changed count.
	Flags *pflag.FlagSet
}

// Load builds a configuration and validates it.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.mergeFile(opts.File); err != nil {
			return Config{}, err
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, err
	}

	if opts.Flags != nil {
		if err := cfg.mergeFlags(opts.Flags); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.UnmarshalStrict([]byte(expanded), c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return nil
}

type envBinding struct {
	names []string
	set   func(c *Config, v string) error
}

var envBindings = []envBinding{
	{[]string{"VIBETEAM_TRANSPORT"}, func(c *Config, v string) error { c.Transport = v; return nil }},
	{[]string{"VIBETEAM_HOST"}, func(c *Config, v string) error { c.Host = v; return nil }},
	{[]string{"VIBETEAM_PORT"}, func(c *Config, v string) error { return setInt(&c.Port, v) }},
	{[]string{"TEAM_WORKING_DIR", "VIBETEAM_WORKING_DIR"}, func(c *Config, v string) error { c.WorkingDirectory = v; return nil }},
	{[]string{"VIBETEAM_RETRY"}, func(c *Config, v string) error { return setBool(&c.Retry.Enabled, v) }},
	{[]string{"TEAM_RETRY_ATTEMPTS", "VIBETEAM_RETRY_ATTEMPTS"}, func(c *Config, v string) error { return setInt(&c.Retry.MaxAttempts, v) }},
	{[]string{"VIBETEAM_BASE_DELAY"}, func(c *Config, v string) error { return setFloat(&c.Retry.BaseDelay, v) }},
	{[]string{"VIBETEAM_MAX_DELAY"}, func(c *Config, v string) error { return setFloat(&c.Retry.MaxDelay, v) }},
	{[]string{"VIBETEAM_DEBUG"}, func(c *Config, v string) error { return setBool(&c.Debug, v) }},
	{[]string{"VIBETEAM_LOG_FILE"}, func(c *Config, v string) error { c.LogFile = v; return nil }},
	{[]string{"VIBETEAM_METRICS_ADDR"}, func(c *Config, v string) error { c.MetricsAddr = v; return nil }},
	{[]string{"VIBETEAM_AGENT_COMMAND"}, func(c *Config, v string) error { c.Agent.Command = v; return nil }},
}

// mergeEnv applies environment overrides. When several names map to the
// same key, later names win.
func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		for _, name := range b.names {
			v, ok := lookup(name)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if err := b.set(c, strings.TrimSpace(v)); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
			}
		}
	}
	return nil
}

// Flag names.
const (
	FlagConfig          = "config"
	FlagTransport       = "transport"
	FlagHost            = "host"
	FlagPort            = "port"
	FlagDir             = "dir"
	FlagRetry           = "retry"
	FlagMaxAttempts     = "max-attempts"
	FlagBaseDelay       = "base-delay"
	FlagMaxDelay        = "max-delay"
	FlagExponentialBase = "exponential-base"
	FlagJitter          = "jitter"
	FlagDebug           = "debug"
	FlagLogFile         = "log-file"
	FlagMetricsAddr     = "metrics-addr"
	FlagAgentCommand    = "agent-command"
)

// RegisterFlags declares every configuration flag on fs. Defaults shown in
// help text come from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "optional YAML configuration file")
	fs.String(FlagTransport, d.Transport, "transport mode: stdio or tcp")
	fs.String(FlagHost, d.Host, "TCP listen host")
	fs.Int(FlagPort, d.Port, "TCP listen port")
	fs.String(FlagDir, "", "working directory for agent tasks (default: current directory)")
	fs.Bool(FlagRetry, d.Retry.Enabled, "retry transient failures")
	fs.Int(FlagMaxAttempts, d.Retry.MaxAttempts, "maximum attempts per invocation")
	fs.Float64(FlagBaseDelay, d.Retry.BaseDelay, "base retry delay in seconds")
	fs.Float64(FlagMaxDelay, d.Retry.MaxDelay, "maximum retry delay in seconds")
	fs.Float64(FlagExponentialBase, d.Retry.ExponentialBase, "backoff growth factor")
	fs.Float64(FlagJitter, d.Retry.Jitter, "jitter fraction in [0, 1)")
	fs.Bool(FlagDebug, false, "enable debug logging")
	fs.String(FlagLogFile, "", "also write JSON logs to this rotating file")
	fs.String(FlagMetricsAddr, "", "serve /metrics and /health on this address")
	fs.String(FlagAgentCommand, d.Agent.Command, "agent CLI command")
}

func (c *Config) mergeFlags(fs *pflag.FlagSet) error {
	var errs []error
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}
	str := func(name string, dst *string) {
		if changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if changed(name) {
			v, err := fs.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if changed(name) {
			v, err := fs.GetFloat64(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if changed(name) {
			v, err := fs.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str(FlagTransport, &c.Transport)
	str(FlagHost, &c.Host)
	integer(FlagPort, &c.Port)
	str(FlagDir, &c.WorkingDirectory)
	boolean(FlagRetry, &c.Retry.Enabled)
	integer(FlagMaxAttempts, &c.Retry.MaxAttempts)
	float(FlagBaseDelay, &c.Retry.BaseDelay)
	float(FlagMaxDelay, &c.Retry.MaxDelay)
	float(FlagExponentialBase, &c.Retry.ExponentialBase)
	float(FlagJitter, &c.Retry.Jitter)
	boolean(FlagDebug, &c.Debug)
	str(FlagLogFile, &c.LogFile)
	str(FlagMetricsAddr, &c.MetricsAddr)
	str(FlagAgentCommand, &c.Agent.Command)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: flags: %w", err)
	}
	return nil
}

// Validate reports the first problem as an ErrInvalid.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportTCP:
	default:
		return fmt.Errorf("%w: transport must be %q or %q, got %q", ErrInvalid, TransportStdio, TransportTCP, c.Transport)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be in 1..65535, got %d", ErrInvalid, c.Port)
	}
	if c.WorkingDirectory == "" {
		return fmt.Errorf("%w: working directory is empty", ErrInvalid)
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("%w: agent command is empty", ErrInvalid)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Policy derives the retry policy. With retry disabled every invocation gets
// exactly one attempt.
func (c Config) Policy() retry.Policy {
	p := retry.Policy{
		MaxAttempts:     c.Retry.MaxAttempts,
		BaseDelay:       seconds(c.Retry.BaseDelay),
		MaxDelay:        seconds(c.Retry.MaxDelay),
		ExponentialBase: c.Retry.ExponentialBase,
		JitterFraction:  c.Retry.Jitter,
	}
	if !c.Retry.Enabled {
		p.MaxAttempts = 1
	}
	return p
}

// Addr is the TCP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
