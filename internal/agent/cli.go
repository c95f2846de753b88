package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CLIBackend runs an agent CLI as a child process: `<Command> <Args...> -p <prompt>`.
type CLIBackend struct {
	Command string
	Args    []string
	// Env is appended to the inherited environment.
	Env []string
	// Dir is used when a task has no working directory.
	Dir string
}

// NewCLIBackend creates a backend for the given command.
func NewCLIBackend(command, dir string, args ...string) *CLIBackend {
	return &CLIBackend{Command: command, Args: args, Dir: dir}
}

// Run executes the task and returns trimmed stdout. On failure the error
// carries the CLI's stderr, falling back to stdout and then the exit status.
func (b *CLIBackend) Run(ctx context.Context, task Task) (string, error) {
	if strings.TrimSpace(task.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	args := append(append([]string(nil), b.Args...), "-p", task.Prompt)
	cmd := exec.CommandContext(ctx, b.Command, args...) // #nosec G204 -- command comes from operator config
	cmd.Dir = b.Dir
	if task.WorkingDirectory != "" {
		cmd.Dir = task.WorkingDirectory
	}
	if len(b.Env) > 0 {
		cmd.Env = append(cmd.Environ(), b.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err == nil {
		return out, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("agent: %s not found in PATH: %w", b.Command, err)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("agent: %s interrupted: %w", b.Command, ctx.Err())
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = out
	}
	if msg == "" {
		msg = err.Error()
	}
	return "", errors.New(msg)
}
