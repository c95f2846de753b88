// Package agent runs units of coding work against an AI backend.
//
// The rest of the server only sees the Backend interface: a task goes in,
// output text or an error comes out. Error messages are passed through
// untouched so the retry classifier can read upstream signatures.
package agent

import (
	"context"
	"errors"
)

// Kind identifies the kind of work a task asks for.
type Kind string

const (
	KindExecute  Kind = "execute_task"
	KindReview   Kind = "review_code"
	KindGenerate Kind = "generate_code"
	KindFix      Kind = "fix_code"
	KindTests    Kind = "write_tests"
	KindManage   Kind = "manage_project"
	KindWorkflow Kind = "workflow_task"
)

// Task is one unit of work for a backend.
type Task struct {
	Kind             Kind
	Prompt           string
	WorkingDirectory string
}

// ErrEmptyPrompt is returned for tasks without a prompt.
var ErrEmptyPrompt = errors.New("agent: empty prompt")

// Backend attempts a single task. Implementations must not retry.
type Backend interface {
	Run(ctx context.Context, task Task) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, task Task) (string, error)

// Run calls f(ctx, task).
func (f BackendFunc) Run(ctx context.Context, task Task) (string, error) { return f(ctx, task) }
