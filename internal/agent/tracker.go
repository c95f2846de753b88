package agent

import (
	"context"
	"sync"
	"time"
)

// Status is a point-in-time view of backend activity.
type Status struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Running   int       `json:"running"`
	LastKind  Kind      `json:"last_kind,omitempty"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Tracker wraps a Backend and records activity for the agent status resource.
type Tracker struct {
	backend Backend
	now     func() time.Time

	mu     sync.Mutex
	status Status
}

// NewTracker wraps b.
func NewTracker(b Backend) *Tracker {
	return &Tracker{backend: b, now: time.Now}
}

// Run implements Backend.
func (t *Tracker) Run(ctx context.Context, task Task) (string, error) {
	t.mu.Lock()
	t.status.Running++
	t.status.LastKind = task.Kind
	t.status.LastRun = t.now()
	t.mu.Unlock()

	out, err := t.backend.Run(ctx, task)

	t.mu.Lock()
	t.status.Running--
	t.status.Runs++
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	}
	t.mu.Unlock()
	return out, err
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
