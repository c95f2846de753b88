package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// State is a position in the per-invocation state machine.
type State int

const (
	StateRunning State = iota
	StateWaiting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Event is emitted on every state transition of an invocation. Waiting
// events describe one retry attempt: the failed attempt number, the
// matched signature and the delay about to be applied.
type Event struct {
	InvocationID string
	Name         string
	State        State
	Attempt      int
	MaxAttempts  int
	Error        string
	Category     Category
	Pattern      string
	Delay        time.Duration
	Time         time.Time
}

// Observer receives pipeline events. Observers run synchronously on the
// invoking goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// UnitFunc is one attempt at the unit of work.
type UnitFunc func(ctx context.Context) (any, error)

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Failure is the terminal error of an invocation that did not succeed.
type Failure struct {
	Name      string
	Attempts  int
	LastError string
	Category  Category
	Pattern   string
	Retryable bool
	// Exhausted is set when the last error was retryable but no attempts remained.
	Exhausted bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Exhausted {
		return fmt.Sprintf("%s: still failing after %d attempts (%s, pattern %q): %s",
			f.Name, f.Attempts, f.Category, f.Pattern, f.LastError)
	}
	return fmt.Sprintf("%s: failed after %d attempt(s): %s", f.Name, f.Attempts, f.LastError)
}

func (f *Failure) Unwrap() error { return f.Err }

// Pipeline drives invocations through attempt, backoff and retry.
type Pipeline struct {
	policy     Policy
	classifier *Classifier
	stats      *Statistics
	observers  []Observer
	sleep      Sleeper
	jitter     func() float64
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier replaces the built-in classification table.
func WithClassifier(c *Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithStatistics shares an existing aggregator with the pipeline.
func WithStatistics(s *Statistics) Option {
	return func(p *Pipeline) { p.stats = s }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithJitter sets the uniform [0,1) source used for jitter.
func WithJitter(rnd func() float64) Option {
	return func(p *Pipeline) { p.jitter = rnd }
}

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline for the given policy. The policy is not
// validated here; config.Validate rejects bad policies at startup.
func New(policy Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		policy: policy,
		sleep:  sleepContext,
		jitter: rand.New(rand.NewSource(time.Now().UnixNano())).Float64,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.classifier == nil {
		p.classifier = NewClassifier()
	}
	if p.stats == nil {
		p.stats = NewStatistics()
	}
	return p
}

// Policy returns the pipeline's retry policy.
func (p *Pipeline) Policy() Policy { return p.policy }

// Statistics returns the aggregator owned by the pipeline.
func (p *Pipeline) Statistics() *Statistics { return p.stats }

// Classifier returns the classification table in use.
func (p *Pipeline) Classifier() *Classifier { return p.classifier }

// Execute runs unit until it succeeds, fails with a non-retryable error,
// or exhausts the policy's attempts. Failures are returned as *Failure.
func (p *Pipeline) Execute(ctx context.Context, name string, unit UnitFunc) (any, error) {
	id := p.newID()
	maxAttempts := max(p.policy.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		p.emit(Event{InvocationID: id, Name: name, State: StateRunning, Attempt: attempt, MaxAttempts: maxAttempts})
		p.stats.recordAttempt()

		result, err := unit(ctx)
		if err == nil {
			p.stats.recordOutcome(true, attempt)
			p.emit(Event{InvocationID: id, Name: name, State: StateSucceeded, Attempt: attempt, MaxAttempts: maxAttempts})
			return result, nil
		}

		msg := err.Error()
		c := p.classifier.Classify(msg)
		if !c.Retryable || attempt >= maxAttempts {
			return nil, p.fail(id, name, attempt, maxAttempts, c, err)
		}

		delay := ComputeDelay(attempt, c.Category, p.policy, p.jitter)
		p.stats.recordRetry(c.Pattern)
		p.emit(Event{
			InvocationID: id,
			Name:         name,
			State:        StateWaiting,
			Attempt:      attempt,
			MaxAttempts:  maxAttempts,
			Error:        msg,
			Category:     c.Category,
			Pattern:      c.Pattern,
			Delay:        delay,
		})

		if err := p.sleep(ctx, delay); err != nil {
			return nil, p.fail(id, name, attempt, maxAttempts, c, fmt.Errorf("backoff interrupted: %w", err))
		}
	}
}

func (p *Pipeline) fail(id, name string, attempt, maxAttempts int, c Classification, err error) *Failure {
	p.stats.recordOutcome(false, attempt)
	f := &Failure{
		Name:      name,
		Attempts:  attempt,
		LastError: err.Error(),
		Category:  c.Category,
		Pattern:   c.Pattern,
		Retryable: c.Retryable,
		Exhausted: c.Retryable && attempt >= maxAttempts,
		Err:       err,
	}
	p.emit(Event{
		InvocationID: id,
		Name:         name,
		State:        StateFailed,
		Attempt:      attempt,
		MaxAttempts:  maxAttempts,
		Error:        f.LastError,
		Category:     c.Category,
		Pattern:      c.Pattern,
	})
	return f
}

func (p *Pipeline) emit(ev Event) {
	ev.Time = p.now()
	p.log(ev)
	for _, o := range p.observers {
		o.Observe(ev)
	}
}

func (p *Pipeline) log(ev Event) {
	attrs := []any{
		"tool", ev.Name,
		"invocation", ev.InvocationID,
		"attempt", ev.Attempt,
		"max_attempts", ev.MaxAttempts,
	}
	switch ev.State {
	case StateRunning:
		p.logger.Debug("attempt started", attrs...)
	case StateSucceeded:
		p.logger.Debug("invocation succeeded", attrs...)
	case StateWaiting:
		p.logger.Warn("retryable error, backing off",
			append(attrs,
				"category", ev.Category.String(),
				"pattern", ev.Pattern,
				"delay", FormatDuration(ev.Delay),
				"error", ev.Error,
			)...)
	case StateFailed:
		p.logger.Error("invocation failed",
			append(attrs,
				"category", ev.Category.String(),
				"pattern", ev.Pattern,
				"error", ev.Error,
			)...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
