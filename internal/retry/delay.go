package retry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidPolicy is wrapped by Policy.Validate failures.
var ErrInvalidPolicy = errors.New("retry: invalid policy")

// Policy is the immutable retry configuration owned by a Pipeline.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	// JitterFraction is the symmetric jitter range, in [0, 1).
	JitterFraction float64
}

// DefaultPolicy returns 3 attempts, 60s base delay, 1h cap, doubling, ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       60 * time.Second,
		MaxDelay:        time.Hour,
		ExponentialBase: 2.0,
		JitterFraction:  0.25,
	}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	case p.BaseDelay <= 0:
		return fmt.Errorf("%w: base delay must be > 0, got %s", ErrInvalidPolicy, p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidPolicy, p.MaxDelay, p.BaseDelay)
	case !(p.ExponentialBase > 1):
		return fmt.Errorf("%w: exponential base must be > 1, got %g", ErrInvalidPolicy, p.ExponentialBase)
	case p.JitterFraction < 0 || p.JitterFraction >= 1:
		return fmt.Errorf("%w: jitter fraction must be in [0,1), got %g", ErrInvalidPolicy, p.JitterFraction)
	}
	return nil
}

// ComputeDelay returns the wait before the retry that follows the given
// failed attempt:
//
//	clamp(base * exp^(attempt-1) * multiplier, maxDelay) * (1 ± jitter)
//
// re-clamped to [0, maxDelay]. rnd returns a uniform value in [0, 1); a
// nil rnd or zero jitter fraction disables jitter. Attempts below 1 wait 0.
func ComputeDelay(attempt int, category Category, policy Policy, rnd func() float64) time.Duration {
	if attempt < 1 {
		return 0
	}
	maxDelay := float64(policy.MaxDelay)

	delay := float64(policy.BaseDelay) * math.Pow(policy.ExponentialBase, float64(attempt-1))
	delay *= category.Multiplier()
	delay = math.Min(delay, maxDelay)

	if policy.JitterFraction > 0 && rnd != nil {
		offset := (rnd()*2 - 1) * policy.JitterFraction
		delay *= 1 + offset
	}

	if math.IsNaN(delay) || delay < 0 {
		return 0
	}
	return time.Duration(math.Min(delay, maxDelay))
}

// FormatDuration renders a wait the way retry log lines show it:
// seconds under a minute, minutes under an hour, hours otherwise.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fh", seconds/3600)
	}
}
