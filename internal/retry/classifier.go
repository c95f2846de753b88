// Package retry implements the failure-classification and backoff engine
// that wraps every retry-eligible tool invocation.
//
// The pieces are layered leaf-first: a Classifier maps an error message to
// a Category, ComputeDelay turns (attempt, category, policy) into a wait,
// Statistics accumulates outcomes, and Pipeline drives one invocation
// through the attempt/wait/retry state machine.
package retry

import "strings"

// Category groups error signatures by how they should be retried.
type Category int

const (
	CategoryNonRetryable Category = iota
	CategoryQuotaLimit
	CategoryOverloadQueued
	CategoryTransient
)

// String returns the category's wire name.
func (c Category) String() string {
	switch c {
	case CategoryQuotaLimit:
		return "quota-limit"
	case CategoryOverloadQueued:
		return "overload-queued"
	case CategoryTransient:
		return "generic-transient"
	default:
		return "non-retryable"
	}
}

// Retryable reports whether errors of this category are retried at all.
func (c Category) Retryable() bool {
	return c != CategoryNonRetryable
}

// Multiplier scales the exponential delay for this category. Quota limits
// take longer to clear; overloaded or queued requests clear faster.
func (c Category) Multiplier() float64 {
	switch c {
	case CategoryQuotaLimit:
		return 1.5
	case CategoryOverloadQueued:
		return 0.75
	default:
		return 1.0
	}
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Signature is one (pattern, category) row of the classification table.
type Signature struct {
	Pattern  string
	Category Category
}

// defaultSignatures is scanned in order and the first match wins, so more
// specific signatures come before the generic ones they overlap with.
var defaultSignatures = []Signature{
	// Quota and limit signatures.
	{"usage limit", CategoryQuotaLimit},
	{"usage quota", CategoryQuotaLimit},
	{"quota exceeded", CategoryQuotaLimit},
	{"rate limit", CategoryQuotaLimit},
	{"rate_limit_error", CategoryQuotaLimit},
	{"too many requests", CategoryQuotaLimit},
	{"monthly limit exceeded", CategoryQuotaLimit},
	{"daily limit exceeded", CategoryQuotaLimit},
	{"credit limit", CategoryQuotaLimit},
	{"tokens per minute", CategoryQuotaLimit},
	{"requests per minute", CategoryQuotaLimit},

	// Provider overload signatures.
	{"model overloaded", CategoryOverloadQueued},
	{"overloaded_error", CategoryOverloadQueued},
	{"is overloaded", CategoryOverloadQueued},
	{"currently overloaded", CategoryOverloadQueued},
	{"request queued", CategoryOverloadQueued},
	{"queued due to", CategoryOverloadQueued},

	// HTTP status signatures.
	{"429", CategoryTransient},
	{"502", CategoryTransient},
	{"503", CategoryTransient},
	{"504", CategoryTransient},
	{"524", CategoryTransient},
	{"529", CategoryTransient},

	// Network and timeout signatures.
	{"timeout", CategoryTransient},
	{"timed out", CategoryTransient},
	{"connection error", CategoryTransient},
	{"connection reset", CategoryTransient},
	{"connection refused", CategoryTransient},
	{"network error", CategoryTransient},
	{"ssl error", CategoryTransient},
	{"temporary failure", CategoryTransient},

	// Generic server-error signatures.
	{"internal server error", CategoryTransient},
	{"bad gateway", CategoryTransient},
	{"gateway timeout", CategoryTransient},
	{"service unavailable", CategoryTransient},
	{"service temporarily unavailable", CategoryTransient},
}

// DefaultSignatures returns a copy of the built-in classification table.
func DefaultSignatures() []Signature {
	out := make([]Signature, len(defaultSignatures))
	copy(out, defaultSignatures)
	return out
}

// Classification is the result of classifying one error message.
type Classification struct {
	Retryable bool     `json:"retryable"`
	Category  Category `json:"category"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Classifier matches error messages against an ordered, immutable table.
type Classifier struct {
	table []Signature
}

// NewClassifier builds a classifier over the given table. With no
// signatures it uses the built-in table. Patterns are matched
// case-insensitively; empty patterns are dropped.
func NewClassifier(signatures ...Signature) *Classifier {
	if len(signatures) == 0 {
		signatures = defaultSignatures
	}
	table := make([]Signature, 0, len(signatures))
	for _, s := range signatures {
		p := strings.ToLower(strings.TrimSpace(s.Pattern))
		if p == "" {
			continue
		}
		table = append(table, Signature{Pattern: p, Category: s.Category})
	}
	return &Classifier{table: table}
}

// Classify returns the first signature contained in message. A matching
// non-retryable row stops the scan, so custom tables can veto later rows.
// No match yields a non-retryable classification with an empty pattern.
func (c *Classifier) Classify(message string) Classification {
	lower := strings.ToLower(message)
	for _, s := range c.table {
		if strings.Contains(lower, s.Pattern) {
			return Classification{Retryable: s.Category.Retryable(), Category: s.Category, Pattern: s.Pattern}
		}
	}
	return Classification{Category: CategoryNonRetryable}
}

// Signatures returns a copy of the classifier's table in scan order.
func (c *Classifier) Signatures() []Signature {
	out := make([]Signature, len(c.table))
	copy(out, c.table)
	return out
}
