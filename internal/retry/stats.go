package retry

import (
	"sort"
	"sync"
)

// Statistics accumulates retry outcomes across invocations for the
// lifetime of its owning Pipeline. It is never reset implicitly.
// All methods are safe for concurrent use.
type Statistics struct {
	mu                     sync.Mutex
	totalAttempts          int
	successfulInvocations  int
	failedInvocations      int
	invocationsWithRetries int
	recoveredInvocations   int
	patternFrequency       map[string]int
}

// NewStatistics returns an empty aggregator.
func NewStatistics() *Statistics {
	return &Statistics{patternFrequency: make(map[string]int)}
}

// recordAttempt counts one call of the unit of work.
func (s *Statistics) recordAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalAttempts++
}

// recordRetry counts one scheduled retry for the matched pattern.
func (s *Statistics) recordRetry(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patternFrequency[pattern]++
}

// recordOutcome counts one completed invocation.
func (s *Statistics) recordOutcome(succeeded bool, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if succeeded {
		s.successfulInvocations++
	} else {
		s.failedInvocations++
	}
	if attempts > 1 {
		s.invocationsWithRetries++
		if succeeded {
			s.recoveredInvocations++
		}
	}
}

// Summary is a point-in-time copy of the statistics.
type Summary struct {
	TotalAttempts          int            `json:"totalAttempts"`
	SuccessfulInvocations  int            `json:"successfulInvocations"`
	FailedInvocations      int            `json:"failedInvocations"`
	InvocationsWithRetries int            `json:"invocationsWithRetries"`
	RetrySuccessRate       float64        `json:"retrySuccessRate"`
	PatternFrequency       map[string]int `json:"patternFrequency"`
	MostCommonPattern      string         `json:"mostCommonPattern,omitempty"`
}

// TotalRetries is the number of scheduled retries across all patterns.
func (s Summary) TotalRetries() int {
	n := 0
	for _, c := range s.PatternFrequency {
		n += c
	}
	return n
}

// Summary returns a snapshot. RetrySuccessRate is the share of invocations
// that needed at least one retry and still succeeded.
func (s *Statistics) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{
		TotalAttempts:          s.totalAttempts,
		SuccessfulInvocations:  s.successfulInvocations,
		FailedInvocations:      s.failedInvocations,
		InvocationsWithRetries: s.invocationsWithRetries,
		PatternFrequency:       make(map[string]int, len(s.patternFrequency)),
	}
	if s.invocationsWithRetries > 0 {
		out.RetrySuccessRate = float64(s.recoveredInvocations) / float64(s.invocationsWithRetries)
	}

	patterns := make([]string, 0, len(s.patternFrequency))
	for p, c := range s.patternFrequency {
		out.PatternFrequency[p] = c
		patterns = append(patterns, p)
	}
	// Ties break alphabetically so the summary is stable.
	sort.Strings(patterns)
	best := 0
	for _, p := range patterns {
		if c := s.patternFrequency[p]; c > best {
			best = c
			out.MostCommonPattern = p
		}
	}
	return out
}
