package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/yairfalse/suoja/types"
)

// Options configure driver behavior
type Options struct {
	// MaxConcurrency bounds parallel provider calls to respect the
	// provider's rate limits
	MaxConcurrency int           `json:"max_concurrency"`
	MaxAttempts    int           `json:"max_attempts"`
	BaseBackoff    time.Duration `json:"base_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
}

// DefaultOptions returns the driver defaults
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 4,
		MaxAttempts:    3,
		BaseBackoff:    200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaults.MaxConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaults.MaxAttempts
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = defaults.BaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaults.MaxBackoff
	}
	return o
}

// OpStatus tracks one operation through the driver
type OpStatus string

const (
	StatusPending        OpStatus = "pending"
	StatusApplied        OpStatus = "applied"
	StatusFailedTerminal OpStatus = "failed_terminal"
	StatusSkipped        OpStatus = "skipped"
)

// Report is the convergence result for one run. Workers write to it
// concurrently; the mutex is the single serialization point.
type Report struct {
	mu sync.Mutex

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	Applied []string                   `json:"applied"`
	Failed  map[string]types.ErrorKind `json:"failed"`
	Skipped []string                   `json:"skipped"`
	// Retries counts retry attempts per resource, for diagnostics
	Retries map[string]int `json:"retries,omitempty"`
}

func newReport() *Report {
	return &Report{
		StartTime: time.Now(),
		Applied:   []string{},
		Failed:    make(map[string]types.ErrorKind),
		Skipped:   []string{},
		Retries:   make(map[string]int),
	}
}

func (r *Report) recordApplied(resourceID string, retries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Applied = append(r.Applied, resourceID)
	if retries > 0 {
		r.Retries[resourceID] = retries
	}
}

func (r *Report) recordFailed(resourceID string, kind types.ErrorKind, retries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[resourceID] = kind
	if retries > 0 {
		r.Retries[resourceID] = retries
	}
}

func (r *Report) recordSkipped(resourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, resourceID)
}

func (r *Report) finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	// Workers append out of order; sort for reproducible output
	sort.Strings(r.Applied)
	sort.Strings(r.Skipped)
}

// AppliedCount returns the number of applied operations
func (r *Report) AppliedCount() int { return len(r.Applied) }

// FailedCount returns the number of terminally failed operations
func (r *Report) FailedCount() int { return len(r.Failed) }

// SkippedCount returns the number of operations never started
func (r *Report) SkippedCount() int { return len(r.Skipped) }

// RetryCount returns recorded retries for a resource
func (r *Report) RetryCount(resourceID string) int { return r.Retries[resourceID] }

// ExitCode is 0 iff no operation failed
func (r *Report) ExitCode() int {
	if len(r.Failed) > 0 {
		return 1
	}
	return 0
}
