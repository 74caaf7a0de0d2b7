// Package scanjob defines the ScanJob entity and its lifecycle.
package scanjob

import (
	"encoding/json"
	"time"

	"github.com/a11yscan/grid/pkg/domain/shared"
)

const (
	// DefaultMaxRetries is the retry budget for a new job.
	DefaultMaxRetries = 3

	// DefaultPriority is used when the caller does not specify one.
	DefaultPriority = 50

	// MinPriority and MaxPriority bound the accepted priority range.
	MinPriority = 0
	MaxPriority = 100
)

// Status represents the lifecycle state of a scan job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScanning  Status = "scanning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the unit of crawl work: one domain to scan at a priority.
//
// Lifecycle: pending → scanning → completed, or pending → scanning →
// pending → … → failed once the retry budget is spent. Terminal jobs
// are never mutated again.
type Job struct {
	ID shared.ID

	// Immutable attributes.
	Domain     string
	Priority   int
	MaxRetries int

	Status  Status
	Retries int

	// NodeID is set on dispatch and retained as provenance; it is not
	// cleared on completion.
	NodeID *string

	// NotBefore delays re-dispatch after a retriable failure. Zero
	// means immediately eligible.
	NotBefore time.Time

	// Result is opaque to the scheduler.
	Result       json.RawMessage
	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// New creates a pending job for the given domain.
func New(domain string, priority int) (*Job, error) {
	if domain == "" {
		return nil, shared.NewDomainError("VALIDATION", "domain is required", shared.ErrValidation)
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, shared.NewDomainError("VALIDATION", "priority must be in 0-100", shared.ErrValidation)
	}

	return &Job{
		ID:         shared.NewID(),
		Domain:     domain,
		Priority:   priority,
		MaxRetries: DefaultMaxRetries,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}, nil
}

// IsTerminal reports whether the job reached a state with no further
// transitions.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Eligible reports whether the job can be dispatched at the given time.
func (j *Job) Eligible(now time.Time) bool {
	return j.Status == StatusPending && !now.Before(j.NotBefore)
}

// Start transitions the job from pending to scanning under the given node.
func (j *Job) Start(nodeID string) error {
	if j.Status != StatusPending {
		return shared.NewDomainError("TRANSITION", "job is not pending", shared.ErrInvalidTransition)
	}
	now := time.Now()
	j.Status = StatusScanning
	j.NodeID = &nodeID
	j.StartedAt = &now
	return nil
}

// Release undoes a dispatch: the job returns from scanning to pending
// without consuming a retry. Used when assignment cannot proceed after
// the claim, so an aborted hand-out does not burn the retry budget.
func (j *Job) Release() error {
	if j.Status != StatusScanning {
		return shared.NewDomainError("TRANSITION", "job is not scanning", shared.ErrInvalidTransition)
	}
	j.Status = StatusPending
	j.NodeID = nil
	j.StartedAt = nil
	return nil
}

// Complete transitions the job from scanning to completed and attaches
// the opaque result payload.
func (j *Job) Complete(result json.RawMessage) error {
	if j.Status != StatusScanning {
		return shared.NewDomainError("TRANSITION", "job is not scanning", shared.ErrInvalidTransition)
	}
	now := time.Now()
	j.Status = StatusCompleted
	j.Result = result
	j.CompletedAt = &now
	return nil
}

// Fail records a failed attempt. While the retry counter stays below
// MaxRetries the job returns to pending (optionally delayed by backoff)
// and remains eligible for dispatch; once the budget is spent it
// transitions to failed with the error message attached.
//
// Returns true when the failure was absorbed as a retry.
func (j *Job) Fail(errorMessage string, backoff time.Duration) (retried bool, err error) {
	if j.IsTerminal() {
		return false, shared.NewDomainError("TRANSITION", "job is terminal", shared.ErrInvalidTransition)
	}

	j.Retries++
	if j.Retries < j.MaxRetries {
		j.Status = StatusPending
		if backoff > 0 {
			j.NotBefore = time.Now().Add(backoff)
		}
		return true, nil
	}

	now := time.Now()
	j.Status = StatusFailed
	j.ErrorMessage = errorMessage
	j.CompletedAt = &now
	return false, nil
}
