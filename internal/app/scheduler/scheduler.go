// Package scheduler owns the scan job lifecycle: intake, priority
// queuing, node assignment, completion and failure handling, retry
// policy, and aggregate statistics.
//
// All state lives in one serialized store: every operation runs under a
// single mutex, so a claim is atomic and two workers can never be
// handed the same job.
package scheduler

import (
	"container/heap"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/a11yscan/grid/internal/metrics"
	"github.com/a11yscan/grid/pkg/domain/node"
	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/domain/shared"
	"github.com/a11yscan/grid/pkg/logger"
)

// ErrNoPendingJobs is returned by Claim and NextJob when no eligible
// pending job exists. Workers are expected to poll again; this is a
// normal idle condition, not a failure.
var ErrNoPendingJobs = errors.New("no pending jobs")

// Config holds scheduler tuning.
type Config struct {
	// RetryBackoff delays re-dispatch after a retriable failure.
	// Zero reproduces immediate redispatch.
	RetryBackoff time.Duration
}

// Stats is the on-demand aggregate snapshot. Counters are cumulative
// and survive backlog compaction.
type Stats struct {
	TotalJobs     int64   `json:"totalJobs"`
	PendingJobs   int64   `json:"pendingJobs"`
	CompletedJobs int64   `json:"completedJobs"`
	FailedJobs    int64   `json:"failedJobs"`
	ActiveNodes   int64   `json:"activeNodes"`
	TotalScanned  int64   `json:"totalScanned"`
	TotalErrors   int64   `json:"totalErrors"`
	ErrorRate     float64 `json:"errorRate"`
}

// Scheduler is the grid's single serialized job store.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[shared.ID]*scanjob.Job
	nodes   map[string]*node.WorkerNode
	backlog backlog
	seq     uint64

	// Cumulative counters, immune to compaction.
	created   int64
	completed int64
	failed    int64

	cfg    Config
	logger *logger.Logger
}

// New creates an empty scheduler.
func New(cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[shared.ID]*scanjob.Job),
		nodes:  make(map[string]*node.WorkerNode),
		cfg:    cfg,
		logger: log.With("component", "scheduler"),
	}
}

// RegisterNode inserts a worker node in idle state with zero counters.
// Idempotent by id: re-registering overwrites the node's state, so
// callers must use unique ids.
func (s *Scheduler) RegisterNode(id string) error {
	if id == "" {
		return shared.NewDomainError("VALIDATION", "node id is required", shared.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[id] = node.New(id)
	metrics.NodesRegistered.Set(float64(len(s.nodes)))
	s.logger.Debug("node registered", "node_id", id)
	return nil
}

// CreateJob allocates a job for the domain and inserts it into the
// priority backlog. Ordering is priority descending with FIFO
// tie-break on insertion order.
func (s *Scheduler) CreateJob(domain string, priority int) (scanjob.Job, error) {
	job, err := scanjob.New(domain, priority)
	if err != nil {
		return scanjob.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	s.seq++
	s.backlog.push(&backlogItem{job: job, seq: s.seq})
	s.created++

	metrics.JobsCreated.Inc()
	metrics.BacklogDepth.Set(float64(s.backlog.Len()))
	s.logger.Debug("job created", "job_id", job.ID, "domain", domain, "priority", priority)
	return *job, nil
}

// Job returns a snapshot of the job with the given id. Snapshots are
// value copies taken under the lock, so readers never share memory
// with lifecycle mutations.
func (s *Scheduler) Job(id shared.ID) (scanjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return scanjob.Job{}, shared.NewDomainError("NOT_FOUND", "job "+id.String(), shared.ErrNotFound)
	}
	return *job, nil
}

// NextJob returns a snapshot of the highest-priority eligible pending
// job without mutating any state, or ErrNoPendingJobs. Dispatchers
// should prefer Claim; this read-only view exists for inspection.
func (s *Scheduler) NextJob() (scanjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var best *backlogItem
	for _, item := range s.backlog {
		if !item.job.Eligible(now) {
			continue
		}
		if best == nil ||
			item.job.Priority > best.job.Priority ||
			(item.job.Priority == best.job.Priority && item.seq < best.seq) {
			best = item
		}
	}
	if best == nil {
		return scanjob.Job{}, ErrNoPendingJobs
	}
	return *best.job, nil
}

// Claim atomically finds the highest-priority eligible pending job and
// marks it scanning under the given node. The find-and-mark happens
// under one lock, so two nodes can never claim the same job. The
// returned snapshot is a value copy; the caller never shares memory
// with the store.
func (s *Scheduler) Claim(nodeID string) (scanjob.Job, error) {
	start := time.Now()
	defer func() { metrics.ClaimDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return scanjob.Job{}, shared.NewDomainError("NOT_FOUND", "node "+nodeID, shared.ErrNotFound)
	}
	if !n.IsIdle() {
		return scanjob.Job{}, shared.NewDomainError("CONFLICT", "node "+nodeID+" is not idle", shared.ErrConflict)
	}

	job := s.popEligible()
	if job == nil {
		return scanjob.Job{}, ErrNoPendingJobs
	}

	if err := job.Start(nodeID); err != nil {
		// Unreachable: popEligible only returns pending jobs.
		return scanjob.Job{}, err
	}
	n.BeginScan(job.Domain)

	metrics.JobsClaimed.Inc()
	metrics.BacklogDepth.Set(float64(s.backlog.Len()))
	s.logger.Debug("job claimed", "job_id", job.ID, "node_id", nodeID, "domain", job.Domain)
	return *job, nil
}

// Release rolls back a dispatch: the scanning job returns to the
// backlog without consuming a retry and the owning node goes idle.
// Assignment failures after a claim (no egress capacity, canceled
// pacing wait) use this so the job stays eligible.
func (s *Scheduler) Release(jobID shared.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "job "+jobID.String(), shared.ErrNotFound)
	}

	owner := job.NodeID
	if err := job.Release(); err != nil {
		return err
	}

	s.seq++
	s.backlog.push(&backlogItem{job: job, seq: s.seq})
	if n := s.ownerNode(owner); n != nil {
		n.ReleaseAfterRetry()
	}

	metrics.BacklogDepth.Set(float64(s.backlog.Len()))
	s.logger.Debug("job released", "job_id", jobID)
	return nil
}

// StartJob transitions a pending job to scanning under the given node.
// This is the two-step dispatch path; unknown ids surface NotFound
// rather than being silently ignored.
func (s *Scheduler) StartJob(jobID shared.ID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "job "+jobID.String(), shared.ErrNotFound)
	}
	n, ok := s.nodes[nodeID]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "node "+nodeID, shared.ErrNotFound)
	}
	if !n.IsIdle() {
		return shared.NewDomainError("CONFLICT", "node "+nodeID+" is not idle", shared.ErrConflict)
	}

	if err := job.Start(nodeID); err != nil {
		return err
	}
	n.BeginScan(job.Domain)
	s.removeFromBacklog(jobID)

	metrics.JobsClaimed.Inc()
	metrics.BacklogDepth.Set(float64(s.backlog.Len()))
	return nil
}

// CompleteJob finishes a scanning job with its opaque result, returns
// the owning node to idle and updates its counters.
func (s *Scheduler) CompleteJob(jobID shared.ID, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "job "+jobID.String(), shared.ErrNotFound)
	}

	owner := job.NodeID
	if err := job.Complete(result); err != nil {
		return err
	}
	s.completed++

	if n := s.ownerNode(owner); n != nil {
		n.FinishScan()
	}

	metrics.JobsCompleted.Inc()
	s.logger.Debug("job completed", "job_id", jobID, "domain", job.Domain)
	return nil
}

// FailJob records a failed attempt. Below the retry budget the job
// returns to the backlog (the retry mechanism); once the budget is
// spent it goes terminal with the error attached. Either way the
// owning node returns to idle; its error counter only moves on
// terminal failure, so absorbed retries do not skew the error rate.
//
// Returns true when the failure was absorbed as a retry.
func (s *Scheduler) FailJob(jobID shared.ID, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(jobID, errorMessage)
}

func (s *Scheduler) failLocked(jobID shared.ID, errorMessage string) (bool, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return false, shared.NewDomainError("NOT_FOUND", "job "+jobID.String(), shared.ErrNotFound)
	}

	wasScanning := job.Status == scanjob.StatusScanning
	owner := job.NodeID

	retried, err := job.Fail(errorMessage, s.cfg.RetryBackoff)
	if err != nil {
		return false, err
	}

	if retried {
		// Back into the eligible pool; a free node may pick it up
		// immediately unless backoff is configured.
		if wasScanning {
			s.seq++
			s.backlog.push(&backlogItem{job: job, seq: s.seq})
		}
		if n := s.ownerNode(owner); n != nil && wasScanning {
			n.ReleaseAfterRetry()
		}
		metrics.JobsRetried.Inc()
		metrics.BacklogDepth.Set(float64(s.backlog.Len()))
		s.logger.Debug("job retried", "job_id", jobID, "retries", job.Retries)
		return true, nil
	}

	s.failed++
	if n := s.ownerNode(owner); n != nil && wasScanning {
		n.RecordFailure()
	}
	metrics.JobsFailed.Inc()
	s.logger.Info("job failed terminally",
		"job_id", jobID,
		"domain", job.Domain,
		"retries", job.Retries,
		"error", errorMessage,
	)
	return false, nil
}

// FailStale fails every job that has been scanning longer than the
// threshold. This is the watchdog path for nodes that crashed or hung;
// the normal retry policy applies, so a stale job re-enters the backlog
// until its budget is spent.
func (s *Scheduler) FailStale(threshold time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	count := 0
	for id, job := range s.jobs {
		if job.Status != scanjob.StatusScanning {
			continue
		}
		if job.StartedAt == nil || job.StartedAt.After(cutoff) {
			continue
		}
		if _, err := s.failLocked(id, "scan exceeded watchdog threshold"); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// CompactTerminal drops terminal jobs older than the retention window
// from the job map. Cumulative stats are unaffected. Returns the number
// of jobs archived away.
func (s *Scheduler) CompactTerminal(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	count := 0
	for id, job := range s.jobs {
		if !job.IsTerminal() {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			count++
		}
	}
	return count
}

// Stats computes the aggregate snapshot on demand.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending int64
	for _, job := range s.jobs {
		if job.Status == scanjob.StatusPending {
			pending++
		}
	}

	var scanned, nodeErrors int64
	for _, n := range s.nodes {
		scanned += n.ScanCount
		nodeErrors += n.ErrorCount
	}

	rate := 0.0
	if scanned > 0 {
		rate = float64(nodeErrors) / float64(scanned)
	}

	return Stats{
		TotalJobs:     s.created,
		PendingJobs:   pending,
		CompletedJobs: s.completed,
		FailedJobs:    s.failed,
		ActiveNodes:   int64(len(s.nodes)),
		TotalScanned:  scanned,
		TotalErrors:   nodeErrors,
		ErrorRate:     rate,
	}
}

// Nodes returns a snapshot of all registered nodes.
func (s *Scheduler) Nodes() []node.WorkerNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]node.WorkerNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, *n)
	}
	return out
}

// Node returns the node with the given id.
func (s *Scheduler) Node(id string) (node.WorkerNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return node.WorkerNode{}, shared.NewDomainError("NOT_FOUND", "node "+id, shared.ErrNotFound)
	}
	return *n, nil
}

// ownerNode resolves the node recorded on a job, if any.
func (s *Scheduler) ownerNode(id *string) *node.WorkerNode {
	if id == nil {
		return nil
	}
	return s.nodes[*id]
}

// popEligible pops the best eligible pending job, lazily discarding
// entries whose jobs left the pending state through other paths.
func (s *Scheduler) popEligible() *scanjob.Job {
	now := time.Now()
	var deferred []*backlogItem

	var found *scanjob.Job
	for {
		item := s.backlog.pop()
		if item == nil {
			break
		}
		if item.job.Status != scanjob.StatusPending {
			continue // stale entry, drop
		}
		if !item.job.Eligible(now) {
			deferred = append(deferred, item)
			continue
		}
		found = item.job
		break
	}

	for _, item := range deferred {
		s.backlog.push(item)
	}
	return found
}

// removeFromBacklog drops the backlog entry for the given job id.
func (s *Scheduler) removeFromBacklog(jobID shared.ID) {
	for i, item := range s.backlog {
		if item.job.ID.Equals(jobID) {
			s.backlog[i] = s.backlog[len(s.backlog)-1]
			s.backlog = s.backlog[:len(s.backlog)-1]
			if len(s.backlog) > 0 {
				heap.Init(&s.backlog)
			}
			return
		}
	}
}
