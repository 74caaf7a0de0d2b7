// Package grid composes the scheduler, egress pool and fingerprint
// generator into the grid orchestration façade.
package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/internal/metrics"
	"github.com/a11yscan/grid/pkg/domain/egress"
	"github.com/a11yscan/grid/pkg/domain/fingerprint"
	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/domain/shared"
	"github.com/a11yscan/grid/pkg/logger"
)

// Notifier announces newly queued jobs so idle pollers can wake up
// instead of spinning. Implementations must not block.
type Notifier interface {
	JobsQueued(ctx context.Context, count int, priority int)
}

// ResultSink receives terminal job outcomes for downstream delivery
// (persistence, reporting). The scheduler itself never inspects results.
type ResultSink interface {
	JobCompleted(ctx context.Context, job *scanjob.Job) error
	JobFailed(ctx context.Context, job *scanjob.Job) error
}

// Service is the grid orchestration façade.
type Service struct {
	scheduler *scheduler.Scheduler
	pool      *egress.Pool
	prints    *fingerprint.Generator

	notifier Notifier
	results  ResultSink

	// seen records every domain ever enqueued so scheduled rescans can
	// re-queue the full set.
	seenMu sync.Mutex
	seen   map[string]struct{}

	logger *logger.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier attaches a job-queued notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithResultSink attaches a terminal-outcome sink.
func WithResultSink(r ResultSink) Option {
	return func(s *Service) { s.results = r }
}

// NewService creates the façade over explicit component instances.
// Components are injected rather than global so tests can run multiple
// isolated grids side by side.
func NewService(sched *scheduler.Scheduler, pool *egress.Pool, gen *fingerprint.Generator, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		scheduler: sched,
		pool:      pool,
		prints:    gen,
		seen:      make(map[string]struct{}),
		logger:    log.With("component", "grid"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializeGrid registers n worker nodes with sequential ids and
// returns the ids in order.
func (s *Service) InitializeGrid(n int) ([]string, error) {
	if n <= 0 {
		return nil, shared.NewDomainError("VALIDATION", "node count must be positive", shared.ErrValidation)
	}

	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("node-%d", i)
		if err := s.scheduler.RegisterNode(id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	s.logger.Info("grid initialized", "nodes", n)
	return ids, nil
}

// EnqueueDomains creates one job per domain at the given priority and
// returns the job ids in input order.
func (s *Service) EnqueueDomains(ctx context.Context, domains []string, priority int) ([]shared.ID, error) {
	ids := make([]shared.ID, 0, len(domains))
	for _, domain := range domains {
		job, err := s.scheduler.CreateJob(domain, priority)
		if err != nil {
			return nil, fmt.Errorf("enqueue %q: %w", domain, err)
		}
		ids = append(ids, job.ID)
	}

	s.seenMu.Lock()
	for _, domain := range domains {
		s.seen[domain] = struct{}{}
	}
	s.seenMu.Unlock()

	if s.notifier != nil && len(ids) > 0 {
		s.notifier.JobsQueued(ctx, len(ids), priority)
	}

	s.logger.Info("domains enqueued", "count", len(ids), "priority", priority)
	return ids, nil
}

// Assignment is everything a worker needs for one scan attempt: the
// claimed job plus a fresh egress identity and client fingerprint.
type Assignment struct {
	Job         scanjob.Job             `json:"job"`
	Egress      egress.Identity         `json:"egress"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
}

// Claim atomically assigns the best pending job to the node and
// attaches a rotated egress identity and a freshly generated
// fingerprint. A region code targets egress selection; empty uses the
// rotation cursor.
//
// Returns scheduler.ErrNoPendingJobs when the backlog is idle and
// shared.ErrPoolExhausted when no egress identity is available; in the
// latter case the claim is rolled back, so the job stays eligible and
// the node idle.
func (s *Service) Claim(ctx context.Context, nodeID, region string) (*Assignment, error) {
	job, err := s.scheduler.Claim(nodeID)
	if err != nil {
		return nil, err
	}

	// The scheduler claim comes first so the rotation cursor only moves
	// for real dispatches; an idle backlog or busy node never consumes a
	// rotation slot.
	identity, err := s.selectEgress(region)
	if err != nil {
		s.release(job.ID)
		return nil, err
	}

	if err := s.pool.Pace(ctx, identity); err != nil {
		s.release(job.ID)
		return nil, err
	}

	fp := s.prints.Generate()
	metrics.FingerprintsGenerated.WithLabelValues(string(fp.Device)).Inc()

	return &Assignment{
		Job:         job,
		Egress:      identity,
		Fingerprint: fp,
	}, nil
}

func (s *Service) selectEgress(region string) (egress.Identity, error) {
	if region != "" {
		metrics.EgressSelections.WithLabelValues("by_region").Inc()
		return s.pool.ByRegion(region)
	}
	metrics.EgressSelections.WithLabelValues("rotate").Inc()
	return s.pool.Next()
}

// release rolls a claimed job back to the backlog without consuming a
// retry, so an aborted assignment leaves no trace on the job or node.
func (s *Service) release(jobID shared.ID) {
	if err := s.scheduler.Release(jobID); err != nil {
		s.logger.Warn("claim rollback failed", "job_id", jobID, "error", err)
	}
}

// Complete records a successful scan and forwards the opaque result to
// the sink.
func (s *Service) Complete(ctx context.Context, jobID shared.ID, result json.RawMessage) error {
	if err := s.scheduler.CompleteJob(jobID, result); err != nil {
		return err
	}

	if s.results != nil {
		job, err := s.scheduler.Job(jobID)
		if err == nil {
			if err := s.results.JobCompleted(ctx, &job); err != nil {
				s.logger.Warn("result delivery failed", "job_id", jobID, "error", err)
			}
		}
	}
	return nil
}

// Fail records a failed attempt; retriable failures re-enter the
// backlog, terminal ones are forwarded to the sink. Returns true when
// the failure was absorbed as a retry.
func (s *Service) Fail(ctx context.Context, jobID shared.ID, message string) (bool, error) {
	retried, err := s.scheduler.FailJob(jobID, message)
	if err != nil {
		return false, err
	}

	if !retried && s.results != nil {
		job, jerr := s.scheduler.Job(jobID)
		if jerr == nil {
			if err := s.results.JobFailed(ctx, &job); err != nil {
				s.logger.Warn("failure delivery failed", "job_id", jobID, "error", err)
			}
		}
	}
	return retried, nil
}

// Status is the grid-wide JSON snapshot: scheduler stats plus static
// pool metadata.
type Status struct {
	scheduler.Stats
	PoolSize int `json:"poolSize"`
}

// GridStatus returns the current grid snapshot.
func (s *Service) GridStatus() Status {
	size := s.pool.Size()
	metrics.EgressPoolSize.Set(float64(size))
	return Status{
		Stats:    s.scheduler.Stats(),
		PoolSize: size,
	}
}

// Scheduler exposes the underlying scheduler for controllers.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Pool exposes the egress pool for the admin API.
func (s *Service) Pool() *egress.Pool {
	return s.pool
}

// KnownDomains returns every domain ever enqueued, sorted for stable
// rescan ordering.
func (s *Service) KnownDomains() []string {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	domains := make([]string, 0, len(s.seen))
	for domain := range s.seen {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
