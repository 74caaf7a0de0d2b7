package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/pkg/domain/egress"
	"github.com/a11yscan/grid/pkg/domain/fingerprint"
	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/domain/shared"
	"github.com/a11yscan/grid/pkg/logger"
)

func newTestService(t *testing.T, identities int, opts ...Option) *Service {
	t.Helper()

	var seed []egress.Identity
	for i := 0; i < identities; i++ {
		id, err := egress.NewIdentity(fmt.Sprintf("10.0.0.%d", i+1), 8080, "us-east", egress.CarrierBroadband)
		require.NoError(t, err)
		seed = append(seed, id)
	}
	pool, err := egress.NewPool(seed)
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{}, nil)
	return NewService(sched, pool, fingerprint.NewDefaultGenerator(), nil, opts...)
}

func TestInitializeGridSequentialIDs(t *testing.T) {
	svc := newTestService(t, 1)

	ids, err := svc.InitializeGrid(3)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, ids)

	status := svc.GridStatus()
	assert.EqualValues(t, 3, status.ActiveNodes)

	_, err = svc.InitializeGrid(0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestEnqueueDomainsPreservesOrder(t *testing.T) {
	svc := newTestService(t, 1)

	domains := []string{"a.com", "b.com", "c.com"}
	ids, err := svc.EnqueueDomains(context.Background(), domains, 60)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for i, id := range ids {
		job, err := svc.Scheduler().Job(id)
		require.NoError(t, err)
		assert.Equal(t, domains[i], job.Domain)
		assert.Equal(t, 60, job.Priority)
	}

	assert.Equal(t, domains, svc.KnownDomains())
}

func TestClaimAttachesEgressAndFingerprint(t *testing.T) {
	svc := newTestService(t, 2)
	_, err := svc.InitializeGrid(1)
	require.NoError(t, err)

	_, err = svc.EnqueueDomains(context.Background(), []string{"a.com"}, 50)
	require.NoError(t, err)

	assignment, err := svc.Claim(context.Background(), "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "a.com", assignment.Job.Domain)
	assert.Equal(t, scanjob.StatusScanning, assignment.Job.Status)
	assert.NotEmpty(t, assignment.Egress.Address)
	assert.NotEmpty(t, assignment.Fingerprint.UserAgent)
}

func TestClaimWithExhaustedPool(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.InitializeGrid(1)
	require.NoError(t, err)

	ids, err := svc.EnqueueDomains(context.Background(), []string{"a.com"}, 50)
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), "node-1", "")
	assert.ErrorIs(t, err, shared.ErrPoolExhausted)

	// The rollback left the job pending with its retry budget intact
	// and the node idle.
	job, err := svc.Scheduler().Job(ids[0])
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, job.Status)
	assert.Zero(t, job.Retries)

	n, err := svc.Scheduler().Node("node-1")
	require.NoError(t, err)
	assert.True(t, n.IsIdle())

	// The job was not stranded: adding capacity makes it claimable.
	id, err := egress.NewIdentity("10.0.0.9", 8080, "us-east", egress.CarrierMobile)
	require.NoError(t, err)
	require.NoError(t, svc.Pool().Add(id))

	assignment, err := svc.Claim(context.Background(), "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "a.com", assignment.Job.Domain)
}

func TestClaimByRegion(t *testing.T) {
	svc := newTestService(t, 1)
	_, err := svc.InitializeGrid(1)
	require.NoError(t, err)

	eu, err := egress.NewIdentity("10.1.0.1", 8080, "eu-central", egress.CarrierBroadband)
	require.NoError(t, err)
	require.NoError(t, svc.Pool().Add(eu))

	_, err = svc.EnqueueDomains(context.Background(), []string{"a.com"}, 50)
	require.NoError(t, err)

	assignment, err := svc.Claim(context.Background(), "node-1", "eu-central")
	require.NoError(t, err)
	assert.Equal(t, "eu-central", assignment.Egress.Region)

	// An unknown region rolls the claim back and the job stays pending.
	ids, err := svc.EnqueueDomains(context.Background(), []string{"b.com"}, 50)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(context.Background(), assignment.Job.ID, nil))

	_, err = svc.Claim(context.Background(), "node-1", "ap-south")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	job, err := svc.Scheduler().Job(ids[0])
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, job.Status)
}

func TestIdleClaimsDoNotAdvanceRotation(t *testing.T) {
	svc := newTestService(t, 2)
	_, err := svc.InitializeGrid(1)
	require.NoError(t, err)

	ctx := context.Background()

	// Empty-backlog claims must not consume rotation slots.
	for i := 0; i < 3; i++ {
		_, err = svc.Claim(ctx, "node-1", "")
		require.ErrorIs(t, err, scheduler.ErrNoPendingJobs)
	}

	_, err = svc.EnqueueDomains(ctx, []string{"a.com", "b.com"}, 50)
	require.NoError(t, err)

	// Rotation starts from the first identity and advances one slot per
	// real dispatch.
	first, err := svc.Claim(ctx, "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", first.Egress.Address)
	require.NoError(t, svc.Complete(ctx, first.Job.ID, nil))

	second, err := svc.Claim(ctx, "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", second.Egress.Address)
}

type recordingSink struct {
	completed []string
	failed    []string
}

func (r *recordingSink) JobCompleted(_ context.Context, job *scanjob.Job) error {
	r.completed = append(r.completed, job.Domain)
	return nil
}

func (r *recordingSink) JobFailed(_ context.Context, job *scanjob.Job) error {
	r.failed = append(r.failed, job.Domain)
	return nil
}

type recordingNotifier struct {
	counts []int
}

func (r *recordingNotifier) JobsQueued(_ context.Context, count int, _ int) {
	r.counts = append(r.counts, count)
}

func TestGridEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	svc := newTestService(t, 2, WithResultSink(sink), WithNotifier(notifier))

	_, err := svc.InitializeGrid(2)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.EnqueueDomains(ctx, []string{"a.com"}, 70)
	require.NoError(t, err)
	_, err = svc.EnqueueDomains(ctx, []string{"b.com"}, 70)
	require.NoError(t, err)
	_, err = svc.EnqueueDomains(ctx, []string{"c.com"}, 90)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 1}, notifier.counts)

	// Highest priority dispatches first.
	assignment, err := svc.Claim(ctx, "node-1", "")
	require.NoError(t, err)
	assert.Equal(t, "c.com", assignment.Job.Domain)

	// Two transient failures, then success on the third attempt.
	for i := 0; i < 2; i++ {
		retried, err := svc.Fail(ctx, assignment.Job.ID, "proxy timeout")
		require.NoError(t, err)
		require.True(t, retried)

		assignment, err = svc.Claim(ctx, "node-1", "")
		require.NoError(t, err)
		require.Equal(t, "c.com", assignment.Job.Domain)
	}
	require.NoError(t, svc.Complete(ctx, assignment.Job.ID, json.RawMessage(`{"violations":0}`)))

	status := svc.GridStatus()
	assert.EqualValues(t, 3, status.TotalJobs)
	assert.EqualValues(t, 1, status.CompletedJobs)
	assert.EqualValues(t, 0, status.FailedJobs)
	assert.EqualValues(t, 2, status.PendingJobs)
	assert.EqualValues(t, 1, status.TotalScanned)
	assert.EqualValues(t, 0, status.TotalErrors)
	assert.Zero(t, status.ErrorRate)
	assert.Equal(t, 2, status.PoolSize)

	// Terminal outcome reached the sink exactly once.
	assert.Equal(t, []string{"c.com"}, sink.completed)
	assert.Empty(t, sink.failed)

	// FIFO among the equal-priority remainder.
	next, err := svc.Claim(ctx, "node-2", "")
	require.NoError(t, err)
	assert.Equal(t, "a.com", next.Job.Domain)
}

func TestFailTerminalReachesSink(t *testing.T) {
	sink := &recordingSink{}
	svc := newTestService(t, 1, WithResultSink(sink))

	_, err := svc.InitializeGrid(1)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.EnqueueDomains(ctx, []string{"down.com"}, 50)
	require.NoError(t, err)

	for attempt := 0; attempt < 3; attempt++ {
		assignment, err := svc.Claim(ctx, "node-1", "")
		require.NoError(t, err)
		_, err = svc.Fail(ctx, assignment.Job.ID, "unreachable")
		require.NoError(t, err)
	}

	assert.Empty(t, sink.completed)
	assert.Equal(t, []string{"down.com"}, sink.failed)
}

func TestRescannerRejectsBadSchedule(t *testing.T) {
	svc := newTestService(t, 1)

	_, err := NewRescanner(svc, "not a cron expression", 30, logger.NewNop())
	assert.Error(t, err)

	r, err := NewRescanner(svc, "@hourly", 30, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, r)
}
