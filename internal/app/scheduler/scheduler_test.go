package scheduler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/domain/shared"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return New(Config{}, nil)
}

func TestClaimDispatchesByPriority(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	low, err := s.CreateJob("low.example", 10)
	require.NoError(t, err)
	high, err := s.CreateJob("high.example", 90)
	require.NoError(t, err)
	mid, err := s.CreateJob("mid.example", 50)
	require.NoError(t, err)

	want := []shared.ID{high.ID, mid.ID, low.ID}
	for _, expected := range want {
		job, err := s.Claim("node-1")
		require.NoError(t, err)
		assert.True(t, expected.Equals(job.ID))
		require.NoError(t, s.CompleteJob(job.ID, nil))
	}

	_, err = s.Claim("node-1")
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestEqualPriorityDispatchesFIFO(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	domains := []string{"a.example", "b.example", "c.example"}
	for _, d := range domains {
		_, err := s.CreateJob(d, 50)
		require.NoError(t, err)
	}

	for _, d := range domains {
		job, err := s.Claim("node-1")
		require.NoError(t, err)
		assert.Equal(t, d, job.Domain)
		require.NoError(t, s.CompleteJob(job.ID, nil))
	}
}

func TestClaimChecksNode(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))
	_, err := s.CreateJob("a.example", 50)
	require.NoError(t, err)

	_, err = s.Claim("ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	job, err := s.Claim("node-1")
	require.NoError(t, err)

	// A busy node cannot claim a second job.
	_, err = s.Claim("node-1")
	assert.ErrorIs(t, err, shared.ErrConflict)

	require.NoError(t, s.CompleteJob(job.ID, nil))
	_, err = s.Claim("node-1")
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestNextJobPeeksWithoutMutation(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("a.example", 80)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		peeked, err := s.NextJob()
		require.NoError(t, err)
		assert.True(t, created.ID.Equals(peeked.ID))
		assert.Equal(t, scanjob.StatusPending, peeked.Status)
	}

	claimed, err := s.Claim("node-1")
	require.NoError(t, err)
	assert.True(t, created.ID.Equals(claimed.ID))

	_, err = s.NextJob()
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestRetryReentersBacklog(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("flaky.example", 50)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.True(t, created.ID.Equals(job.ID))

	retried, err := s.FailJob(job.ID, "connection reset")
	require.NoError(t, err)
	assert.True(t, retried)

	// Node is released without error attribution and the job is
	// immediately claimable again.
	n, err := s.Node("node-1")
	require.NoError(t, err)
	assert.True(t, n.IsIdle())
	assert.EqualValues(t, 0, n.ErrorCount)

	again, err := s.Claim("node-1")
	require.NoError(t, err)
	assert.True(t, created.ID.Equals(again.ID))
	assert.Equal(t, 1, again.Retries)
}

func TestTerminalFailureAfterBudget(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("down.example", 50)
	require.NoError(t, err)

	for attempt := 1; attempt <= 3; attempt++ {
		job, err := s.Claim("node-1")
		require.NoError(t, err, "attempt %d", attempt)
		require.True(t, created.ID.Equals(job.ID))

		retried, err := s.FailJob(job.ID, "unreachable")
		require.NoError(t, err)
		assert.Equal(t, attempt < 3, retried)
	}

	job, err := s.Job(created.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusFailed, job.Status)
	assert.Equal(t, "unreachable", job.ErrorMessage)

	// Only the terminal failure lands on the node.
	n, err := s.Node("node-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n.ErrorCount)
	assert.EqualValues(t, 0, n.ScanCount)

	_, err = s.Claim("node-1")
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestRetryBackoffDefersDispatch(t *testing.T) {
	s := New(Config{RetryBackoff: time.Hour}, nil)
	require.NoError(t, s.RegisterNode("node-1"))

	_, err := s.CreateJob("slow.example", 50)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)

	retried, err := s.FailJob(job.ID, "timeout")
	require.NoError(t, err)
	require.True(t, retried)

	// Pending but not yet eligible.
	_, err = s.Claim("node-1")
	assert.ErrorIs(t, err, ErrNoPendingJobs)

	got, err := s.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, got.Status)
}

func TestFailJobUnknownID(t *testing.T) {
	s := newScheduler(t)
	_, err := s.FailJob(shared.NewID(), "whatever")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = s.CompleteJob(shared.NewID(), nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = s.Job(shared.NewID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStartJobTwoStepDispatch(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("a.example", 50)
	require.NoError(t, err)

	require.NoError(t, s.StartJob(created.ID, "node-1"))

	job, err := s.Job(created.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusScanning, job.Status)

	// The backlog entry is gone; nothing is claimable.
	_, err = s.NextJob()
	assert.ErrorIs(t, err, ErrNoPendingJobs)

	err = s.StartJob(shared.NewID(), "node-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStartJobRejectsBusyNode(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	first, err := s.CreateJob("a.example", 50)
	require.NoError(t, err)
	second, err := s.CreateJob("b.example", 50)
	require.NoError(t, err)

	require.NoError(t, s.StartJob(first.ID, "node-1"))

	// A busy node cannot be handed a second job via two-step dispatch.
	err = s.StartJob(second.ID, "node-1")
	assert.ErrorIs(t, err, shared.ErrConflict)

	// The second job is untouched and still pending.
	got, err := s.Job(second.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, got.Status)
}

func TestReleaseReturnsJobWithoutRetry(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("a.example", 50)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.NoError(t, s.Release(job.ID))

	// The rollback left no trace: job pending with an untouched retry
	// counter, node idle and unblamed.
	got, err := s.Job(created.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, got.Status)
	assert.Zero(t, got.Retries)
	assert.Nil(t, got.NodeID)

	n, err := s.Node("node-1")
	require.NoError(t, err)
	assert.True(t, n.IsIdle())
	assert.EqualValues(t, 0, n.ErrorCount)

	again, err := s.Claim("node-1")
	require.NoError(t, err)
	assert.True(t, created.ID.Equals(again.ID))

	// Only scanning jobs can be released.
	require.NoError(t, s.CompleteJob(again.ID, nil))
	err = s.Release(again.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	err = s.Release(shared.NewID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSnapshotsDoNotShareStoreMemory(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("a.example", 50)
	require.NoError(t, err)

	// Readers marshal snapshots while the lifecycle mutates the stored
	// job; with value copies the two never touch the same memory.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			job, err := s.Job(created.ID)
			if err != nil {
				return
			}
			if _, err := json.Marshal(job); err != nil {
				return
			}
		}
	}()

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.NoError(t, s.CompleteJob(job.ID, json.RawMessage(`{"ok":true}`)))
	wg.Wait()

	// The snapshot taken at claim time is unaffected by the completion.
	assert.Equal(t, scanjob.StatusScanning, job.Status)
	assert.Nil(t, job.CompletedAt)

	got, err := s.Job(created.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusCompleted, got.Status)
}

func TestFailStaleReapsStuckScans(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("hung.example", 50)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.True(t, created.ID.Equals(job.ID))

	// Backdate the stored job's start to simulate a crashed worker.
	past := time.Now().Add(-time.Hour)
	s.jobs[job.ID].StartedAt = &past

	reaped, err := s.FailStale(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := s.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, scanjob.StatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)

	// A healthy scan is left alone.
	reaped, err = s.FailStale(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}

func TestStatsAggregation(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))
	require.NoError(t, s.RegisterNode("node-2"))

	// No scans yet: error rate must be zero, not NaN.
	stats := s.Stats()
	assert.EqualValues(t, 0, stats.TotalScanned)
	assert.Zero(t, stats.ErrorRate)
	assert.EqualValues(t, 2, stats.ActiveNodes)

	ok, err := s.CreateJob("ok.example", 50)
	require.NoError(t, err)
	bad, err := s.CreateJob("bad.example", 40)
	require.NoError(t, err)
	_, err = s.CreateJob("waiting.example", 10)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.True(t, ok.ID.Equals(job.ID))
	require.NoError(t, s.CompleteJob(job.ID, json.RawMessage(`{}`)))

	for attempt := 0; attempt < 3; attempt++ {
		job, err := s.Claim("node-2")
		require.NoError(t, err)
		require.True(t, bad.ID.Equals(job.ID))
		_, err = s.FailJob(job.ID, "unreachable")
		require.NoError(t, err)
	}

	stats = s.Stats()
	assert.EqualValues(t, 3, stats.TotalJobs)
	assert.EqualValues(t, 1, stats.PendingJobs)
	assert.EqualValues(t, 1, stats.CompletedJobs)
	assert.EqualValues(t, 1, stats.FailedJobs)
	assert.EqualValues(t, 1, stats.TotalScanned)
	assert.EqualValues(t, 1, stats.TotalErrors)
	assert.InDelta(t, 1.0, stats.ErrorRate, 1e-9)
}

func TestCompactTerminalPreservesCounters(t *testing.T) {
	s := newScheduler(t)
	require.NoError(t, s.RegisterNode("node-1"))

	created, err := s.CreateJob("done.example", 50)
	require.NoError(t, err)

	job, err := s.Claim("node-1")
	require.NoError(t, err)
	require.NoError(t, s.CompleteJob(job.ID, nil))

	// Too young to compact.
	assert.Equal(t, 0, s.CompactTerminal(time.Hour))

	past := time.Now().Add(-2 * time.Hour)
	s.jobs[job.ID].CompletedAt = &past
	assert.Equal(t, 1, s.CompactTerminal(time.Hour))

	_, err = s.Job(created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// Cumulative stats survive the archival.
	stats := s.Stats()
	assert.EqualValues(t, 1, stats.TotalJobs)
	assert.EqualValues(t, 1, stats.CompletedJobs)
	assert.EqualValues(t, 1, stats.TotalScanned)
}

func TestRegisterNodeValidation(t *testing.T) {
	s := newScheduler(t)
	err := s.RegisterNode("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
