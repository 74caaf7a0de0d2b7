package controller

import (
	"context"
	"time"

	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/pkg/logger"
)

// BacklogCompactionController removes terminal jobs older than the
// retention window so the job table stays bounded under sustained load.
// Cumulative stats counters are unaffected by compaction.
type BacklogCompactionController struct {
	scheduler *scheduler.Scheduler
	interval  time.Duration
	retention time.Duration
	logger    *logger.Logger
}

// NewBacklogCompactionController creates the compactor.
func NewBacklogCompactionController(sched *scheduler.Scheduler, interval, retention time.Duration, log *logger.Logger) *BacklogCompactionController {
	return &BacklogCompactionController{
		scheduler: sched,
		interval:  interval,
		retention: retention,
		logger:    log.With("controller", "backlog-compaction"),
	}
}

// Name returns the controller name.
func (c *BacklogCompactionController) Name() string { return "backlog-compaction" }

// Interval returns the reconcile interval.
func (c *BacklogCompactionController) Interval() time.Duration { return c.interval }

// Reconcile compacts terminal jobs past retention.
func (c *BacklogCompactionController) Reconcile(_ context.Context) (int, error) {
	removed := c.scheduler.CompactTerminal(c.retention)
	if removed > 0 {
		c.logger.Info("compacted terminal jobs",
			"count", removed,
			"retention", c.retention,
		)
	}
	return removed, nil
}
