package controller

import (
	"context"
	"time"

	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/pkg/logger"
)

// ScanWatchdogController fails jobs that have been scanning longer than
// the stuck threshold. Worker crashes never report back, so without the
// watchdog a claimed job would hold its node's slot forever. Failing a
// stuck job consumes one retry, so crash loops still terminate at the
// retry budget.
type ScanWatchdogController struct {
	scheduler *scheduler.Scheduler
	interval  time.Duration
	threshold time.Duration
	logger    *logger.Logger
}

// NewScanWatchdogController creates the watchdog.
func NewScanWatchdogController(sched *scheduler.Scheduler, interval, threshold time.Duration, log *logger.Logger) *ScanWatchdogController {
	return &ScanWatchdogController{
		scheduler: sched,
		interval:  interval,
		threshold: threshold,
		logger:    log.With("controller", "scan-watchdog"),
	}
}

// Name returns the controller name.
func (c *ScanWatchdogController) Name() string { return "scan-watchdog" }

// Interval returns the reconcile interval.
func (c *ScanWatchdogController) Interval() time.Duration { return c.interval }

// Reconcile reaps stuck scans.
func (c *ScanWatchdogController) Reconcile(_ context.Context) (int, error) {
	reaped, err := c.scheduler.FailStale(c.threshold)
	if err != nil {
		return reaped, err
	}
	if reaped > 0 {
		c.logger.Warn("reaped stuck scans",
			"count", reaped,
			"threshold", c.threshold,
		)
	}
	return reaped, nil
}
