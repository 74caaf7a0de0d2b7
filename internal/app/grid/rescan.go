package grid

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/a11yscan/grid/pkg/logger"
)

// Rescanner re-enqueues every known domain on a cron schedule so audit
// results stay fresh without manual re-submission.
type Rescanner struct {
	service  *Service
	cron     *cron.Cron
	spec     string
	priority int
	logger   *logger.Logger
}

// NewRescanner creates a rescanner for the given cron expression. The
// expression is parsed eagerly so a bad schedule fails at startup, not
// at first fire.
func NewRescanner(service *Service, spec string, priority int, log *logger.Logger) (*Rescanner, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse rescan schedule %q: %w", spec, err)
	}

	return &Rescanner{
		service:  service,
		cron:     cron.New(),
		spec:     spec,
		priority: priority,
		logger:   log.With("component", "rescanner"),
	}, nil
}

// Start begins firing on the schedule.
func (r *Rescanner) Start() error {
	_, err := r.cron.AddFunc(r.spec, r.rescan)
	if err != nil {
		return fmt.Errorf("schedule rescan: %w", err)
	}
	r.cron.Start()
	r.logger.Info("rescan schedule started", "spec", r.spec, "priority", r.priority)
	return nil
}

// Stop stops the schedule and waits for a running rescan to finish.
func (r *Rescanner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("rescan schedule stopped")
}

func (r *Rescanner) rescan() {
	domains := r.service.KnownDomains()
	if len(domains) == 0 {
		return
	}

	ids, err := r.service.EnqueueDomains(context.Background(), domains, r.priority)
	if err != nil {
		r.logger.Error("scheduled rescan failed", "error", err)
		return
	}

	r.logger.Info("scheduled rescan enqueued", "domains", len(domains), "jobs", len(ids))
}
