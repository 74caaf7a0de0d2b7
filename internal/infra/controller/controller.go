// Package controller implements reconciliation loop controllers for
// self-healing background operations.
//
// Each controller runs in its own goroutine and periodically reconciles
// one aspect of grid state:
// - ScanWatchdogController: fails scans stuck past a threshold
// - BacklogCompactionController: archives terminal jobs past retention
//
// Controllers are independent and idempotent; one failing does not
// affect the others.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a11yscan/grid/internal/metrics"
	"github.com/a11yscan/grid/pkg/logger"
)

// Controller defines a reconciliation loop controller.
type Controller interface {
	// Name returns the unique name of this controller.
	Name() string

	// Interval returns how often this controller should run.
	Interval() time.Duration

	// Reconcile performs the reconciliation logic. It must be
	// idempotent. Returns the number of items processed.
	Reconcile(ctx context.Context) (int, error)
}

// Manager runs registered controllers in parallel goroutines.
type Manager struct {
	controllers []Controller
	logger      *logger.Logger
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
}

// NewManager creates a controller manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		controllers: make([]Controller, 0),
		logger:      log.With("component", "controller-manager"),
		stopCh:      make(chan struct{}),
	}
}

// Register adds a controller to the manager.
func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		panic("cannot register controllers while manager is running")
	}

	m.controllers = append(m.controllers, c)
	m.logger.Info("controller registered",
		"name", c.Name(),
		"interval", c.Interval().String(),
	)
}

// Start starts all registered controllers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("controller manager already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("starting controller manager",
		"controller_count", len(m.controllers),
	)

	for _, c := range m.controllers {
		m.wg.Add(1)
		go m.runController(ctx, c)
	}

	return nil
}

// Stop stops all controllers gracefully.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.logger.Info("stopping controller manager")
	m.wg.Wait()
	m.logger.Info("controller manager stopped")
	return nil
}

// runController runs a single controller's reconciliation loop.
func (m *Manager) runController(ctx context.Context, c Controller) {
	defer m.wg.Done()

	name := c.Name()
	interval := c.Interval()

	m.logger.Info("starting controller", "name", name, "interval", interval)

	// Run immediately on start
	m.reconcileOnce(ctx, c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("controller stopping (context canceled)", "name", name)
			return

		case <-m.stopCh:
			m.logger.Info("controller stopping (manager stopped)", "name", name)
			return

		case <-ticker.C:
			m.reconcileOnce(ctx, c)
		}
	}
}

// reconcileOnce runs a single reconciliation for a controller.
func (m *Manager) reconcileOnce(ctx context.Context, c Controller) {
	name := c.Name()
	start := time.Now()

	reconcileCtx, cancel := context.WithTimeout(ctx, c.Interval())
	defer cancel()

	count, err := c.Reconcile(reconcileCtx)
	duration := time.Since(start)

	metrics.ReconcileDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err != nil {
		metrics.ReconcileRuns.WithLabelValues(name, "error").Inc()
		m.logger.Error("controller reconcile failed",
			"name", name,
			"duration", duration,
			"error", err,
		)
		return
	}

	metrics.ReconcileRuns.WithLabelValues(name, "success").Inc()
	if count > 0 {
		m.logger.Info("controller reconcile completed",
			"name", name,
			"items_processed", count,
			"duration", duration,
		)
	} else {
		m.logger.Debug("controller reconcile completed (no items)",
			"name", name,
			"duration", duration,
		)
	}
}

// IsRunning checks if the manager is running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ControllerNames returns the names of all registered controllers.
func (m *Manager) ControllerNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.controllers))
	for i, c := range m.controllers {
		names[i] = c.Name()
	}
	return names
}
