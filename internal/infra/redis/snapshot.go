package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a11yscan/grid/internal/app/grid"
	"github.com/a11yscan/grid/pkg/logger"
)

const (
	// statusKey holds the latest grid status snapshot.
	statusKey = "grid:status"

	// statusTTL bounds staleness if the grid stops snapshotting.
	statusTTL = 10 * time.Minute
)

// SnapshotStore periodically persists the grid status so dashboards and
// sibling processes can read it without hitting the scheduler.
type SnapshotStore struct {
	client   *Client
	service  *grid.Service
	interval time.Duration
	logger   *logger.Logger
}

// NewSnapshotStore creates a snapshot store.
func NewSnapshotStore(client *Client, service *grid.Service, interval time.Duration, log *logger.Logger) *SnapshotStore {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SnapshotStore{
		client:   client,
		service:  service,
		interval: interval,
		logger:   log.With("component", "snapshot-store"),
	}
}

// Run snapshots on the configured interval until ctx is canceled.
func (s *SnapshotStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				s.logger.Warn("status snapshot failed", "error", err)
			}
		}
	}
}

// Save writes the current grid status.
func (s *SnapshotStore) Save(ctx context.Context) error {
	data, err := json.Marshal(s.service.GridStatus())
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := s.client.Client().Set(ctx, statusKey, data, statusTTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", statusKey, err)
	}
	return nil
}

// Load reads the last persisted grid status.
func (s *SnapshotStore) Load(ctx context.Context) (*grid.Status, error) {
	data, err := s.client.Client().Get(ctx, statusKey).Bytes()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", statusKey, err)
	}
	var status grid.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &status, nil
}
