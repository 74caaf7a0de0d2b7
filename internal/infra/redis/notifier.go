package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a11yscan/grid/pkg/logger"
)

// JobNotifyChannel is the pub/sub channel announcing newly queued jobs.
const JobNotifyChannel = "grid:jobs:notify"

// JobNotification tells idle workers that jobs entered the backlog so
// they can claim instead of polling on an interval.
type JobNotification struct {
	Count     int   `json:"count"`
	Priority  int   `json:"priority"`
	CreatedAt int64 `json:"created_at"`
}

// JobNotifier publishes queue notifications over Redis pub/sub.
type JobNotifier struct {
	client *Client
	logger *logger.Logger
}

// NewJobNotifier creates a JobNotifier.
func NewJobNotifier(client *Client, log *logger.Logger) *JobNotifier {
	return &JobNotifier{
		client: client,
		logger: log.With("component", "job-notifier"),
	}
}

// JobsQueued publishes a notification for newly queued jobs. Publish
// failures are logged, not returned: notification is a latency
// optimization and workers fall back to interval polling.
func (n *JobNotifier) JobsQueued(ctx context.Context, count int, priority int) {
	data, err := json.Marshal(&JobNotification{
		Count:     count,
		Priority:  priority,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		n.logger.Warn("marshal job notification", "error", err)
		return
	}

	if err := n.client.Client().Publish(ctx, JobNotifyChannel, data).Err(); err != nil {
		n.logger.Warn("publish job notification", "error", err)
		return
	}

	n.logger.Debug("published job notification", "count", count, "priority", priority)
}

// Subscribe delivers notifications until ctx is canceled. The returned
// channel is closed on shutdown.
func (n *JobNotifier) Subscribe(ctx context.Context) (<-chan *JobNotification, error) {
	sub := n.client.Client().Subscribe(ctx, JobNotifyChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", JobNotifyChannel, err)
	}

	out := make(chan *JobNotification)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var notification JobNotification
				if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
					n.logger.Warn("malformed job notification", "error", err)
					continue
				}
				select {
				case out <- &notification:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
