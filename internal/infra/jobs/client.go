package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/a11yscan/grid/pkg/domain/scanjob"
	"github.com/a11yscan/grid/pkg/logger"
)

// Client enqueues scan outcome tasks using Asynq. It implements the
// grid result sink.
type Client struct {
	client *asynq.Client
	queue  string
	logger *logger.Logger
}

// ClientConfig contains configuration for the results client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
}

// NewClient creates a results client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	queue := cfg.Queue
	if queue == "" {
		queue = "scan-results"
	}
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		queue:  queue,
		logger: log.With("component", "results_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// JobCompleted enqueues a scan-completed delivery task.
func (c *Client) JobCompleted(ctx context.Context, job *scanjob.Job) error {
	payload := ScanCompletedPayload{
		JobID:    job.ID.String(),
		Domain:   job.Domain,
		Priority: job.Priority,
		Result:   job.Result,
	}
	if job.NodeID != nil {
		payload.NodeID = *job.NodeID
	}
	if job.CompletedAt != nil {
		payload.CompletedAt = *job.CompletedAt
	}

	task, err := NewScanCompletedTask(payload)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	if err != nil {
		return fmt.Errorf("enqueue scan completed: %w", err)
	}

	c.logger.Debug("scan result queued",
		"task_id", info.ID,
		"job_id", payload.JobID,
		"domain", payload.Domain,
	)
	return nil
}

// JobFailed enqueues a scan-failed delivery task.
func (c *Client) JobFailed(ctx context.Context, job *scanjob.Job) error {
	payload := ScanFailedPayload{
		JobID:        job.ID.String(),
		Domain:       job.Domain,
		Priority:     job.Priority,
		Retries:      job.Retries,
		ErrorMessage: job.ErrorMessage,
	}
	if job.CompletedAt != nil {
		payload.FailedAt = *job.CompletedAt
	}

	task, err := NewScanFailedTask(payload)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	if err != nil {
		return fmt.Errorf("enqueue scan failed: %w", err)
	}

	c.logger.Debug("scan failure queued",
		"task_id", info.ID,
		"job_id", payload.JobID,
		"domain", payload.Domain,
	)
	return nil
}
