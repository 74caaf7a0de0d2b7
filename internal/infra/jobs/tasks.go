// Package jobs delivers terminal scan outcomes to downstream consumers
// over an Asynq queue.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types for scan outcome delivery.
const (
	TypeScanCompleted = "scan:completed"
	TypeScanFailed    = "scan:failed"
)

// ScanCompletedPayload carries a successful scan result downstream.
type ScanCompletedPayload struct {
	JobID       string          `json:"job_id"`
	Domain      string          `json:"domain"`
	Priority    int             `json:"priority"`
	NodeID      string          `json:"node_id"`
	Result      json.RawMessage `json:"result"`
	CompletedAt time.Time       `json:"completed_at"`
}

// ScanFailedPayload carries a terminally failed scan downstream.
type ScanFailedPayload struct {
	JobID        string    `json:"job_id"`
	Domain       string    `json:"domain"`
	Priority     int       `json:"priority"`
	Retries      int       `json:"retries"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

// NewScanCompletedTask creates a scan-completed delivery task.
func NewScanCompletedTask(payload ScanCompletedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeScanCompleted, data), nil
}

// NewScanFailedTask creates a scan-failed delivery task.
func NewScanFailedTask(payload ScanFailedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeScanFailed, data), nil
}
