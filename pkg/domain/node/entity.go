// Package node defines the WorkerNode entity: a logical execution slot
// in the scanning grid.
package node

import (
	"time"
)

// State represents the current activity of a worker node.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateError    State = "error"
)

// WorkerNode is a logical execution slot. Nodes are created at
// registration and persist for the grid's run; only their state cycles.
// All mutation happens inside the scheduler under its lock.
type WorkerNode struct {
	ID    string
	State State

	// Cumulative counters.
	ScanCount  int64
	ErrorCount int64

	// CurrentDomain is set only while scanning.
	CurrentDomain string

	RegisteredAt time.Time
	LastScanAt   *time.Time
}

// New creates an idle node with zero counters.
func New(id string) *WorkerNode {
	return &WorkerNode{
		ID:           id,
		State:        StateIdle,
		RegisteredAt: time.Now(),
	}
}

// BeginScan marks the node busy with the given domain.
func (n *WorkerNode) BeginScan(domain string) {
	n.State = StateScanning
	n.CurrentDomain = domain
}

// FinishScan returns the node to idle after a successful scan and
// updates its counters.
func (n *WorkerNode) FinishScan() {
	now := time.Now()
	n.State = StateIdle
	n.CurrentDomain = ""
	n.ScanCount++
	n.LastScanAt = &now
}

// ReleaseAfterRetry returns the node to idle after an attempt that was
// absorbed by the job's retry budget. The error is not attributed to
// the node; it shows up on the job's retry counter instead.
func (n *WorkerNode) ReleaseAfterRetry() {
	n.State = StateIdle
	n.CurrentDomain = ""
}

// RecordFailure returns the node to idle after a terminal job failure
// and increments its error counter.
func (n *WorkerNode) RecordFailure() {
	n.State = StateIdle
	n.CurrentDomain = ""
	n.ErrorCount++
}

// IsIdle reports whether the node can accept work.
func (n *WorkerNode) IsIdle() bool {
	return n.State == StateIdle
}
