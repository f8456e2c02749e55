// Package ast defines the AST (Automated Streamlined Transaction) contract:
// a polymorphic script that drives a 3270 emulator through a multi-screen
// workflow for each of a list of items, plus the runtime pause/resume/cancel
// API the executors drive it through.
package ast

import "time"

// Item is an opaque unit of work — a bare string identifier or a structured
// record. The owning AST knows how to turn one into a loggable ID via
// GetItemID.
type Item any

// ItemStatus is the terminal outcome of processing a single item.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// ItemResult is the recorded outcome of processing one item.
type ItemResult struct {
	ItemID      string         `json:"item_id"`
	Status      ItemStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMS  int64          `json:"duration_ms"`
	Error       string         `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// ExecutionStatus is the lifecycle state of one AST run. Terminal states
// (everything but pending/running) are absorbing.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecSuccess   ExecutionStatus = "success"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
	ExecTimeout   ExecutionStatus = "timeout"
)

// ExecutionResult is the final (or in-flight) record of one run.
type ExecutionResult struct {
	SessionID     string          `json:"session_id"`
	ExecutionID   string          `json:"execution_id"`
	ASTName       string          `json:"ast_name"`
	Status        ExecutionStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Message       string          `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
	ItemResults   []ItemResult    `json:"item_results"`
	SuccessCount  int             `json:"success_count"`
	FailedCount   int             `json:"failed_count"`
	SkippedCount  int             `json:"skipped_count"`
}

// Tally recomputes SuccessCount/FailedCount/SkippedCount from ItemResults.
func (r *ExecutionResult) Tally() {
	r.SuccessCount, r.FailedCount, r.SkippedCount = 0, 0, 0
	for _, ir := range r.ItemResults {
		switch ir.Status {
		case ItemSuccess:
			r.SuccessCount++
		case ItemFailed:
			r.FailedCount++
		case ItemSkipped:
			r.SkippedCount++
		}
	}
}
