// Package persistence defines the narrow store interface the AST execution
// core writes through, and a modernc.org/sqlite-backed implementation.
package persistence

import (
	"time"

	"github.com/dohr-michael/iast-gateway/internal/ast"
)

// ExecutionRecord is the logical, durable shape of one execution. Field
// names mirror ast.ExecutionResult; this is the persisted projection of it.
type ExecutionRecord struct {
	SessionID    string
	ExecutionID  string
	ASTName      string
	UserID       string
	HostUser     string
	Status       ast.ExecutionStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	Message      string
	Error        string
	ItemCount    int
	SuccessCount int
	FailedCount  int
	SkippedCount int
}

// ExecutionPatch is a partial update applied to an existing ExecutionRecord.
type ExecutionPatch struct {
	Status       ast.ExecutionStatus
	CompletedAt  *time.Time
	Message      string
	Error        string
	SuccessCount int
	FailedCount  int
	SkippedCount int
}

// ItemResultRecord is the durable projection of one ast.ItemResult.
type ItemResultRecord struct {
	ExecutionID string
	ItemID      string
	Status      ast.ItemStatus
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMS  int64
	Error       string
	Data        map[string]any
}

// Store is the narrow interface the execution core writes through. All
// three operations are best-effort from the caller's perspective (a failing
// write is logged and does not abort a run) and idempotent by natural key:
// PutExecution upserts by (sessionId, executionId); UpdateExecution patches
// the existing record with that key and returns an error if there is none;
// PutItemResult upserts by (executionId, itemId).
type Store interface {
	PutExecution(rec ExecutionRecord) error
	UpdateExecution(sessionID, executionID string, patch ExecutionPatch) error
	PutItemResult(rec ItemResultRecord) error

	// GetExecution and ListItemResults back the CLI/HTTP read surface; not
	// part of the write-path spec but needed to make persisted state visible.
	GetExecution(sessionID, executionID string) (*ExecutionRecord, error)
	ListItemResults(executionID string) ([]ItemResultRecord, error)
}
