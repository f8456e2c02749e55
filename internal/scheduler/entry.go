package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduledJob is a cron-triggered, unattended parallel AST run: no
// transport is attached, so results are only visible through the
// persistence store and EventBus history (SPEC_FULL.md §4.7's "no
// transport attached" clause).
type ScheduledJob struct {
	ID             string         `json:"id"`
	ASTName        string         `json:"ast_name"`
	Params         map[string]any `json:"params,omitempty"`
	CredentialName string         `json:"credential_name"`
	SessionID      string         `json:"session_id"`
	CronSpec       string         `json:"cron_spec,omitempty"`
	IntervalSec    int            `json:"interval_sec,omitempty"`
	MaxSessions    int            `json:"max_sessions,omitempty"`
	CooldownSec    int            `json:"cooldown_sec"`
	MaxRuns        int            `json:"max_runs,omitempty"`
	RunCount       int            `json:"run_count"`
	Enabled        bool           `json:"enabled"`
	CreatedAt      time.Time      `json:"created_at"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
}

// GenerateScheduleID creates a unique schedule identifier with "sched_" prefix.
func GenerateScheduleID() string {
	u := uuid.New().String()
	return "sched_" + strings.ReplaceAll(u[:8], "-", "")
}
