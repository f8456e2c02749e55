// Package scheduler triggers unattended, parallel AST runs on a cron
// schedule — SPEC_FULL.md's ScheduledJob. Triggered runs have no attached
// transport; their results are only visible through the persistence store
// and EventBus history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/execution"
	"github.com/dohr-michael/iast-gateway/internal/secrets"
)

// DefaultCooldown is the default minimum interval between two cron triggers
// of the same job; interval triggers are paced by IntervalSec alone.
const DefaultCooldown = 60 * time.Second

// Config holds the Scheduler's dependencies.
type Config struct {
	Runner      *execution.Runner
	Bus         *events.Bus
	Credentials *secrets.CredentialStore
	Store       *ScheduleStore // nil-safe: jobs added at runtime are not persisted without a store
}

// runtimeJob is the in-memory representation of one ScheduledJob, tracking
// the parsed cron expression alongside the persisted fields.
type runtimeJob struct {
	job  *ScheduledJob
	cron *CronExpr
}

// Scheduler manages cron- and interval-triggered unattended AST runs.
type Scheduler struct {
	runner      *execution.Runner
	bus         *events.Bus
	credentials *secrets.CredentialStore
	store       *ScheduleStore

	mu   sync.Mutex
	jobs map[string]*runtimeJob

	done        chan struct{}
	unsubscribe func()
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		runner:      cfg.Runner,
		bus:         cfg.Bus,
		credentials: cfg.Credentials,
		store:       cfg.Store,
		jobs:        make(map[string]*runtimeJob),
		done:        make(chan struct{}),
	}
}

// Start loads persisted jobs and begins the cron/interval ticker loops.
func (s *Scheduler) Start() {
	s.loadPersistedJobs()

	slog.Info("scheduler started", "jobs", len(s.jobs))

	go s.cronLoop()
	go s.intervalLoop()
}

// Stop halts the scheduler's ticker loops.
func (s *Scheduler) Stop() {
	close(s.done)
	slog.Info("scheduler stopped")
}

// AddJob registers a ScheduledJob at runtime, persisting it if a store is
// configured.
func (s *Scheduler) AddJob(job *ScheduledJob) error {
	if job.CronSpec == "" && job.IntervalSec == 0 {
		return fmt.Errorf("scheduled job must have a cron or interval trigger")
	}
	if job.IntervalSec > 0 && job.IntervalSec < 5 {
		return fmt.Errorf("interval must be at least 5 seconds")
	}
	if job.ASTName == "" {
		return fmt.Errorf("scheduled job requires an ast name")
	}

	if job.ID == "" {
		job.ID = GenerateScheduleID()
	}
	if job.CooldownSec == 0 {
		job.CooldownSec = int(DefaultCooldown / time.Second)
	}
	job.Enabled = true

	rj := &runtimeJob{job: job}
	if job.CronSpec != "" {
		expr, err := ParseCron(job.CronSpec)
		if err != nil {
			return fmt.Errorf("parse cron: %w", err)
		}
		rj.cron = expr
	}

	if s.store != nil {
		if err := s.store.Create(job); err != nil {
			return fmt.Errorf("persist scheduled job: %w", err)
		}
	}

	s.mu.Lock()
	s.jobs[job.ID] = rj
	s.mu.Unlock()

	slog.Info("scheduler: added job", "id", job.ID, "ast_name", job.ASTName)
	return nil
}

// RemoveJob removes a scheduled job by ID.
func (s *Scheduler) RemoveJob(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduled job not found: %s", id)
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(id); err != nil {
			slog.Warn("scheduler: failed to delete persisted job", "id", id, "error", err)
		}
	}

	slog.Info("scheduler: removed job", "id", id)
	return nil
}

// ListJobs returns a snapshot of every registered job.
func (s *Scheduler) ListJobs() []*ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ScheduledJob, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, rj.job)
	}
	return out
}

func (s *Scheduler) loadPersistedJobs() {
	if s.store == nil {
		return
	}

	jobs, err := s.store.List()
	if err != nil {
		slog.Warn("scheduler: failed to load persisted jobs", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		rj := &runtimeJob{job: job}
		if job.CronSpec != "" {
			expr, err := ParseCron(job.CronSpec)
			if err != nil {
				slog.Warn("scheduler: invalid cron in persisted job", "id", job.ID, "error", err)
				continue
			}
			rj.cron = expr
		}
		s.jobs[job.ID] = rj
		slog.Info("scheduler: loaded persisted job", "id", job.ID, "ast_name", job.ASTName)
	}
}

func (s *Scheduler) cronLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkCron(now)
		}
	}
}

func (s *Scheduler) intervalLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkIntervals(now)
		}
	}
}

func (s *Scheduler) checkCron(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rj := range s.jobs {
		if rj.cron == nil || !rj.job.Enabled {
			continue
		}
		if !rj.cron.Matches(now) {
			continue
		}
		if s.withinCooldown(rj, now) {
			continue
		}
		s.trigger(rj, "cron")
	}
}

func (s *Scheduler) checkIntervals(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rj := range s.jobs {
		if rj.job.IntervalSec <= 0 || !rj.job.Enabled {
			continue
		}
		interval := time.Duration(rj.job.IntervalSec) * time.Second
		if rj.job.LastRunAt != nil && now.Sub(*rj.job.LastRunAt) < interval {
			continue
		}
		s.trigger(rj, "interval")
	}
}

func (s *Scheduler) withinCooldown(rj *runtimeJob, now time.Time) bool {
	if rj.job.LastRunAt == nil {
		return false
	}
	return now.Sub(*rj.job.LastRunAt) < time.Duration(rj.job.CooldownSec)*time.Second
}

// trigger launches the job's AST run in its own goroutine; the scheduler's
// ticker loop must not block on a long-running parallel execution. Caller
// must hold s.mu.
func (s *Scheduler) trigger(rj *runtimeJob, reason string) {
	now := time.Now()
	rj.job.LastRunAt = &now
	rj.job.RunCount++

	password := ""
	if s.credentials != nil && rj.job.CredentialName != "" {
		pw, err := s.credentials.Get(rj.job.CredentialName)
		if err != nil {
			slog.Error("scheduler: resolve credential", "id", rj.job.ID, "credential", rj.job.CredentialName, "error", err)
			return
		}
		password = pw
	}

	executionID := GenerateScheduleID() + "-" + reason
	job := rj.job

	s.bus.Publish(events.NewTypedEventWithSession(events.SourceScheduler, events.ScheduleTriggerPayload{
		JobID:   job.ID,
		ASTName: job.ASTName,
	}, job.SessionID))

	go func() {
		res, err := s.runner.Run(context.Background(), execution.RunParams{
			ASTName:     job.ASTName,
			Username:    job.CredentialName,
			Password:    password,
			SessionID:   job.SessionID,
			ExecutionID: executionID,
			Params:      job.Params,
			Parallel:    true,
			MaxSessions: job.MaxSessions,
		})
		if err != nil {
			slog.Error("scheduler: run failed", "id", job.ID, "error", err)
			return
		}
		slog.Info("scheduler: run completed", "id", job.ID, "status", res.Status, "trigger", reason)
	}()

	if s.store != nil {
		if err := s.store.Update(job); err != nil {
			slog.Warn("scheduler: failed to update persisted job", "id", job.ID, "error", err)
		}
	}

	if job.MaxRuns > 0 && job.RunCount >= job.MaxRuns {
		job.Enabled = false
		slog.Info("scheduler: job reached max runs, disabled", "id", job.ID, "runs", job.RunCount)
		if s.store != nil {
			if err := s.store.Update(job); err != nil {
				slog.Warn("scheduler: failed to update persisted job", "id", job.ID, "error", err)
			}
		}
	}

	slog.Info("scheduler: triggered", "id", job.ID, "trigger", reason, "execution_id", executionID)
}
