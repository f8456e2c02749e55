package scheduler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id              TEXT PRIMARY KEY,
	ast_name        TEXT NOT NULL,
	params          TEXT,
	credential_name TEXT NOT NULL,
	session_id      TEXT NOT NULL,
	cron_spec       TEXT,
	interval_sec    INTEGER NOT NULL DEFAULT 0,
	max_sessions    INTEGER NOT NULL DEFAULT 0,
	cooldown_sec    INTEGER NOT NULL DEFAULT 0,
	max_runs        INTEGER NOT NULL DEFAULT 0,
	run_count       INTEGER NOT NULL DEFAULT 0,
	enabled         INTEGER NOT NULL DEFAULT 1,
	created_at      TEXT NOT NULL,
	last_run_at     TEXT
);
`

// ScheduleStore persists ScheduledJobs in a modernc.org/sqlite database,
// separate from the execution persistence store since scheduled jobs are a
// control-plane concern, not a run-result concern.
type ScheduleStore struct {
	db *sql.DB
}

// OpenScheduleStore opens (and migrates) a sqlite database at dsn.
func OpenScheduleStore(dsn string) (*ScheduleStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schedule schema: %w", err)
	}
	return &ScheduleStore{db: db}, nil
}

func (s *ScheduleStore) Close() error { return s.db.Close() }

// Create persists a new scheduled job.
func (s *ScheduleStore) Create(job *ScheduledJob) error {
	if job.ID == "" {
		job.ID = GenerateScheduleID()
	}
	job.CreatedAt = time.Now()

	params, err := marshalParams(job.Params)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO scheduled_jobs (id, ast_name, params, credential_name, session_id,
			cron_spec, interval_sec, max_sessions, cooldown_sec, max_runs, run_count, enabled, created_at, last_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.ASTName, params, job.CredentialName, job.SessionID,
		job.CronSpec, job.IntervalSec, job.MaxSessions, job.CooldownSec, job.MaxRuns, job.RunCount,
		boolToInt(job.Enabled), job.CreatedAt.UTC().Format(time.RFC3339Nano), nullTime(job.LastRunAt))
	if err != nil {
		return fmt.Errorf("create scheduled job: %w", err)
	}
	return nil
}

// Update rewrites an existing scheduled job's persisted state.
func (s *ScheduleStore) Update(job *ScheduledJob) error {
	params, err := marshalParams(job.Params)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE scheduled_jobs SET
			ast_name = ?, params = ?, credential_name = ?, session_id = ?,
			cron_spec = ?, interval_sec = ?, max_sessions = ?, cooldown_sec = ?,
			max_runs = ?, run_count = ?, enabled = ?, last_run_at = ?
		WHERE id = ?
	`, job.ASTName, params, job.CredentialName, job.SessionID,
		job.CronSpec, job.IntervalSec, job.MaxSessions, job.CooldownSec,
		job.MaxRuns, job.RunCount, boolToInt(job.Enabled), nullTime(job.LastRunAt), job.ID)
	if err != nil {
		return fmt.Errorf("update scheduled job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update scheduled job: no record for id %s", job.ID)
	}
	return nil
}

// Delete removes a scheduled job.
func (s *ScheduleStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled job: %w", err)
	}
	return nil
}

// Get reads a scheduled job by ID.
func (s *ScheduleStore) Get(id string) (*ScheduledJob, error) {
	row := s.db.QueryRow(`
		SELECT id, ast_name, params, credential_name, session_id, cron_spec, interval_sec,
			max_sessions, cooldown_sec, max_runs, run_count, enabled, created_at, last_run_at
		FROM scheduled_jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// List returns all scheduled jobs, sorted by CreatedAt descending.
func (s *ScheduleStore) List() ([]*ScheduledJob, error) {
	rows, err := s.db.Query(`
		SELECT id, ast_name, params, credential_name, session_id, cron_spec, interval_sec,
			max_sessions, cooldown_sec, max_runs, run_count, enabled, created_at, last_run_at
		FROM scheduled_jobs
	`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue // skip corrupted rows
		}
		out = append(out, job)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ScheduledJob, error) {
	var job ScheduledJob
	var params sql.NullString
	var cronSpec sql.NullString
	var createdAt string
	var lastRunAt sql.NullString
	var enabled int

	if err := row.Scan(&job.ID, &job.ASTName, &params, &job.CredentialName, &job.SessionID,
		&cronSpec, &job.IntervalSec, &job.MaxSessions, &job.CooldownSec, &job.MaxRuns, &job.RunCount,
		&enabled, &createdAt, &lastRunAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan scheduled job: %w", err)
	}

	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &job.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	job.CronSpec = cronSpec.String
	job.Enabled = enabled != 0
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRunAt.String)
		if err == nil {
			job.LastRunAt = &t
		}
	}
	return &job, nil
}

func marshalParams(params map[string]any) (any, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
