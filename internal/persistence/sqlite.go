package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/iast-gateway/internal/ast"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	session_id    TEXT NOT NULL,
	execution_id  TEXT NOT NULL,
	ast_name      TEXT NOT NULL,
	user_id       TEXT,
	host_user     TEXT,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	message       TEXT,
	error         TEXT,
	item_count    INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, execution_id)
);

CREATE TABLE IF NOT EXISTS item_results (
	execution_id  TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	completed_at  TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL,
	error         TEXT,
	data          TEXT,
	PRIMARY KEY (execution_id, item_id)
);
`

// SQLiteStore is a modernc.org/sqlite-backed Store. Upserts use
// INSERT ... ON CONFLICT DO UPDATE so a retried write is idempotent without
// an application-level read-modify-write race.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and migrates) a sqlite database at dsn.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutExecution(rec ExecutionRecord) error {
	var completedAt any
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.Exec(`
		INSERT INTO executions (session_id, execution_id, ast_name, user_id, host_user, status,
			started_at, completed_at, message, error, item_count, success_count, failed_count, skipped_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, execution_id) DO UPDATE SET
			ast_name = excluded.ast_name,
			user_id = excluded.user_id,
			host_user = excluded.host_user,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			message = excluded.message,
			error = excluded.error,
			item_count = excluded.item_count,
			success_count = excluded.success_count,
			failed_count = excluded.failed_count,
			skipped_count = excluded.skipped_count
	`,
		rec.SessionID, rec.ExecutionID, rec.ASTName, rec.UserID, rec.HostUser, string(rec.Status),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), completedAt, rec.Message, rec.Error,
		rec.ItemCount, rec.SuccessCount, rec.FailedCount, rec.SkippedCount,
	)
	if err != nil {
		return fmt.Errorf("put execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateExecution(sessionID, executionID string, patch ExecutionPatch) error {
	var completedAt any
	if patch.CompletedAt != nil {
		completedAt = patch.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	res, err := s.db.Exec(`
		UPDATE executions SET
			status = ?, completed_at = ?, message = ?, error = ?,
			success_count = ?, failed_count = ?, skipped_count = ?
		WHERE session_id = ? AND execution_id = ?
	`, string(patch.Status), completedAt, patch.Message, patch.Error,
		patch.SuccessCount, patch.FailedCount, patch.SkippedCount,
		sessionID, executionID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update execution: no record for (%s, %s)", sessionID, executionID)
	}
	return nil
}

func (s *SQLiteStore) PutItemResult(rec ItemResultRecord) error {
	var data any
	if rec.Data != nil {
		b, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("marshal item data: %w", err)
		}
		data = string(b)
	}

	_, err := s.db.Exec(`
		INSERT INTO item_results (execution_id, item_id, status, started_at, completed_at, duration_ms, error, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, item_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			error = excluded.error,
			data = excluded.data
	`,
		rec.ExecutionID, rec.ItemID, string(rec.Status),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		rec.DurationMS, rec.Error, data,
	)
	if err != nil {
		return fmt.Errorf("put item result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExecution(sessionID, executionID string) (*ExecutionRecord, error) {
	row := s.db.QueryRow(`
		SELECT session_id, execution_id, ast_name, user_id, host_user, status,
			started_at, completed_at, message, error, item_count, success_count, failed_count, skipped_count
		FROM executions WHERE session_id = ? AND execution_id = ?
	`, sessionID, executionID)

	var rec ExecutionRecord
	var status string
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(&rec.SessionID, &rec.ExecutionID, &rec.ASTName, &rec.UserID, &rec.HostUser, &status,
		&startedAt, &completedAt, &rec.Message, &rec.Error,
		&rec.ItemCount, &rec.SuccessCount, &rec.FailedCount, &rec.SkippedCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}

	rec.Status = ast.ExecutionStatus(status)
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func (s *SQLiteStore) ListItemResults(executionID string) ([]ItemResultRecord, error) {
	rows, err := s.db.Query(`
		SELECT execution_id, item_id, status, started_at, completed_at, duration_ms, error, data
		FROM item_results WHERE execution_id = ? ORDER BY rowid
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list item results: %w", err)
	}
	defer rows.Close()

	var out []ItemResultRecord
	for rows.Next() {
		var rec ItemResultRecord
		var status, startedAt, completedAt string
		var data sql.NullString
		if err := rows.Scan(&rec.ExecutionID, &rec.ItemID, &status, &startedAt, &completedAt,
			&rec.DurationMS, &rec.Error, &data); err != nil {
			return nil, fmt.Errorf("scan item result: %w", err)
		}
		rec.Status = ast.ItemStatus(status)
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		if data.Valid {
			_ = json.Unmarshal([]byte(data.String), &rec.Data)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
