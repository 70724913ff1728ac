package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *TaskRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/dispatcher startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS recognition_tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	callback_url TEXT NOT NULL DEFAULT '',
	allow_insecure_callback BOOLEAN NOT NULL DEFAULT FALSE,
	result JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	callback_outcome TEXT NOT NULL DEFAULT '',
	callback_error TEXT NOT NULL DEFAULT '',
	callback_claimed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recognition_tasks_status ON recognition_tasks(status);
CREATE INDEX IF NOT EXISTS idx_recognition_tasks_created_at ON recognition_tasks(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO recognition_tasks (id, status, callback_url, allow_insecure_callback, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`,
		task.ID, string(task.Status), task.CallbackURL, task.AllowInsecureCallback, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, status, callback_url, allow_insecure_callback, result, error_message, callback_outcome, callback_error, created_at, updated_at
FROM recognition_tasks
WHERE id = $1
`, id)

	var task domain.Task
	var status, outcome string
	var resultRaw []byte

	err := row.Scan(
		&task.ID, &status, &task.CallbackURL, &task.AllowInsecureCallback,
		&resultRaw, &task.Error, &outcome, &task.CallbackError,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTaskNotFound, "get task", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &task.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result labels: %w", err)
		}
	}
	task.Status = domain.TaskStatus(status)
	task.CallbackOutcome = domain.CallbackOutcome(outcome)
	return &task, nil
}

// Complete upserts the terminal outcome. The WHERE guard on the conflict
// branch keeps terminal rows immutable: a redelivered storage event for an
// already-completed task updates zero rows. Absent rows are created so an
// unresolved upload still leaves a readable failure record.
func (r *TaskRepository) Complete(ctx context.Context, id string, status domain.TaskStatus, result []domain.Label, errMessage string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("complete task with non-terminal status %q", status)
	}

	var resultRaw any
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return false, fmt.Errorf("marshal result labels: %w", err)
		}
		resultRaw = raw
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO recognition_tasks (id, status, result, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    result = EXCLUDED.result,
    error_message = EXCLUDED.error_message,
    updated_at = EXCLUDED.updated_at
WHERE recognition_tasks.status = $6
`, id, string(status), resultRaw, errMessage, now, string(domain.StatusAwaitingUpload))
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task rows affected: %w", err)
	}
	return rows > 0, nil
}

// ClaimCallback fences the delivery attempt: only the first caller flips the
// claim column, everyone else sees zero rows and backs off.
func (r *TaskRepository) ClaimCallback(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE recognition_tasks
SET callback_claimed_at = $2
WHERE id = $1 AND callback_claimed_at IS NULL AND callback_outcome = ''
`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim callback: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim callback rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *TaskRepository) RecordCallbackOutcome(ctx context.Context, id string, delivered bool, message string) error {
	outcome := domain.CallbackFailed
	if delivered {
		outcome = domain.CallbackDelivered
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE recognition_tasks
SET callback_outcome = $2, callback_error = $3, updated_at = $4
WHERE id = $1 AND callback_outcome = ''
`, id, string(outcome), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record callback outcome: %w", err)
	}
	return nil
}
