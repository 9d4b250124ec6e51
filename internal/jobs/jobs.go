// Package jobs is the async job runner: deferred units of work persisted
// in Postgres and executed by worker loops with bounded retries, a fixed
// backoff, and an absolute deadline. Exhausted jobs dead-letter into an
// admin alert.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conf is the Postgres-backed job store.
type Conf struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db, nowFunc: time.Now}, nil
}

// EnqueueTx inserts a job inside the caller's transaction so the job
// becomes visible if and only if the triggering state change commits.
func (c *Conf) EnqueueTx(ctx context.Context, tx *sql.Tx, kind, entityID string, payload any) (string, error) {
	return enqueue(ctx, tx, c.nowFunc(), kind, entityID, payload)
}

// Enqueue inserts a job outside any caller transaction.
func (c *Conf) Enqueue(ctx context.Context, kind, entityID string, payload any) (string, error) {
	return enqueue(ctx, c.db, c.nowFunc(), kind, entityID, payload)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func enqueue(ctx context.Context, db execer, now time.Time, kind, entityID string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	p := PolicyFor(kind)
	jobID := uuid.NewString()
	_, err = db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, entity_id, queue, status, attempts, max_attempts, payload, run_at, deadline)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)
	`, jobID, kind, entityID, p.Queue, StatusQueued, p.MaxAttempts, body, now, now.Add(p.TTL))
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return jobID, nil
}

// ClaimDue picks the oldest due job on the queue, increments its attempt
// counter and marks it running, all in one transaction. SKIP LOCKED lets
// concurrent workers on the same lane claim disjoint jobs. Returns
// (nil, nil) when nothing is due.
func (c *Conf) ClaimDue(ctx context.Context, queue string) (*Job, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var job Job
	err = tx.QueryRowContext(ctx, `
		SELECT id, kind, entity_id, queue, status, attempts, max_attempts, payload,
		       COALESCE(last_error, ''), run_at, deadline, created_at, updated_at
		FROM jobs
		WHERE queue = $1 AND status = $2 AND run_at <= NOW()
		ORDER BY run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, queue, StatusQueued).Scan(
		&job.ID, &job.Kind, &job.EntityID, &job.Queue, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.Payload, &job.LastError, &job.RunAt, &job.Deadline, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select due job: %w", err)
	}

	job.Attempts++
	job.Status = StatusRunning
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, attempts = $2, updated_at = NOW() WHERE id = $3`,
		StatusRunning, job.Attempts, job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &job, nil
}

// MarkDone finalizes a successfully executed job.
func (c *Conf) MarkDone(ctx context.Context, jobID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, last_error = NULL, updated_at = NOW() WHERE id = $2`,
		StatusDone, jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s done: %w", jobID, err)
	}
	return nil
}

// Reschedule puts a failed job back on the queue for a later attempt.
func (c *Conf) Reschedule(ctx context.Context, job Job, runAt time.Time, lastError string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, run_at = $2, last_error = $3, updated_at = NOW() WHERE id = $4`,
		StatusQueued, runAt, lastError, job.ID,
	)
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}
	return nil
}

// MarkDead dead-letters a job whose retry budget is exhausted.
func (c *Conf) MarkDead(ctx context.Context, job Job, lastError string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`,
		StatusDead, lastError, job.ID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s dead: %w", job.ID, err)
	}
	return nil
}
