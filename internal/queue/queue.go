// Package queue implements the task queue: a durable, fair,
// exactly-once-at-a-time delivery mechanism for derivation work, backed by
// Postgres `SELECT ... FOR UPDATE SKIP LOCKED` so concurrent claimers never
// block each other. Generalizes a non-blocking claim discipline from a
// single-row optimistic update to a skip-locked queue drain.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osgeo/wikiqa/internal/apperr"
	"github.com/osgeo/wikiqa/internal/types"
)

// Queue is the Task Queue.
type Queue struct {
	pool        *pgxpool.Pool
	claimTTL    time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
}

// New constructs a Queue. claimTTL bounds how long a claimed row may be held
// before ReapExpired returns it to pending; backoffBase/backoffMax bound the
// exponential re-queue delay used by Complete on failure.
func New(pool *pgxpool.Pool, claimTTL, backoffBase, backoffMax time.Duration) *Queue {
	return &Queue{pool: pool, claimTTL: claimTTL, backoffBase: backoffBase, backoffMax: backoffMax}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.KindTransient, op, err)
}

// Enqueue inserts a new pending row for (pageID, taskType) unless one
// already exists in {pending, claimed}, in which case it returns
// (0, false, nil): the duplicate is an integrity condition absorbed
// silently, not surfaced to the caller as an error.
func (q *Queue) Enqueue(ctx context.Context, pageID, sourcePageID int64, taskType types.TaskType, priority, maxAttempts int) (queueID int64, created bool, err error) {
	err = q.pool.QueryRow(ctx, `
		INSERT INTO task_queue (page_id, source_page_id, task_type, priority, max_attempts, status, enqueued_at, next_eligible_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
		ON CONFLICT (page_id, task_type) WHERE status IN ('pending','claimed') DO NOTHING
		RETURNING id`,
		pageID, sourcePageID, taskType, priority, maxAttempts,
	).Scan(&queueID)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr("queue.Enqueue", err)
	}
	return queueID, true, nil
}

// Claimed is the row returned by Claim.
type Claimed struct {
	QueueID      int64
	PageID       int64
	SourcePageID int64
	Attempts     int
}

// Claim atomically selects the oldest eligible pending row for taskType
// (priority DESC, enqueued_at ASC), marks it claimed, bumps attempts, sets
// claim_expires_at = now()+claimTTL, and returns it. Uses
// `FOR UPDATE SKIP LOCKED` so concurrent claimers never block each other;
// returns (nil, nil) when no eligible row exists.
func (q *Queue) Claim(ctx context.Context, taskType types.TaskType) (*Claimed, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr("queue.Claim begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var c Claimed
	err = tx.QueryRow(ctx, `
		SELECT id, page_id, source_page_id, attempts
		FROM task_queue
		WHERE task_type = $1 AND status = 'pending' AND next_eligible_at <= now()
		ORDER BY priority DESC, enqueued_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
		taskType,
	).Scan(&c.QueueID, &c.PageID, &c.SourcePageID, &c.Attempts)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("queue.Claim select", err)
	}

	c.Attempts++
	if _, err := tx.Exec(ctx, `
		UPDATE task_queue
		SET status = 'claimed', claimed_at = now(), claim_expires_at = now() + $1, attempts = $2
		WHERE id = $3`,
		q.claimTTL, c.Attempts, c.QueueID,
	); err != nil {
		return nil, wrapErr("queue.Claim update", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("queue.Claim commit", err)
	}
	return &c, nil
}

// Complete finalizes queueID. On success it's marked succeeded. On failure
// with attempts below max_attempts it's re-queued to pending with an
// exponential (capped) backoff; once max_attempts is exhausted it's marked
// dead and lastError is recorded permanently.
func (q *Queue) Complete(ctx context.Context, queueID int64, success bool, lastError string) error {
	if success {
		_, err := q.pool.Exec(ctx, `UPDATE task_queue SET status = 'succeeded' WHERE id = $1`, queueID)
		return wrapErr("queue.Complete success", err)
	}

	var attempts, maxAttempts int
	err := q.pool.QueryRow(ctx, `SELECT attempts, max_attempts FROM task_queue WHERE id = $1`, queueID).Scan(&attempts, &maxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.KindContent, "queue.Complete", fmt.Errorf("queue row %d not found", queueID))
	}
	if err != nil {
		return wrapErr("queue.Complete lookup", err)
	}

	if attempts >= maxAttempts {
		_, err := q.pool.Exec(ctx, `
			UPDATE task_queue SET status = 'dead', last_error = $1 WHERE id = $2`,
			lastError, queueID)
		return wrapErr("queue.Complete dead", err)
	}

	delay := q.backoff(attempts)
	_, err = q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'pending', last_error = $1, next_eligible_at = now() + $2,
		    claimed_at = NULL, claim_expires_at = NULL
		WHERE id = $3`,
		lastError, delay, queueID)
	return wrapErr("queue.Complete requeue", err)
}

// backoff returns the exponential backoff (capped at backoffMax) for the
// given attempt count.
func (q *Queue) backoff(attempts int) time.Duration {
	d := time.Duration(float64(q.backoffBase) * math.Pow(2, float64(attempts-1)))
	if d > q.backoffMax {
		return q.backoffMax
	}
	if d < q.backoffBase {
		return q.backoffBase
	}
	return d
}

// ReapExpired returns every claimed row whose claim_expires_at has passed to
// pending, with attempts left unchanged, so a crashed worker's claim cannot
// starve the queue. Returns the number of rows reaped.
func (q *Queue) ReapExpired(ctx context.Context) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'pending', claimed_at = NULL, claim_expires_at = NULL
		WHERE status = 'claimed' AND claim_expires_at < now()`)
	if err != nil {
		return 0, wrapErr("queue.ReapExpired", err)
	}
	return int(tag.RowsAffected()), nil
}
