package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/outbox"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepo is the postgres-backed transactional outbox: rows are
// appended in the same transaction as the state change that produced
// them (AppendTx), then claimed by the worker with FOR UPDATE SKIP
// LOCKED so multiple worker replicas never double-process a message.
// Adapted from JobsRepo's pending/processing/done/failed state machine.
type OutboxRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewOutboxRepo(pool *pgxpool.Pool, prom *observability.Prom) *OutboxRepo {
	return &OutboxRepo{pool: pool, prom: prom}
}

func (r *OutboxRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// AppendTx inserts a pending message within tx. It is the method the
// internal/events.Dispatcher calls through the OutboxAppender
// interface - every domain event, sync or async, lands here.
func (r *OutboxRepo) AppendTx(ctx context.Context, tx pgx.Tx, eventType string, payload []byte) error {
	msg := outbox.New(outbox.CreateRequest{EventType: eventType, Payload: payload})

	op := "outbox.append_tx"
	return r.observe(op, func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox_messages(
				id, event_type, payload, occurred_on, status,
				try_count, max_tries, next_attempt_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, msg.ID, msg.EventType, msg.Payload, msg.OccurredOn, string(msg.Status),
			msg.TryCount, msg.MaxTries, msg.NextAttemptAt, msg.CreatedAt)
		return err
	})
}

// ClaimNext claims one pending, due message for workerID, the same
// CTE + FOR UPDATE SKIP LOCKED shape as JobsRepo.ClaimNext.
func (r *OutboxRepo) ClaimNext(ctx context.Context, workerID string) (outbox.Message, error) {
	var m outbox.Message
	var status string

	op := "outbox.claim_next"
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM outbox_messages
				WHERE status = 'pending'
				  AND next_attempt_at <= NOW()
				  AND try_count < max_tries
				ORDER BY next_attempt_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE outbox_messages
			SET status = 'claimed',
			    claimed_at = NOW(),
			    claimed_by = $1
			WHERE id = (SELECT id FROM next)
			RETURNING id, event_type, payload, occurred_on, status,
			          try_count, max_tries, last_error, next_attempt_at,
			          claimed_by, claimed_at, created_at
		`, workerID).Scan(
			&m.ID, &m.EventType, &m.Payload, &m.OccurredOn, &status,
			&m.TryCount, &m.MaxTries, &m.LastError, &m.NextAttemptAt,
			&m.ClaimedBy, &m.ClaimedAt, &m.CreatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return outbox.Message{}, outbox.ErrNotFound
		}
		return outbox.Message{}, err
	}

	m.Status = outbox.Status(status)
	return m, nil
}

// MarkDone marks a claimed message processed.
func (r *OutboxRepo) MarkDone(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	op := "outbox.mark_done"
	err := r.observe(op, func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `
			UPDATE outbox_messages
			SET status = 'processed', claimed_at = NULL, claimed_by = NULL
			WHERE id = $1
		`, id)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrNotFound
	}
	return nil
}

// Reschedule requeues a message for retry at nextAttempt, incrementing
// try_count and recording the failure, or dead-letters it once
// try_count has reached max_tries.
func (r *OutboxRepo) Reschedule(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error {
	var tag pgconn.CommandTag
	op := "outbox.reschedule"
	err := r.observe(op, func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `
			UPDATE outbox_messages
			SET status = CASE WHEN try_count + 1 >= max_tries THEN 'failed' ELSE 'pending' END,
			    try_count = try_count + 1,
			    next_attempt_at = $2,
			    last_error = $3,
			    claimed_at = NULL,
			    claimed_by = NULL
			WHERE id = $1
		`, id, nextAttempt, errMsg)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrNotFound
	}
	return nil
}

// RequeueStaleClaimed recovers messages a crashed worker left claimed
// past lockTTL, the outbox counterpart of JobsRepo.RequeueStaleProcessing.
func (r *OutboxRepo) RequeueStaleClaimed(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var rows int64
	op := "outbox.requeue_stale"
	err := r.observe(op, func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE outbox_messages
			SET status = 'pending', claimed_at = NULL, claimed_by = NULL
			WHERE status = 'claimed'
			  AND claimed_at IS NOT NULL
			  AND claimed_at < NOW() - ($1 * INTERVAL '1 second')
		`, secs)
		if e != nil {
			return e
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

// ListDeadLetters returns failed messages for admin inspection/retry.
func (r *OutboxRepo) ListDeadLetters(ctx context.Context, limit int) ([]outbox.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	op := "outbox.list_dead_letters"
	var rows pgx.Rows
	err := r.observe(op, func() error {
		var e error
		rows, e = r.pool.Query(ctx, `
			SELECT id, event_type, payload, occurred_on, status,
			       try_count, max_tries, last_error, next_attempt_at,
			       claimed_by, claimed_at, created_at
			FROM outbox_messages
			WHERE status = 'failed'
			ORDER BY occurred_on DESC
			LIMIT $1
		`, limit)
		return e
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]outbox.Message, 0, limit)
	for rows.Next() {
		var m outbox.Message
		var status string
		if err := rows.Scan(
			&m.ID, &m.EventType, &m.Payload, &m.OccurredOn, &status,
			&m.TryCount, &m.MaxTries, &m.LastError, &m.NextAttemptAt,
			&m.ClaimedBy, &m.ClaimedAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.Status = outbox.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Retry moves one dead-lettered message back to pending for immediate
// redelivery, the outbox counterpart of JobsRepo.Retry.
func (r *OutboxRepo) Retry(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	op := "outbox.retry"
	err := r.observe(op, func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `
			UPDATE outbox_messages
			SET status = 'pending',
			    try_count = 0,
			    next_attempt_at = NOW(),
			    last_error = NULL,
			    claimed_at = NULL,
			    claimed_by = NULL
			WHERE id = $1 AND status = 'failed'
		`, id)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrNotFound
	}
	return nil
}
