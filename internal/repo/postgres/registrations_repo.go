package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/events/handlers"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RegistrationRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationRepo {
	return &RegistrationRepo{
		pool: pool,
		prom: prom,
	}
}

func (repo *RegistrationRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *RegistrationRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.BeginTx(ctx, pgx.TxOptions{})
}

// advisoryLockKey hashes an event ID into the int64 key
// pg_advisory_xact_lock expects. FNV-1a gives a well-distributed,
// deterministic key so two processes locking the same event ID always
// contend on the same lock, and different event IDs essentially never
// collide.
func advisoryLockKey(eventID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(eventID))
	return int64(h.Sum64())
}

// lockEvent serializes every waitlist-position-affecting operation for
// one event_id: registering, cancelling, promoting, and reindexing all
// take this lock first, so only one of them touches that event's
// queue at a time. The lock is released automatically at tx
// commit/rollback; other events' locks are entirely unaffected.
func (repo *RegistrationRepo) lockEvent(ctx context.Context, tx pgx.Tx, eventID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(eventID))
	return err
}

// RegisterTx is the core waitlist-assignment algorithm: lock the
// event, reject a duplicate active registration, then assign Confirmed
// if a seat is free or Waitlisted (at the tail of the queue) if not.
func (repo *RegistrationRepo) RegisterTx(ctx context.Context, tx pgx.Tx, req registration.CreateRegistrationRequest) (reg registration.Registration, err error) {
	if err = repo.lockEvent(ctx, tx, req.EventID); err != nil {
		return
	}

	var capacity int
	var isPublished, isWaitlistOpen bool
	var startAt time.Time

	err = repo.observe("registrations.register_tx.load_event", func() error {
		return tx.QueryRow(ctx, `
			SELECT capacity, is_published, is_waitlist_open, start_at
			FROM events
			WHERE id = $1
		`, req.EventID).Scan(&capacity, &isPublished, &isWaitlistOpen, &startAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}
		return
	}
	if !isPublished {
		err = event.ErrNotPublished
		return
	}
	if !startAt.After(time.Now().UTC()) {
		err = event.ErrAlreadyStarted
		return
	}

	var alreadyActive bool
	err = repo.observe("registrations.register_tx.duplicate_check", func() error {
		return tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM registrations
				WHERE event_id = $1 AND user_id = $2
				  AND status NOT IN ($3, $4)
			)
		`, req.EventID, req.UserID, int(registration.StatusCancelled), int(registration.StatusNoShow)).Scan(&alreadyActive)
	})
	if err != nil {
		return
	}
	if alreadyActive {
		err = registration.ErrAlreadyRegistered
		return
	}

	var confirmedCount int
	err = repo.observe("registrations.register_tx.count_confirmed", func() error {
		return tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM registrations
			WHERE event_id = $1 AND status = $2
		`, req.EventID, int(registration.StatusConfirmed)).Scan(&confirmedCount)
	})
	if err != nil {
		return
	}

	var status registration.Status
	var position *int

	if confirmedCount < capacity {
		status = registration.StatusConfirmed
	} else {
		if !isWaitlistOpen {
			err = event.ErrWaitlistClosed
			return
		}

		var nextPos int
		err = repo.observe("registrations.register_tx.next_position", func() error {
			return tx.QueryRow(ctx, `
				SELECT COALESCE(MAX(position_in_queue), 0) + 1
				FROM registrations
				WHERE event_id = $1 AND status = $2
			`, req.EventID, int(registration.StatusWaitlisted)).Scan(&nextPos)
		})
		if err != nil {
			return
		}
		status = registration.StatusWaitlisted
		position = &nextPos
	}

	reg = registration.New(req, status, position)

	err = repo.observe("registrations.register_tx.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO registrations (
				id, event_id, user_id, status, position_in_queue,
				notes, registered_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, reg.ID, reg.EventID, reg.UserID, int(reg.Status), reg.PositionInQueue,
			reg.Notes, reg.RegisteredAt, reg.UpdatedAt)
		return e
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = registration.ErrAlreadyRegistered
		}
		return
	}

	return
}

// CancelTx transitions a registration to Cancelled. The caller (the
// registration service) is responsible for emitting
// RegistrationCancelled afterward, inside the same tx, so Promotion
// and Reindex run before the command returns.
func (repo *RegistrationRepo) CancelTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string) (reg registration.Registration, err error) {
	if err = repo.lockEvent(ctx, tx, eventID); err != nil {
		return
	}

	reg, err = repo.getForUpdateTx(ctx, tx, eventID, registrationID)
	if err != nil {
		return
	}

	if reg.IsTerminal() {
		err = registration.ErrInvalidState
		return
	}

	now := time.Now().UTC()
	err = repo.observe("registrations.cancel_tx.update", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE registrations
			SET status = $3, position_in_queue = NULL, updated_at = $4
			WHERE id = $1 AND event_id = $2
		`, registrationID, eventID, int(registration.StatusCancelled), now)
		return e
	})
	if err != nil {
		return
	}

	reg.Status = registration.StatusCancelled
	reg.PositionInQueue = nil
	reg.UpdatedAt = now
	return
}

// MarkAttendanceTx records a confirmed registration's check-in result.
func (repo *RegistrationRepo) MarkAttendanceTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string, attended bool) (reg registration.Registration, err error) {
	reg, err = repo.getForUpdateTx(ctx, tx, eventID, registrationID)
	if err != nil {
		return
	}
	if reg.Status != registration.StatusConfirmed {
		err = registration.ErrInvalidState
		return
	}

	newStatus := registration.StatusNoShow
	if attended {
		newStatus = registration.StatusAttended
	}

	now := time.Now().UTC()
	err = repo.observe("registrations.mark_attendance_tx", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE registrations SET status = $3, updated_at = $4
			WHERE id = $1 AND event_id = $2
		`, registrationID, eventID, int(newStatus), now)
		return e
	})
	if err != nil {
		return
	}

	reg.Status = newStatus
	reg.UpdatedAt = now
	return
}

// ConfirmRegistrationTx is the admin-initiated counterpart to
// PromoteNextWaitlisted: it force-confirms one specific Pending or
// Waitlisted registration out of FIFO order. The caller emits
// RegistrationPromoted (and, if the prior status was Waitlisted, a
// WaitlistRemoval to trigger the gap-closing reindex) afterward.
func (repo *RegistrationRepo) ConfirmRegistrationTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string) (reg registration.Registration, priorStatus registration.Status, err error) {
	if err = repo.lockEvent(ctx, tx, eventID); err != nil {
		return
	}

	reg, err = repo.getForUpdateTx(ctx, tx, eventID, registrationID)
	if err != nil {
		return
	}

	if reg.Status != registration.StatusPending && reg.Status != registration.StatusWaitlisted {
		err = registration.ErrInvalidState
		return
	}
	priorStatus = reg.Status

	now := time.Now().UTC()
	err = repo.observe("registrations.confirm_tx", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE registrations
			SET status = $3, position_in_queue = NULL, updated_at = $4
			WHERE id = $1 AND event_id = $2
		`, registrationID, eventID, int(registration.StatusConfirmed), now)
		return e
	})
	if err != nil {
		return
	}

	reg.Status = registration.StatusConfirmed
	reg.PositionInQueue = nil
	reg.UpdatedAt = now
	return
}

// GetActiveForUser finds the single non-cancelled registration for
// (eventID, userID), used by the service layer to return the original
// result of an idempotent Register replay.
func (repo *RegistrationRepo) GetActiveForUser(ctx context.Context, eventID, userID string) (reg registration.Registration, err error) {
	var status int
	err = repo.observe("registrations.get_active_for_user", func() error {
		return repo.pool.QueryRow(ctx, `
			SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
			FROM registrations
			WHERE event_id = $1 AND user_id = $2
			  AND status NOT IN ($3, $4)
		`, eventID, userID, int(registration.StatusCancelled), int(registration.StatusNoShow)).Scan(
			&reg.ID, &reg.EventID, &reg.UserID, &status, &reg.PositionInQueue,
			&reg.Notes, &reg.RegisteredAt, &reg.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}
	reg.Status = registration.Status(status)
	return
}

func (repo *RegistrationRepo) getForUpdateTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string) (reg registration.Registration, err error) {
	var status int
	err = repo.observe("registrations.get_for_update_tx", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
			FROM registrations
			WHERE id = $1 AND event_id = $2
			FOR UPDATE
		`, registrationID, eventID).Scan(
			&reg.ID, &reg.EventID, &reg.UserID, &status, &reg.PositionInQueue,
			&reg.Notes, &reg.RegisteredAt, &reg.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}
	reg.Status = registration.Status(status)
	return
}

// PromoteNextWaitlisted implements handlers.RegistrationsStore: it
// confirms the longest-waiting waitlisted registration for eventID, or
// returns (nil, nil) if the waitlist is empty. Caller must already
// hold the event's advisory lock (true for every sync handler, since
// they run inside the same tx as a RegisterTx/CancelTx that took it).
func (repo *RegistrationRepo) PromoteNextWaitlisted(ctx context.Context, tx pgx.Tx, eventID string) (*registration.Registration, error) {
	var reg registration.Registration
	var status int

	err := repo.observe("registrations.promote_next.select", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
			FROM registrations
			WHERE event_id = $1 AND status = $2
			ORDER BY position_in_queue ASC
			LIMIT 1
			FOR UPDATE
		`, eventID, int(registration.StatusWaitlisted)).Scan(
			&reg.ID, &reg.EventID, &reg.UserID, &status, &reg.PositionInQueue,
			&reg.Notes, &reg.RegisteredAt, &reg.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	err = repo.observe("registrations.promote_next.update", func() error {
		_, e := tx.Exec(ctx, `
			UPDATE registrations
			SET status = $3, position_in_queue = NULL, updated_at = $4
			WHERE id = $1 AND event_id = $2
		`, reg.ID, eventID, int(registration.StatusConfirmed), now)
		return e
	})
	if err != nil {
		return nil, err
	}

	reg.Status = registration.StatusConfirmed
	reg.PositionInQueue = nil
	reg.UpdatedAt = now
	return &reg, nil
}

// ReindexWaitlist re-numbers the waitlist for eventID to a contiguous
// 1..N sequence in existing position order, and reports every
// registration whose position actually moved.
func (repo *RegistrationRepo) ReindexWaitlist(ctx context.Context, tx pgx.Tx, eventID string) ([]handlers.WaitlistReindexChange, error) {
	type row struct {
		id     string
		userID string
		pos    int
	}

	var rows []row
	err := repo.observe("registrations.reindex.select", func() error {
		r, e := tx.Query(ctx, `
			SELECT id, user_id, position_in_queue
			FROM registrations
			WHERE event_id = $1 AND status = $2
			ORDER BY position_in_queue ASC
			FOR UPDATE
		`, eventID, int(registration.StatusWaitlisted))
		if e != nil {
			return e
		}
		defer r.Close()
		for r.Next() {
			var x row
			if e := r.Scan(&x.id, &x.userID, &x.pos); e != nil {
				return e
			}
			rows = append(rows, x)
		}
		return r.Err()
	})
	if err != nil {
		return nil, err
	}

	var changes []handlers.WaitlistReindexChange
	now := time.Now().UTC()

	for i, x := range rows {
		newPos := i + 1
		if newPos == x.pos {
			continue
		}

		if err := repo.observe("registrations.reindex.update", func() error {
			_, e := tx.Exec(ctx, `
				UPDATE registrations SET position_in_queue = $2, updated_at = $3
				WHERE id = $1
			`, x.id, newPos, now)
			return e
		}); err != nil {
			return nil, err
		}

		changes = append(changes, handlers.WaitlistReindexChange{
			RegistrationID: x.id,
			UserID:         x.userID,
			OldPosition:    x.pos,
			NewPosition:    newPos,
		})
	}

	return changes, nil
}

func (repo *RegistrationRepo) ListByEvent(ctx context.Context, eventID string) (regs []registration.Registration, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.list_by_event", func() error {
		rows, err = repo.pool.Query(ctx,
			`
	SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
	FROM registrations
	WHERE event_id = $1
	ORDER BY registered_at ASC, id ASC
	`,
			eventID,
		)
		return err
	})

	if err != nil {
		return
	}

	defer rows.Close()

	regs = make([]registration.Registration, 0)

	for rows.Next() {
		var r registration.Registration
		var status int

		e := rows.Scan(&r.ID, &r.EventID, &r.UserID, &status, &r.PositionInQueue, &r.Notes, &r.RegisteredAt, &r.UpdatedAt)

		if e != nil {
			err = e
			return
		}
		r.Status = registration.Status(status)
		regs = append(regs, r)
	}

	e := rows.Err()

	if e != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues("registrations.list_by_event", "rows_err").Inc()
		}
		err = e
		return
	}

	if len(regs) == 0 {
		var dummy string

		err = repo.observe("registrations.list_by_event.check_event_exists", func() error {
			return repo.pool.QueryRow(ctx, `SELECT id FROM events WHERE id = $1`, eventID).Scan(&dummy)
		})

		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound

			return
		}

		if err != nil {
			return
		}
	}

	return
}

// ListByUser returns every registration a user holds, across events,
// newest first - the registrations half of the DSAR export payload.
func (repo *RegistrationRepo) ListByUser(ctx context.Context, userID string) (regs []registration.Registration, err error) {
	var rows pgx.Rows
	err = repo.observe("registrations.list_by_user", func() error {
		rows, err = repo.pool.Query(ctx, `
			SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
			FROM registrations
			WHERE user_id = $1
			ORDER BY registered_at DESC, id DESC
		`, userID)
		return err
	})
	if err != nil {
		return
	}
	defer rows.Close()

	regs = make([]registration.Registration, 0)
	for rows.Next() {
		var r registration.Registration
		var status int
		if e := rows.Scan(&r.ID, &r.EventID, &r.UserID, &status, &r.PositionInQueue, &r.Notes, &r.RegisteredAt, &r.UpdatedAt); e != nil {
			err = e
			return
		}
		r.Status = registration.Status(status)
		regs = append(regs, r)
	}
	err = rows.Err()
	return
}

// ListWaitlisted returns the waitlist for eventID in position order.
func (repo *RegistrationRepo) ListWaitlisted(ctx context.Context, eventID string) (regs []registration.Registration, err error) {
	var rows pgx.Rows
	err = repo.observe("registrations.list_waitlisted", func() error {
		rows, err = repo.pool.Query(ctx, `
			SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
			FROM registrations
			WHERE event_id = $1 AND status = $2
			ORDER BY position_in_queue ASC
		`, eventID, int(registration.StatusWaitlisted))
		return err
	})
	if err != nil {
		return
	}
	defer rows.Close()

	regs = make([]registration.Registration, 0)
	for rows.Next() {
		var r registration.Registration
		var status int
		if e := rows.Scan(&r.ID, &r.EventID, &r.UserID, &status, &r.PositionInQueue, &r.Notes, &r.RegisteredAt, &r.UpdatedAt); e != nil {
			err = e
			return
		}
		r.Status = registration.Status(status)
		regs = append(regs, r)
	}
	err = rows.Err()
	return
}

func (repo *RegistrationRepo) CountForEvent(ctx context.Context, eventID string) (int, error) {
	op := "registrations.count_for_event"
	var total int
	err := repo.observe(op, func() error {
		return repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&total)
	})
	return total, err
}

func (repo *RegistrationRepo) CountConfirmed(ctx context.Context, eventID string) (int, error) {
	op := "registrations.count_confirmed"
	var total int
	err := repo.observe(op, func() error {
		return repo.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = $2
		`, eventID, int(registration.StatusConfirmed)).Scan(&total)
	})
	return total, err
}

func (repo *RegistrationRepo) ListByEventCursor(
	ctx context.Context,
	eventID string,
	limit int,
	afterRegisteredAt time.Time,
	afterID string,
) (items []registration.Registration, nextCursor *string, hasMore bool, err error) {
	op := "registrations.list_by_event_cursor"

	q := `
		SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
		FROM registrations
		WHERE event_id = $1
		  AND (registered_at, id) > ($2, $3)
		ORDER BY registered_at ASC, id ASC
		LIMIT $4
	`
	limitPlusOne := limit + 1

	var rows pgx.Rows
	err = repo.observe(op, func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx, q, eventID, afterRegisteredAt, afterID, limitPlusOne)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]registration.Registration, 0, limit)

	for rows.Next() {
		var r registration.Registration
		var status int
		if scanErr := rows.Scan(&r.ID, &r.EventID, &r.UserID, &status, &r.PositionInQueue, &r.Notes, &r.RegisteredAt, &r.UpdatedAt); scanErr != nil {
			return nil, nil, false, scanErr
		}
		r.Status = registration.Status(status)
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]
		cur, encErr := utils.EncodeRegistrationCursor(last.RegisteredAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

func (repo *RegistrationRepo) GetByID(ctx context.Context, eventID, registrationID string) (foundReg registration.Registration, newErr error) {
	var r registration.Registration
	var status int
	err := repo.observe("registrations.get_by_id", func() error {
		return repo.pool.QueryRow(ctx,
			`
		SELECT id, event_id, user_id, status, position_in_queue, notes, registered_at, updated_at
		FROM registrations
		WHERE id = $1 AND event_id = $2
		`,
			registrationID, eventID,
		).Scan(&r.ID, &r.EventID, &r.UserID, &status, &r.PositionInQueue, &r.Notes, &r.RegisteredAt, &r.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newErr = registration.ErrNotFound
			return
		}

		newErr = err
		return
	}

	r.Status = registration.Status(status)
	foundReg = r
	return
}

// Delete removes a single registration for an event (admin hard-delete).
func (repo *RegistrationRepo) Delete(ctx context.Context, eventID, registrationID string) (err error) {
	var tag pgconn.CommandTag
	op := "registrations.delete"
	err = repo.observe(op, func() error {
		var err error
		tag, err = repo.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1 AND event_id = $2`, registrationID, eventID)

		return err
	})

	if err != nil {
		return
	}

	if tag.RowsAffected() == 0 {
		err = registration.ErrNotFound

		return
	}

	return
}
