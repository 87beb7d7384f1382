package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, title, description, city, location, timezone,
	start_at, end_at, capacity, organizer_id, is_published, is_waitlist_open,
	created_at, updated_at`

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// TitleByID implements handlers.EventLookup for the notifier.
func (r *EventsRepo) TitleByID(ctx context.Context, eventID string) (string, error) {
	var title string
	err := r.observe("events.title_by_id", func() error {
		return r.pool.QueryRow(ctx, `SELECT title FROM events WHERE id = $1`, eventID).Scan(&title)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", event.ErrNotFound
		}
		return "", err
	}
	return title, nil
}

func scanEvent(row pgx.Row) (event.Event, error) {
	var e event.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.City, &e.Location, &e.Timezone,
		&e.StartAt, &e.EndAt, &e.Capacity, &e.OrganizerID, &e.IsPublished, &e.IsWaitlistOpen,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *EventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	e := event.NewFromCreateRequest(req)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO events(`+eventColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.Title, e.Description, e.City, e.Location, e.Timezone,
		e.StartAt, e.EndAt, e.Capacity, e.OrganizerID, e.IsPublished, e.IsWaitlistOpen,
		e.CreatedAt, e.UpdatedAt,
	)

	if err != nil {
		return event.Event{}, err
	}

	return e, nil
}

func buildListConds(filter event.ListEventsFilter, argsPosition int) (conds []string, args []any, next int) {
	if filter.City != nil {
		conds = append(conds, fmt.Sprintf("city = $%d", argsPosition))
		args = append(args, *filter.City)
		argsPosition++
	}
	if filter.From != nil {
		conds = append(conds, fmt.Sprintf("start_at >= $%d", argsPosition))
		args = append(args, *filter.From)
		argsPosition++
	}
	if filter.To != nil {
		conds = append(conds, fmt.Sprintf("start_at <= $%d", argsPosition))
		args = append(args, *filter.To)
		argsPosition++
	}
	if filter.OrganizerID != nil {
		conds = append(conds, fmt.Sprintf("organizer_id = $%d", argsPosition))
		args = append(args, *filter.OrganizerID)
		argsPosition++
	}
	if filter.PublishedOnly {
		conds = append(conds, "is_published = true")
	}
	return conds, args, argsPosition
}

func (r *EventsRepo) List(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
	conds, args, argsPosition := buildListConds(filter, 1)

	query := `SELECT ` + eventColumns + `, COUNT(*) OVER() AS total FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY start_at ASC, id ASC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	output := make([]event.Event, 0, filter.Limit)
	total := 0

	for rows.Next() {
		var e event.Event
		var t int
		err = rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.City, &e.Location, &e.Timezone,
			&e.StartAt, &e.EndAt, &e.Capacity, &e.OrganizerID, &e.IsPublished, &e.IsWaitlistOpen,
			&e.CreatedAt, &e.UpdatedAt, &t,
		)
		if err != nil {
			return nil, 0, err
		}
		total = t
		output = append(output, e)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

func (r *EventsRepo) Count(ctx context.Context, filter event.ListEventsFilter) (int, error) {
	conds, args, _ := buildListConds(filter, 1)

	query := `SELECT COUNT(*) FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func (r *EventsRepo) ListCursor(
	ctx context.Context,
	filter event.ListEventsFilter,
	afterStartAt time.Time,
	afterID string,
) (items []event.Event, nextCursor *string, hasMore bool, err error) {
	conds, args, argsPosition := buildListConds(filter, 1)
	conds = append(conds, fmt.Sprintf("(start_at, id) > ($%d, $%d)", argsPosition, argsPosition+1))
	args = append(args, afterStartAt, afterID)
	argsPosition += 2

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY start_at ASC, id ASC LIMIT $%d", argsPosition)
	args = append(args, limit+1)

	rows, qerr := r.pool.Query(ctx, query, args...)
	if qerr != nil {
		return nil, nil, false, qerr
	}
	defer rows.Close()

	out := make([]event.Event, 0, limit)
	for rows.Next() {
		var e event.Event
		if scanErr := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.City, &e.Location, &e.Timezone,
			&e.StartAt, &e.EndAt, &e.Capacity, &e.OrganizerID, &e.IsPublished, &e.IsWaitlistOpen,
			&e.CreatedAt, &e.UpdatedAt,
		); scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, e)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, nil, false, rerr
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]
		cur, encErr := utils.EncodeEventCursor(last.StartAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}
	return e, nil
}

// GetByIDTx is GetByID scoped to a caller's transaction, for the
// update / capacity-increase flow that must read-then-write the
// same row atomically.
func (r *EventsRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (event.Event, error) {
	e, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}
	return e, nil
}

// UpdateTx writes the edit within the caller's transaction. current
// must have been read in the same tx (GetByIDTx), so the write lands
// on the connection already holding the row's FOR UPDATE lock instead
// of a second pool connection deadlocking against it.
func (r *EventsRepo) UpdateTx(ctx context.Context, tx pgx.Tx, current event.Event, req event.UpdateEventRequest) (event.Event, error) {
	applyUpdate(&current, req)
	current.UpdatedAt = time.Now().UTC()

	e, err := scanEvent(tx.QueryRow(
		ctx,
		`UPDATE events
			SET title = $2, description = $3, city = $4, location = $5, timezone = $6,
			    start_at = $7, end_at = $8, capacity = $9, updated_at = $10
		WHERE id = $1
		RETURNING `+eventColumns,
		current.ID, current.Title, current.Description, current.City, current.Location, current.Timezone,
		current.StartAt, current.EndAt, current.Capacity, current.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

func (r *EventsRepo) PublishTx(ctx context.Context, tx pgx.Tx, eventID string, published bool) error {
	tag, err := tx.Exec(ctx, `UPDATE events SET is_published = $2, updated_at = NOW() WHERE id = $1`, eventID, published)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (r *EventsRepo) SetWaitlistOpenTx(ctx context.Context, tx pgx.Tx, eventID string, open bool) error {
	tag, err := tx.Exec(ctx, `UPDATE events SET is_waitlist_open = $2, updated_at = NOW() WHERE id = $1`, eventID, open)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return event.ErrNotFound
	}
	return nil
}

// Delete refuses to drop an event with any registrations, mirroring
// event.ErrHasRegistrations.
func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return event.ErrHasRegistrations
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return event.ErrNotFound
	}
	return nil
}

func applyUpdate(e *event.Event, req event.UpdateEventRequest) {
	if req.Title != nil {
		e.Title = *req.Title
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.City != nil {
		e.City = *req.City
	}
	if req.Location != nil {
		e.Location = *req.Location
	}
	if req.Timezone != nil {
		e.Timezone = *req.Timezone
	}
	if req.StartAt != nil {
		e.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		e.EndAt = *req.EndAt
	}
	if req.Capacity != nil {
		e.Capacity = *req.Capacity
	}
}
