// Package event implements the event-management slice of the
// registration service (C2): publish/unpublish, waitlist toggling and
// updates (including capacity changes) each run in one transaction via
// the scope abstraction, so the outbox append for a capacity increase
// is atomic with the update. Delete runs outside a transaction.
package event

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/txscope"
)

// Store is the slice of EventsRepo the service depends on.
type Store interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (event.Event, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, current event.Event, req event.UpdateEventRequest) (event.Event, error)
	PublishTx(ctx context.Context, tx pgx.Tx, eventID string, published bool) error
	SetWaitlistOpenTx(ctx context.Context, tx pgx.Tx, eventID string, open bool) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	pool  *pgxpool.Pool
	store Store
	disp  *events.Dispatcher
}

func New(pool *pgxpool.Pool, store Store, disp *events.Dispatcher) *Service {
	return &Service{pool: pool, store: store, disp: disp}
}

// Publish and Unpublish toggle visibility; both are idempotent re-runs
// of the same state.
func (s *Service) Publish(ctx context.Context, eventID string, published bool) error {
	return txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return s.store.PublishTx(ctx, tx, eventID, published)
	})
}

func (s *Service) SetWaitlistOpen(ctx context.Context, eventID string, open bool) error {
	return txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return s.store.SetWaitlistOpenTx(ctx, tx, eventID, open)
	})
}

// UpdateEvent applies mutable-field changes. When capacity increases,
// EventCapacityIncreased(additional) is emitted so Promotion confirms
// that many waitlisted registrations in the same transaction.
// Decreasing capacity never auto-cancels confirmed rows (§9 open
// question, retained as documented behavior).
func (s *Service) UpdateEvent(ctx context.Context, eventID string, req event.UpdateEventRequest) (updated event.Event, err error) {
	err = txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := s.store.GetByIDTx(ctx, tx, eventID)
		if err != nil {
			return err
		}

		if req.Capacity == nil || *req.Capacity <= current.Capacity {
			u, err := s.store.UpdateTx(ctx, tx, current, req)
			if err != nil {
				return err
			}
			updated = u
			return nil
		}

		additional := *req.Capacity - current.Capacity

		u, err := s.store.UpdateTx(ctx, tx, current, req)
		if err != nil {
			return err
		}
		updated = u

		now := time.Now().UTC()
		env, err := events.NewEnvelope(events.TypeEventCapacityIncreased, events.EventCapacityIncreasedPayload{
			EventID:    eventID,
			Additional: additional,
			OccurredAt: now,
		}, now)
		if err != nil {
			return err
		}
		return s.disp.Emit(ctx, tx, env)
	})
	return
}

// Delete refuses to drop an event that still has registrations
// (event.ErrHasRegistrations).
func (s *Service) Delete(ctx context.Context, eventID string) error {
	return s.store.Delete(ctx, eventID)
}
