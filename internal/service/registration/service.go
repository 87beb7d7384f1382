// Package registration implements the registration service (C2): the
// command handlers that mutate the registration aggregate inside a
// transaction and emit the resulting domain events through the
// dispatcher before that transaction commits.
package registration

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/idempotency"
	"github.com/geocoder89/eventhub/internal/txscope"
)

// Store is the slice of RegistrationRepo the service depends on,
// narrowed to an interface so the service is testable against a fake.
type Store interface {
	RegisterTx(ctx context.Context, tx pgx.Tx, req registration.CreateRegistrationRequest) (registration.Registration, error)
	CancelTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string) (registration.Registration, error)
	ConfirmRegistrationTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string) (registration.Registration, registration.Status, error)
	MarkAttendanceTx(ctx context.Context, tx pgx.Tx, eventID, registrationID string, attended bool) (registration.Registration, error)
	GetByID(ctx context.Context, eventID, registrationID string) (registration.Registration, error)
	GetActiveForUser(ctx context.Context, eventID, userID string) (registration.Registration, error)
}

// Service orchestrates Store + the event dispatcher under one
// transaction per command, per the scope-abstraction redesign note.
type Service struct {
	pool  *pgxpool.Pool
	store Store
	disp  *events.Dispatcher
	idem  idempotency.Store
	ttl   time.Duration
}

func New(pool *pgxpool.Pool, store Store, disp *events.Dispatcher, idem idempotency.Store, idemTTL time.Duration) *Service {
	if idemTTL <= 0 {
		idemTTL = 10 * time.Minute
	}
	return &Service{pool: pool, store: store, disp: disp, idem: idem, ttl: idemTTL}
}

// Register runs the accept/confirm/waitlist algorithm (§4.1): within
// one transaction, count confirmed registrations, assign Confirmed or
// Waitlisted, then emit RegistrationCreated (and, if waitlisted,
// RegistrationWaitlisted) to the outbox. A client-supplied idempotency
// key guards against duplicate submission across retries: a repeated
// key within the claim's TTL returns the caller's original active
// registration rather than attempting to create a second one.
func (s *Service) Register(ctx context.Context, req registration.CreateRegistrationRequest) (registration.Registration, error) {
	if req.IdemKey != "" {
		ok, err := s.idem.TryClaim(ctx, req.IdemKey, s.ttl)
		if err != nil {
			return registration.Registration{}, err
		}
		if !ok {
			existing, err := s.store.GetActiveForUser(ctx, req.EventID, req.UserID)
			if err == nil {
				return existing, nil
			}
			return registration.Registration{}, registration.ErrDuplicateRequest
		}
	}

	var reg registration.Registration
	err := txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		reg, err = s.store.RegisterTx(ctx, tx, req)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		created, err := events.NewEnvelope(events.TypeRegistrationCreated, events.RegistrationCreatedPayload{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			OccurredAt:     now,
		}, now)
		if err != nil {
			return err
		}
		if err := s.disp.Emit(ctx, tx, created); err != nil {
			return err
		}

		if reg.Status != registration.StatusWaitlisted {
			return nil
		}

		waitlisted, err := events.NewEnvelope(events.TypeRegistrationWaitlisted, events.RegistrationWaitlistedPayload{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			Position:       *reg.PositionInQueue,
			OccurredAt:     now,
		}, now)
		if err != nil {
			return err
		}
		return s.disp.Emit(ctx, tx, waitlisted)
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return reg, nil
}

// Cancel transitions a registration to Cancelled and emits
// RegistrationCancelled; if the prior status was Waitlisted it also
// emits WaitlistRemoval. Both are synchronous event types, so
// Promotion and Reindex run in-process, inside the same transaction,
// before Cancel returns.
func (s *Service) Cancel(ctx context.Context, eventID, registrationID, requesterID string, isAdmin bool) (registration.Registration, error) {
	current, err := s.store.GetByID(ctx, eventID, registrationID)
	if err != nil {
		return registration.Registration{}, err
	}
	if !isAdmin && current.UserID != requesterID {
		return registration.Registration{}, registration.ErrNotAuthorized
	}

	priorStatus := current.Status

	var reg registration.Registration
	err = txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		reg, err = s.store.CancelTx(ctx, tx, eventID, registrationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		cancelled, err := events.NewEnvelope(events.TypeRegistrationCancelled, events.RegistrationCancelledPayload{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			PriorStatus:    int(priorStatus),
			OccurredAt:     now,
		}, now)
		if err != nil {
			return err
		}
		if err := s.disp.Emit(ctx, tx, cancelled); err != nil {
			return err
		}

		if priorStatus != registration.StatusWaitlisted {
			return nil
		}

		removal, err := events.NewEnvelope(events.TypeWaitlistRemoval, events.WaitlistRemovalPayload{
			EventID:    reg.EventID,
			OccurredAt: now,
		}, now)
		if err != nil {
			return err
		}
		return s.disp.Emit(ctx, tx, removal)
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return reg, nil
}

// Confirm is the admin-initiated counterpart to automatic promotion:
// it force-confirms a specific Pending/Waitlisted registration out of
// FIFO order and emits RegistrationPromoted. If the row was Waitlisted,
// a WaitlistRemoval follows to close the gap left in the queue.
func (s *Service) Confirm(ctx context.Context, eventID, registrationID string) (registration.Registration, error) {
	var reg registration.Registration
	err := txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		var prior registration.Status
		reg, prior, err = s.store.ConfirmRegistrationTx(ctx, tx, eventID, registrationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		promoted, err := events.NewEnvelope(events.TypeRegistrationPromoted, events.RegistrationPromotedPayload{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			OccurredAt:     now,
		}, now)
		if err != nil {
			return err
		}
		if err := s.disp.Emit(ctx, tx, promoted); err != nil {
			return err
		}

		if prior != registration.StatusWaitlisted {
			return nil
		}

		removal, err := events.NewEnvelope(events.TypeWaitlistRemoval, events.WaitlistRemovalPayload{
			EventID:    reg.EventID,
			OccurredAt: now,
		}, now)
		if err != nil {
			return err
		}
		return s.disp.Emit(ctx, tx, removal)
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return reg, nil
}

// MarkAttendance records a confirmed registration's check-in result.
// Attendance has no effect on the waitlist, so no domain event is
// emitted.
func (s *Service) MarkAttendance(ctx context.Context, eventID, registrationID string, attended bool) (registration.Registration, error) {
	var reg registration.Registration
	err := txscope.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		reg, err = s.store.MarkAttendanceTx(ctx, tx, eventID, registrationID, attended)
		return err
	})
	if err != nil {
		return registration.Registration{}, err
	}
	return reg, nil
}
