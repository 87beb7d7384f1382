// Package handlers holds the domain-event reaction logic subscribed
// into the internal/events registry: promotion and reindexing run
// synchronously inside the triggering transaction, notification and
// audit logging run asynchronously off the outbox.
package handlers

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/geocoder89/eventhub/internal/domain/registration"
)

// RegistrationsStore is the narrow slice of RegistrationRepo the
// promotion and reindex handlers need, expressed as an interface so
// handlers stay testable against a fake.
type RegistrationsStore interface {
	PromoteNextWaitlisted(ctx context.Context, tx pgx.Tx, eventID string) (*registration.Registration, error)
	ReindexWaitlist(ctx context.Context, tx pgx.Tx, eventID string) ([]WaitlistReindexChange, error)
}

// WaitlistReindexChange is one registration's queue-position move as
// a result of a cancellation or promotion closing a gap.
type WaitlistReindexChange struct {
	RegistrationID string
	UserID         string
	OldPosition    int
	NewPosition    int
}
