package handlers

import (
	"time"

	"context"

	"github.com/jackc/pgx/v5"

	"github.com/geocoder89/eventhub/internal/events"
)

// Reindex closes gaps left in the waitlist's 1..N position sequence
// after a cancellation or a promotion, and reports each moved
// registration as a WaitlistPositionChanged event. No sync handler
// subscribes to that type; it reaches the outbox, where the worker's
// audit handler logs it.
type Reindex struct {
	store RegistrationsStore
}

func NewReindex(store RegistrationsStore) *Reindex {
	return &Reindex{store: store}
}

func (r *Reindex) OnWaitlistMayHaveGap(ctx context.Context, tx pgx.Tx, env events.Envelope) ([]events.Envelope, error) {
	eventID, err := eventIDFromEnvelope(env)
	if err != nil {
		return nil, err
	}

	changes, err := r.store.ReindexWaitlist(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]events.Envelope, 0, len(changes))
	for _, c := range changes {
		e, err := events.NewEnvelope(events.TypeWaitlistPositionChanged, events.WaitlistPositionChangedPayload{
			RegistrationID: c.RegistrationID,
			EventID:        eventID,
			OldPosition:    c.OldPosition,
			NewPosition:    c.NewPosition,
			OccurredAt:     now,
		}, now)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, nil
}
