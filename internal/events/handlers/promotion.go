package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/events"
)

// Promotion is the only handler allowed to mutate a registration other
// than the one the command targeted: when one or more confirmed seats
// open up (RegistrationCancelled of a previously-confirmed seat,
// EventCapacityIncreased), it moves that many of the longest-waiting
// waitlisted registrations into Confirmed.
type Promotion struct {
	store RegistrationsStore
}

func NewPromotion(store RegistrationsStore) *Promotion {
	return &Promotion{store: store}
}

func (p *Promotion) OnSeatsFreed(ctx context.Context, tx pgx.Tx, env events.Envelope) ([]events.Envelope, error) {
	eventID, seats, err := seatsFreed(env)
	if err != nil {
		return nil, err
	}

	out := make([]events.Envelope, 0, seats)
	for i := 0; i < seats; i++ {
		promoted, err := p.store.PromoteNextWaitlisted(ctx, tx, eventID)
		if err != nil {
			return nil, err
		}
		if promoted == nil {
			break
		}

		now := time.Now().UTC()
		e, err := events.NewEnvelope(events.TypeRegistrationPromoted, events.RegistrationPromotedPayload{
			RegistrationID: promoted.ID,
			EventID:        promoted.EventID,
			UserID:         promoted.UserID,
			OccurredAt:     now,
		}, now)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, nil
}

// seatsFreed decodes how many additional seats the triggering event
// made available for promotion. A cancellation only frees a seat if
// the cancelled registration was Confirmed; cancelling an
// already-waitlisted registration frees nothing.
func seatsFreed(env events.Envelope) (eventID string, seats int, err error) {
	switch env.Type {
	case events.TypeRegistrationCancelled:
		var p events.RegistrationCancelledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", 0, err
		}
		if registration.Status(p.PriorStatus) == registration.StatusConfirmed {
			return p.EventID, 1, nil
		}
		return p.EventID, 0, nil
	case events.TypeEventCapacityIncreased:
		var p events.EventCapacityIncreasedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", 0, err
		}
		return p.EventID, p.Additional, nil
	default:
		return "", 0, nil
	}
}

func eventIDFromEnvelope(env events.Envelope) (string, error) {
	switch env.Type {
	case events.TypeRegistrationCancelled:
		var p events.RegistrationCancelledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", err
		}
		return p.EventID, nil
	case events.TypeEventCapacityIncreased:
		var p events.EventCapacityIncreasedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", err
		}
		return p.EventID, nil
	case events.TypeWaitlistRemoval:
		var p events.WaitlistRemovalPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", err
		}
		return p.EventID, nil
	default:
		var p struct {
			EventID string `json:"eventId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", err
		}
		return p.EventID, nil
	}
}
