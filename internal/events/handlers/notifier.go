package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/notifications"
)

// UserLookup resolves the display name/email a notification goes to.
// Kept narrow so the notifier handler doesn't need the full users
// repo interface.
type UserLookup interface {
	NameAndEmail(ctx context.Context, userID string) (name, email string, err error)
}

// EventLookup resolves the title shown in a notification.
type EventLookup interface {
	TitleByID(ctx context.Context, eventID string) (string, error)
}

// DeliveryLedger gates each (registration, action) pair to send at
// most once, generalizing the teacher's notification_deliveries
// sending/sent/failed state machine from a single hardcoded kind to
// any notifier.Action.
type DeliveryLedger interface {
	TryClaim(ctx context.Context, registrationID string, action notifications.Action) error
	MarkSent(ctx context.Context, registrationID string, action notifications.Action) error
	MarkFailed(ctx context.Context, registrationID string, action notifications.Action, errMsg string) error
}

// Notifier sends a best-effort notification for a registration
// lifecycle event. It runs asynchronously off the outbox and is
// idempotent: a retried delivery of the same (registration, action)
// is a no-op once the ledger has recorded it sent.
type Notifier struct {
	notifier notifications.Notifier
	users    UserLookup
	events   EventLookup
	ledger   DeliveryLedger
	topics   *events.Topics
}

// NewNotifier wires topics in directly: topics may be nil, in which
// case the per-event "eventRegistration_<event_id>" fan-out is simply
// skipped and only the notifier send/ledger path runs.
func NewNotifier(n notifications.Notifier, users UserLookup, ev EventLookup, ledger DeliveryLedger, topics *events.Topics) *Notifier {
	return &Notifier{notifier: n, users: users, events: ev, ledger: ledger, topics: topics}
}

type registrationEventPayload struct {
	RegistrationID string `json:"registrationId"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
}

func (n *Notifier) Handle(ctx context.Context, env events.Envelope) error {
	action, ok := actionForType(env.Type)
	if !ok {
		return nil
	}

	var p registrationEventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}

	if err := n.ledger.TryClaim(ctx, p.RegistrationID, action); err != nil {
		if err == ErrAlreadyDelivered || err == ErrDeliveryInProgress {
			return nil
		}
		return err
	}

	name, email, err := n.users.NameAndEmail(ctx, p.UserID)
	if err != nil {
		_ = n.ledger.MarkFailed(ctx, p.RegistrationID, action, err.Error())
		return err
	}

	title, err := n.events.TitleByID(ctx, p.EventID)
	if err != nil {
		_ = n.ledger.MarkFailed(ctx, p.RegistrationID, action, err.Error())
		return err
	}

	now := time.Now().UTC()

	sendErr := n.notifier.Notify(ctx, notifications.NotifyInput{
		Email:          email,
		Name:           name,
		EventID:        p.EventID,
		EventTitle:     title,
		RegistrationID: p.RegistrationID,
		Action:         action,
		Timestamp:      now,
	})
	if sendErr != nil {
		_ = n.ledger.MarkFailed(ctx, p.RegistrationID, action, sendErr.Error())
		return fmt.Errorf("notify %s: %w", action, sendErr)
	}

	n.publishTopic(p, name, title, action, now)

	return n.ledger.MarkSent(ctx, p.RegistrationID, action)
}

// publishTopic fans the notification out on "eventRegistration_<event_id>"
// for any in-process subscriber (e.g. a GraphQL subscription adapter).
// It is separate from, and never blocks, the ledger-gated send above -
// a missing subscriber is not an error.
func (n *Notifier) publishTopic(p registrationEventPayload, userName, eventTitle string, action notifications.Action, occurredAt time.Time) {
	if n.topics == nil {
		return
	}

	env, err := events.NewEnvelope(events.TypeEventRegistrationNotify, events.RegistrationNotificationPayload{
		EventID:        p.EventID,
		EventTitle:     eventTitle,
		UserID:         p.UserID,
		UserName:       userName,
		RegistrationID: p.RegistrationID,
		Action:         string(action),
		Timestamp:      occurredAt,
	}, occurredAt)
	if err != nil {
		return
	}

	n.topics.Publish(p.EventID, env)
}

func actionForType(eventType string) (notifications.Action, bool) {
	switch eventType {
	case events.TypeRegistrationCreated:
		return notifications.ActionConfirmed, true
	case events.TypeRegistrationWaitlisted:
		return notifications.ActionWaitlisted, true
	case events.TypeRegistrationPromoted:
		return notifications.ActionPromoted, true
	case events.TypeRegistrationCancelled:
		return notifications.ActionCancelled, true
	default:
		return "", false
	}
}
