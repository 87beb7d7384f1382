package handlers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/events/handlers"
	"github.com/geocoder89/eventhub/internal/notifications"
)

type fakeUserLookup struct {
	name, email string
	err         error
}

func (f fakeUserLookup) NameAndEmail(ctx context.Context, userID string) (string, string, error) {
	return f.name, f.email, f.err
}

type fakeEventLookup struct {
	title string
	err   error
}

func (f fakeEventLookup) TitleByID(ctx context.Context, eventID string) (string, error) {
	return f.title, f.err
}

type fakeLedger struct {
	claimErr error
	sent     []string
	failed   []string
}

func (f *fakeLedger) TryClaim(ctx context.Context, registrationID string, action notifications.Action) error {
	return f.claimErr
}

func (f *fakeLedger) MarkSent(ctx context.Context, registrationID string, action notifications.Action) error {
	f.sent = append(f.sent, registrationID+":"+string(action))
	return nil
}

func (f *fakeLedger) MarkFailed(ctx context.Context, registrationID string, action notifications.Action, errMsg string) error {
	f.failed = append(f.failed, registrationID+":"+string(action))
	return nil
}

type fakeNotifier struct {
	err  error
	sent []notifications.NotifyInput
}

func (f *fakeNotifier) Notify(ctx context.Context, in notifications.NotifyInput) error {
	f.sent = append(f.sent, in)
	return f.err
}

func envelopeFor(t *testing.T, eventType, registrationID, eventID, userID string) events.Envelope {
	t.Helper()

	payload, err := json.Marshal(map[string]string{
		"registrationId": registrationID,
		"eventId":        eventID,
		"userId":         userID,
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	return events.Envelope{Type: eventType, Payload: payload, OccurredAt: time.Now().UTC()}
}

// A successful send also fans the notification out on the event's
// "eventRegistration_<event_id>" topic, with a non-zero timestamp.
func TestNotifier_Handle_PublishesRegistrationTopic(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}
	topics := events.NewTopics()

	h := handlers.NewNotifier(
		notifier,
		fakeUserLookup{name: "Sam Doe", email: "sam@example.com"},
		fakeEventLookup{title: "Go Conf"},
		ledger,
		topics,
	)

	eventID := "event-1"
	sub, unsubscribe := topics.Subscribe(eventID)
	defer unsubscribe()

	env := envelopeFor(t, events.TypeRegistrationCreated, "reg-1", eventID, "user-1")

	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	select {
	case notifyEnv := <-sub:
		if notifyEnv.Type != events.TypeEventRegistrationNotify {
			t.Fatalf("got topic envelope type %q, want %q", notifyEnv.Type, events.TypeEventRegistrationNotify)
		}

		var payload events.RegistrationNotificationPayload
		if err := json.Unmarshal(notifyEnv.Payload, &payload); err != nil {
			t.Fatalf("failed to unmarshal topic payload: %v", err)
		}

		if payload.EventID != eventID || payload.RegistrationID != "reg-1" || payload.UserID != "user-1" {
			t.Fatalf("unexpected payload: %+v", payload)
		}
		if payload.UserName != "Sam Doe" || payload.EventTitle != "Go Conf" {
			t.Fatalf("unexpected payload identity fields: %+v", payload)
		}
		if payload.Action != string(notifications.ActionConfirmed) {
			t.Fatalf("got action %q, want %q", payload.Action, notifications.ActionConfirmed)
		}
		if payload.Timestamp.IsZero() {
			t.Fatalf("expected non-zero timestamp on topic payload")
		}
	default:
		t.Fatalf("expected a message on the event's topic, got none")
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notify call, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Timestamp.IsZero() {
		t.Fatalf("expected NotifyInput.Timestamp to be set")
	}
	if len(ledger.sent) != 1 {
		t.Fatalf("expected ledger to record 1 sent delivery, got %d", len(ledger.sent))
	}
}

// A nil Topics registry is a valid configuration (e.g. in tests that
// don't care about subscription fan-out): Handle must still send the
// notification and update the ledger.
func TestNotifier_Handle_NilTopicsIsNoop(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}

	h := handlers.NewNotifier(
		notifier,
		fakeUserLookup{name: "Sam Doe", email: "sam@example.com"},
		fakeEventLookup{title: "Go Conf"},
		ledger,
		nil,
	)

	env := envelopeFor(t, events.TypeRegistrationWaitlisted, "reg-2", "event-2", "user-2")

	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notify call, got %d", len(notifier.sent))
	}
	if len(ledger.sent) != 1 {
		t.Fatalf("expected ledger to record 1 sent delivery, got %d", len(ledger.sent))
	}
}

// An unrecognized event type is ignored entirely: no claim, no send.
func TestNotifier_Handle_UnknownTypeIsIgnored(t *testing.T) {
	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}

	h := handlers.NewNotifier(
		notifier,
		fakeUserLookup{name: "Sam Doe", email: "sam@example.com"},
		fakeEventLookup{title: "Go Conf"},
		ledger,
		events.NewTopics(),
	)

	env := envelopeFor(t, events.TypeWaitlistRemoval, "reg-3", "event-3", "user-3")

	if err := h.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notify calls, got %d", len(notifier.sent))
	}
	if len(ledger.sent) != 0 {
		t.Fatalf("expected no ledger updates, got %d", len(ledger.sent))
	}
}
