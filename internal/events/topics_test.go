package events_test

import (
	"testing"
	"time"

	"github.com/geocoder89/eventhub/internal/events"
)

func TestTopics_PublishDeliversToSubscriber(t *testing.T) {
	topics := events.NewTopics()

	sub, unsubscribe := topics.Subscribe("event-1")
	defer unsubscribe()

	env := events.Envelope{Type: events.TypeEventRegistrationNotify, OccurredAt: time.Now().UTC()}
	topics.Publish("event-1", env)

	select {
	case got := <-sub:
		if got.Type != env.Type {
			t.Fatalf("got type %q, want %q", got.Type, env.Type)
		}
	default:
		t.Fatalf("expected a message to be delivered")
	}
}

func TestTopics_PublishIsScopedToItsEventID(t *testing.T) {
	topics := events.NewTopics()

	subA, unsubA := topics.Subscribe("event-a")
	defer unsubA()
	subB, unsubB := topics.Subscribe("event-b")
	defer unsubB()

	topics.Publish("event-a", events.Envelope{Type: "only-for-a"})

	select {
	case got := <-subA:
		if got.Type != "only-for-a" {
			t.Fatalf("got type %q, want %q", got.Type, "only-for-a")
		}
	default:
		t.Fatalf("expected subscriber a to receive the message")
	}

	select {
	case got := <-subB:
		t.Fatalf("expected no message for subscriber b, got %+v", got)
	default:
	}
}

func TestTopics_UnsubscribeClosesChannel(t *testing.T) {
	topics := events.NewTopics()

	sub, unsubscribe := topics.Subscribe("event-1")
	unsubscribe()

	_, ok := <-sub
	if ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}

	// publishing after unsubscribe must not panic or block
	topics.Publish("event-1", events.Envelope{Type: "irrelevant"})
}

func TestTopics_PublishWithNoSubscribersIsNoop(t *testing.T) {
	topics := events.NewTopics()
	topics.Publish("no-subscribers", events.Envelope{Type: events.TypeEventRegistrationNotify})
}
