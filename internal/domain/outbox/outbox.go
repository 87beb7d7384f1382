package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a durable domain-event row. Adapted from
// the job queue's pending/processing/done/failed states, renamed to
// match the outbox vocabulary from the design (Pending, Claimed,
// Processed, Failed).
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("outbox message not found")

// Message is a durable record of a domain event, written in the same
// transaction as the state change that produced it.
type Message struct {
	ID            string          `json:"id"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredOn    time.Time       `json:"occurredOn"`
	Status        Status          `json:"status"`
	TryCount      int             `json:"tryCount"`
	MaxTries      int             `json:"maxTries"`
	LastError     *string         `json:"lastError,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	ClaimedBy     *string         `json:"claimedBy,omitempty"`
	ClaimedAt     *time.Time      `json:"claimedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type CreateRequest struct {
	EventType string
	Payload   json.RawMessage
	MaxTries  int
}

// New builds a pending outbox row ready for immediate delivery.
func New(req CreateRequest) Message {
	now := time.Now().UTC()

	maxTries := req.MaxTries
	if maxTries <= 0 {
		maxTries = 10
	}

	return Message{
		ID:            uuid.NewString(),
		EventType:     req.EventType,
		Payload:       req.Payload,
		OccurredOn:    now,
		Status:        StatusPending,
		TryCount:      0,
		MaxTries:      maxTries,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}
