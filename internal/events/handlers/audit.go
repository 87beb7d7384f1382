package handlers

import (
	"context"
	"log/slog"

	"github.com/geocoder89/eventhub/internal/events"
)

// Audit writes one structured log line per domain event it sees. It
// is registered for every event type the outbox carries, so the
// outbox doubles as the audit trail's source of truth.
type Audit struct {
	log *slog.Logger
}

func NewAudit(log *slog.Logger) *Audit {
	return &Audit{log: log}
}

func (a *Audit) Handle(ctx context.Context, env events.Envelope) error {
	a.log.InfoContext(ctx, "domain_event",
		slog.String("event_type", env.Type),
		slog.Time("occurred_at", env.OccurredAt),
		slog.String("payload", string(env.Payload)),
	)
	return nil
}
