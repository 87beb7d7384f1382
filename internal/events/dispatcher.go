package events

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// SyncHandler reacts to an event inside the same transaction that
// produced it. It may return further envelopes that must themselves
// be delivered - synchronously if their own type demands it, or via
// the outbox otherwise. This is how Cancel's RegistrationCancelled
// handlers produce a RegistrationPromoted for the promoted registration
// and a WaitlistPositionChanged for each waitlisted registration whose
// position moved, without the command layer knowing about promotion.
type SyncHandler func(ctx context.Context, tx pgx.Tx, env Envelope) ([]Envelope, error)

// AsyncHandler reacts to an event delivered at-least-once by the
// outbox worker, outside of any caller's transaction. Handlers must be
// idempotent; the worker retries on error with backoff.
type AsyncHandler func(ctx context.Context, env Envelope) error

// Registry is the explicit event_type -> handler[] map that replaces
// reflection-based dispatch. Handlers are registered once at startup
// by cmd/api and cmd/worker.
type Registry struct {
	sync  map[string][]SyncHandler
	async map[string][]AsyncHandler
}

func NewRegistry() *Registry {
	return &Registry{
		sync:  make(map[string][]SyncHandler),
		async: make(map[string][]AsyncHandler),
	}
}

func (r *Registry) RegisterSync(eventType string, h SyncHandler) {
	r.sync[eventType] = append(r.sync[eventType], h)
}

func (r *Registry) RegisterAsync(eventType string, h AsyncHandler) {
	r.async[eventType] = append(r.async[eventType], h)
}

// OutboxAppender persists a message durably within the caller's
// transaction. internal/repo/postgres.OutboxRepo implements this.
type OutboxAppender interface {
	AppendTx(ctx context.Context, tx pgx.Tx, eventType string, payload []byte) error
}

// Dispatcher routes envelopes produced by command handlers to their
// registered sync handlers, and recursively emits any envelopes those
// handlers produce: every one is appended to the outbox, and one of a
// sync type is also dispatched inline first.
type Dispatcher struct {
	registry *Registry
	outbox   OutboxAppender
}

func NewDispatcher(registry *Registry, outbox OutboxAppender) *Dispatcher {
	return &Dispatcher{registry: registry, outbox: outbox}
}

// DispatchSync runs env through every handler registered for its
// type, in registration order, within tx. Any envelope a handler
// produces is emitted again through Emit, so it reaches its own sync
// handlers (when its type is sync) and the outbox.
func (d *Dispatcher) DispatchSync(ctx context.Context, tx pgx.Tx, env Envelope) error {
	for _, h := range d.registry.sync[env.Type] {
		produced, err := h(ctx, tx, env)
		if err != nil {
			return err
		}
		for _, p := range produced {
			if err := d.Emit(ctx, tx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Emit is the single entry point command handlers use once they have
// made a state change: sync event types run their handlers inline,
// within tx, before Emit returns; every event, sync or async, is also
// appended to the outbox, which doubles as the durable audit trail
// the async handlers (notifier, audit log) drain from.
func (d *Dispatcher) Emit(ctx context.Context, tx pgx.Tx, env Envelope) error {
	if IsSync(env.Type) {
		if err := d.DispatchSync(ctx, tx, env); err != nil {
			return err
		}
	}
	return d.outbox.AppendTx(ctx, tx, env.Type, env.Payload)
}

// DispatchAsync is called by the outbox worker after claiming a row.
// An event type with no registered handler is tolerated rather than
// treated as an error, so newer producers can ship ahead of consumers.
func (d *Dispatcher) DispatchAsync(ctx context.Context, env Envelope) error {
	for _, h := range d.registry.async[env.Type] {
		if err := h(ctx, env); err != nil {
			return err
		}
	}
	return nil
}
