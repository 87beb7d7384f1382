package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/eventhub/internal/events/handlers"
	"github.com/geocoder89/eventhub/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationsDeliveriesRepo implements handlers.DeliveryLedger: the
// teacher's single hardcoded "registration.confirmation" kind is
// generalized to any notifications.Action, and the lookup key widens
// from (kind, registration_id) to (kind=action, registration_id) -
// same shape, same sending/sent/failed state machine.
type NotificationsDeliveriesRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationsDeliveriesRepo(pool *pgxpool.Pool) *NotificationsDeliveriesRepo {
	return &NotificationsDeliveriesRepo{pool: pool}
}

// TryClaim atomically claims the (registrationID, action) pair for
// sending. It returns handlers.ErrAlreadyDelivered if the
// notification was already sent, handlers.ErrDeliveryInProgress if
// another worker currently holds the claim, and nil once this caller
// has the claim.
func (r *NotificationsDeliveriesRepo) TryClaim(ctx context.Context, registrationID string, action notifications.Action) error {
	kind := string(action)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries (kind, registration_id, status, created_at, updated_at)
		VALUES ($1, $2, 'sending', NOW(), NOW())
	`, kind, registrationID)

	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// Row exists. If it previously failed, atomically reclaim it.
	tag, uErr := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sending', last_error = NULL, updated_at = NOW()
		WHERE kind = $1 AND registration_id = $2 AND status = 'failed'
	`, kind, registrationID)
	if uErr != nil {
		return uErr
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	qErr := r.pool.QueryRow(ctx, `
		SELECT status FROM notification_deliveries WHERE kind = $1 AND registration_id = $2
	`, kind, registrationID).Scan(&status)
	if qErr != nil {
		if errors.Is(qErr, pgx.ErrNoRows) {
			return nil
		}
		return qErr
	}

	if status == "sent" {
		return handlers.ErrAlreadyDelivered
	}
	return handlers.ErrDeliveryInProgress
}

func (r *NotificationsDeliveriesRepo) MarkSent(ctx context.Context, registrationID string, action notifications.Action) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'sent', sent_at = NOW(), last_error = NULL, updated_at = NOW()
		WHERE kind = $1 AND registration_id = $2
	`, string(action), registrationID)
	return err
}

func (r *NotificationsDeliveriesRepo) MarkFailed(ctx context.Context, registrationID string, action notifications.Action, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET status = 'failed', last_error = $3, updated_at = NOW()
		WHERE kind = $1 AND registration_id = $2
	`, string(action), registrationID, errMsg)
	return err
}
