package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/outbox"
)

// ProcessOne claims and dispatches a single outbox message. It returns
// false, nil when the outbox is empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {

	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	m, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	err = w.execute(ctx, m)

	if err != nil {
		w.handleFailure(ctx, m, err)
		return true, nil
	}

	err = w.repo.MarkDone(ctx, m.ID)

	if err != nil {
		return true, err
	}

	return true, nil
}
