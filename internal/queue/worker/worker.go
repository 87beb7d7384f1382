package worker

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/outbox"
	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OutboxRepository is the outbox counterpart of the teacher's
// JobsRepository: claim-with-lease, reschedule-with-backoff,
// mark-done, and periodic recovery of stale claims.
type OutboxRepository interface {
	ClaimNext(ctx context.Context, workerID string) (outbox.Message, error)
	RequeueStaleClaimed(ctx context.Context, lockTTL time.Duration) (int64, error)
	Reschedule(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error
	MarkDone(ctx context.Context, id string) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int // concurrency control
	ShutdownGrace time.Duration
	LockTTL       time.Duration
	HealthAddr    string
}

// Worker drains the transactional outbox and dispatches each claimed
// message through the shared events.Dispatcher's async handlers
// (notifier, audit log). It never mutates the waitlist itself - that
// happens synchronously in the API process, inside the transaction
// that produced the event - so this loop only needs to be at-least-
// once and idempotent per handler.
type Worker struct {
	cfg          Config
	repo         OutboxRepository
	dispatcher   *events.Dispatcher
	metrics      *observability.JobMetrics
	readyMu      sync.RWMutex
	ready        bool
	PromRegistry *prometheus.Registry
}

func New(cfg Config, repo OutboxRepository, dispatcher *events.Dispatcher) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Worker{
		cfg:        cfg,
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    observability.NewJobMetrics(),
		ready:      true,
	}
}

var tracer = otel.Tracer("eventhub-worker")

func (w *Worker) logMetricsLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)

	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			s := w.metrics.Snapshot()
			log.Printf(
				"outbox metrics claimed=%d done=%d failed=%d retried=%d dlq=%d duration_count=%d dur_avg=%s duration_max=%s",
				s.Claimed, s.Done, s.Failed, s.Retried, s.DeadLettered, s.DurationCount, s.AverageDuration, s.MaxDuration,
			)
		}
	}
}

func (w *Worker) requeueLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			// short timeout for housekeeping
			hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			n, err := w.repo.RequeueStaleClaimed(hctx, w.cfg.LockTTL)

			cancel()

			if err != nil {
				log.Printf("worker.requeue_stale error=%v", err)
				continue
			}
			if n > 0 {
				log.Printf("worker.requeue_stale count=%d", n)
			}
		}

	}
}

func (w *Worker) Run(ctx context.Context) error {
	// health server
	srv := &http.Server{Addr: w.cfg.HealthAddr, Handler: w.HealthHandler(w.PromRegistry)}

	healthDone := make(chan struct{})

	go func() {
		log.Printf("worker health server starting on %s", w.cfg.HealthAddr)
		log.Printf("worker boot pid=%d worker_id=%s health_addr=%s", os.Getpid(), w.cfg.WorkerID, w.cfg.HealthAddr)

		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("worker health server error: %v", err)
		}
		close(healthDone)
	}()

	// On shutdown: flip readiness -> keep alive briefly -> then shutdown server
	go func() {
		<-ctx.Done()

		w.readyMu.Lock()
		w.ready = false
		w.readyMu.Unlock()

		time.Sleep(5 * time.Second) // 503 observation window

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Worker loops
	msgCh := make(chan outbox.Message)

	go w.logMetricsLoop(ctx, 30*time.Second)
	go w.requeueLoop(ctx)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			w.runWorker(ctx, workerNum, msgCh)
		}(i + 1)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

producerLoop:
	for {
		select {
		case <-ctx.Done():
			log.Println("worker: shutdown signal received; stopping claims")
			break producerLoop

		case <-ticker.C:
			for i := 0; i < w.cfg.Concurrency; i++ {
				claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				m, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
				cancel()

				if err != nil {
					if errors.Is(err, outbox.ErrNotFound) {
						break
					}
					log.Printf("worker: claim error: %v", err)
					break
				}

				select {
				case msgCh <- m:
					if w.metrics != nil {
						w.metrics.IncClaimed()
					}
				case <-ctx.Done():
					break producerLoop
				}
			}
		}
	}

	close(msgCh)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("worker: all in-flight messages completed")
	case <-time.After(w.cfg.ShutdownGrace):
		log.Printf("worker: shutdown grace (%s) exceeded; exiting", w.cfg.ShutdownGrace)
	}

	// IMPORTANT: keep process alive until health server finishes
	select {
	case <-healthDone:
	case <-time.After(7 * time.Second): // 5s window + 2s shutdown buffer
	}

	return nil
}

func (w *Worker) runWorker(ctx context.Context, workerNum int, msgChan <-chan outbox.Message) {

	for m := range msgChan {
		start := time.Now()

		execCtx, span := tracer.Start(ctx, "outbox.dispatch",
			trace.WithAttributes(
				attribute.String("outbox.id", m.ID),
				attribute.String("outbox.event_type", m.EventType),
				attribute.Int("outbox.try_count", m.TryCount),
				attribute.Int("outbox.max_tries", m.MaxTries),
				attribute.String("worker.id", w.cfg.WorkerID),
				attribute.Int("worker.num", workerNum),
			),
		)

		func() {
			defer span.End()

			slog.Default().InfoContext(execCtx, "outbox.start",
				"worker_num", workerNum,
				"worker_id", w.cfg.WorkerID,
				"outbox_id", m.ID,
				"event_type", m.EventType,
				"tries", m.TryCount,
				"max_tries", m.MaxTries,
			)

			if err := w.execute(execCtx, m); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())

				w.handleFailure(execCtx, m, err)

				d := time.Since(start)
				if w.metrics != nil {
					w.metrics.ObserveDuration(d)
					w.metrics.IncFailed()
				}

				span.SetAttributes(
					attribute.Int64("outbox.duration_ms", d.Milliseconds()),
					attribute.String("outbox.result", "error"),
				)

				slog.Default().ErrorContext(execCtx, "outbox.error",
					"worker_num", workerNum,
					"worker_id", w.cfg.WorkerID,
					"outbox_id", m.ID,
					"event_type", m.EventType,
					"duration_ms", d.Milliseconds(),
					"err", err,
				)
				return
			}

			if err := w.repo.MarkDone(execCtx, m.ID); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "mark_done_failed")

				d := time.Since(start)
				if w.metrics != nil {
					w.metrics.ObserveDuration(d)
					w.metrics.IncFailed()
				}

				slog.Default().ErrorContext(execCtx, "outbox.mark_done_failed",
					"worker_num", workerNum,
					"worker_id", w.cfg.WorkerID,
					"outbox_id", m.ID,
					"event_type", m.EventType,
					"duration_ms", d.Milliseconds(),
					"err", err,
				)
				return
			}

			d := time.Since(start)
			if w.metrics != nil {
				w.metrics.ObserveDuration(d)
				w.metrics.IncDone()
			}

			span.SetStatus(codes.Ok, "done")
			span.SetAttributes(
				attribute.Int64("outbox.duration_ms", d.Milliseconds()),
				attribute.String("outbox.result", "done"),
			)

			slog.Default().InfoContext(execCtx, "outbox.done",
				"worker_num", workerNum,
				"worker_id", w.cfg.WorkerID,
				"outbox_id", m.ID,
				"event_type", m.EventType,
				"duration_ms", d.Milliseconds(),
			)
		}()
	}
}

// execute hands a claimed message to the shared dispatcher's async
// handlers (notifier, audit). The type-registry lookup replaces the
// ad hoc switch-on-type the job queue used.
func (w *Worker) execute(ctx context.Context, m outbox.Message) error {
	env := events.Envelope{
		Type:       m.EventType,
		Payload:    m.Payload,
		OccurredAt: m.OccurredOn,
	}
	return w.dispatcher.DispatchAsync(ctx, env)
}

func (w *Worker) handleFailure(ctx context.Context, m outbox.Message, execError error) {
	errMsg := execError.Error()
	nextTry := m.TryCount + 1

	delay := ExponentialBackoff(m.TryCount)
	runAt := time.Now().UTC().Add(delay)

	if err := w.repo.Reschedule(ctx, m.ID, runAt, errMsg); err != nil {
		log.Printf("reschedule error outbox=%s: %v", m.ID, err)
		return
	}

	if nextTry >= m.MaxTries {
		if w.metrics != nil {
			w.metrics.IncDeadLettered()
		}
		log.Printf("outbox dead-lettered id=%s tries=%d/%d err=%s", m.ID, nextTry, m.MaxTries, errMsg)
		return
	}

	if w.metrics != nil {
		w.metrics.IncRetried()
	}
	log.Printf("outbox retry scheduled id=%s attempt=%d/%d next_run=%s err=%s",
		m.ID, nextTry, m.MaxTries, runAt.Format(time.RFC3339), errMsg)
}
