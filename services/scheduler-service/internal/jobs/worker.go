package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/model"
	"github.com/agendly/agendly/libs/db"
	otelx "github.com/agendly/agendly/libs/otel"
	"github.com/agendly/agendly/libs/outbox"
)

type Worker struct {
	pool      *db.Pool
	repo      *Repository
	store     lifecycle.Store
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, store lifecycle.Store, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		store:     store,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	var failed []Job
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		// Re-check at fire time: a reminder only goes out for appointments
		// still scheduled. Cancelled jobs never reach here, but the
		// appointment state may have moved since the job was enqueued.
		appt, err := w.store.GetAppointment(jobCtx, job.AppointmentID)
		if err != nil {
			if errors.Is(err, lifecycle.ErrNotFound) {
				w.logger.Warn("reminder for unknown appointment", "appointment_id", job.AppointmentID)
				done = append(done, job.ID)
				continue
			}
			failed = append(failed, job)
			continue
		}
		if appt.Status != model.StatusScheduled {
			w.logger.Info("skipping reminder, appointment no longer scheduled",
				"appointment_id", job.AppointmentID, "status", string(appt.Status))
			done = append(done, job.ID)
			continue
		}

		if err := w.emitDue(jobCtx, tx, job, appt); err != nil {
			failed = append(failed, job)
			continue
		}
		done = append(done, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}

	for _, job := range failed {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		nextRunAt := time.Now().UTC().Add(w.backoff)
		attempts := job.Attempts + 1
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, "reminder emit failed"); err != nil {
			return err
		}
		if attempts >= job.MaxAttempts {
			if err := w.enqueueDLQ(jobCtx, tx, job, "max attempts reached"); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (w *Worker) emitDue(ctx context.Context, tx pgx.Tx, job Job, appt model.Appointment) error {
	payload, err := json.Marshal(dispatch.AppointmentEvent{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		EmployeeID:    appt.EmployeeID,
		Recipient:     string(lifecycle.RecipientClient),
		Client:        appt.Client,
		Services:      appt.Services,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		Status:        string(appt.Status),
		Extra: map[string]string{
			"channel":   job.Channel,
			"remind_at": job.RemindAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "scheduler_job",
		AggregateID:   job.AppointmentID,
		EventType:     dispatch.TopicReminderDue,
		Payload:       payload,
	})
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": job.AppointmentID,
		"business_id":    job.BusinessID,
		"channel":        job.Channel,
		"recipient":      job.Recipient,
		"remind_at":      job.RemindAt.UTC().Format(time.RFC3339),
		"error_reason":   reason,
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "scheduler_job",
		AggregateID:   job.AppointmentID,
		EventType:     "scheduling.reminder.dlq.v1",
		Payload:       payload,
	})
}
