package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/storage"
	"github.com/agendly/agendly/libs/config"
	"github.com/agendly/agendly/libs/db"
	"github.com/agendly/agendly/libs/httpx"
	"github.com/agendly/agendly/libs/inbox"
	"github.com/agendly/agendly/libs/kafkax"
	otelx "github.com/agendly/agendly/libs/otel"
	"github.com/agendly/agendly/libs/outbox"
	"github.com/agendly/agendly/libs/runtime"
	"github.com/agendly/agendly/services/scheduler-service/internal/jobs"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	store := storage.NewPostgresStore(pool)
	inboxRepo := inbox.NewRepository(pool)
	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	jobWorker := jobs.NewWorker(pool, jobRepo, store, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   config.Minutes("SCHEDULER_BACKOFF_MINUTES", time.Minute),
	})
	go jobWorker.Run(ctx)

	// The sweep ticker realizes overdue scheduled appointments on a fixed
	// interval; the listing endpoints of the booking service run the same
	// sweep opportunistically.
	dispatcher := dispatch.NewOutboxDispatcher(pool, outboxRepo)
	engine := lifecycle.NewEngine(store, dispatcher, dispatcher, logger, lifecycle.Config{
		CompletionGrace: config.Minutes("COMPLETION_GRACE_MINUTES", 30*time.Minute),
	})
	go func() {
		ticker := time.NewTicker(config.Minutes("SWEEP_INTERVAL_MINUTES", 5*time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				completed, err := engine.AutoCompleteSweep(ctx, time.Now().UTC())
				if err != nil {
					logger.Error("auto-complete sweep failed", "err", err)
					continue
				}
				if len(completed) > 0 {
					logger.Info("auto-completed overdue appointments", "count", len(completed))
				}
			}
		}
	}()

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "scheduler-service")

	requestedConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   dispatch.TopicReminderRequested,
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload dispatch.ReminderEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder request", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.RemindAt.IsZero() {
			logger.Error("missing reminder fields")
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		insert := func(channel, recipient string) error {
			if recipient == "" {
				return nil
			}
			return jobRepo.Insert(ctx, tx, jobs.Job{
				IdempotencyKey: "reminder:" + payload.AppointmentID + ":" + channel,
				AppointmentID:  payload.AppointmentID,
				BusinessID:     payload.BusinessID,
				Channel:        channel,
				Recipient:      recipient,
				RemindAt:       payload.RemindAt,
				TemplateData: map[string]any{
					"client_name": payload.Client.Name,
					"start_time":  payload.StartTime.UTC().Format(time.RFC3339),
				},
			})
		}
		if err := insert("email", payload.Client.Email); err != nil {
			return err
		}
		if err := insert("sms", payload.Client.Phone); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	go requestedConsumer.Run(ctx)

	cancelledConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   dispatch.TopicReminderCancelled,
	}, func(ctx context.Context, msg kafka.Message) error {
		var payload dispatch.ReminderEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder cancellation", "err", err)
			return nil
		}
		if payload.AppointmentID == "" {
			logger.Error("missing appointment_id in cancellation")
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if err := jobRepo.CancelByAppointment(ctx, tx, payload.AppointmentID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	go cancelledConsumer.Run(ctx)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
