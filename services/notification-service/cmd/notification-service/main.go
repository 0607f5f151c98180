package main

import (
	"context"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/libs/config"
	"github.com/agendly/agendly/libs/db"
	"github.com/agendly/agendly/libs/httpx"
	"github.com/agendly/agendly/libs/inbox"
	"github.com/agendly/agendly/libs/kafkax"
	otelx "github.com/agendly/agendly/libs/otel"
	"github.com/agendly/agendly/libs/runtime"
	"github.com/agendly/agendly/services/notification-service/internal/deliver"
	"github.com/agendly/agendly/services/notification-service/internal/email"
	"github.com/agendly/agendly/services/notification-service/internal/sms"
	"github.com/agendly/agendly/services/notification-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)
	var smsSender sms.Sender = sms.NewNoopSender()
	if url := config.String("SMS_WEBHOOK_URL", ""); url != "" {
		smsSender = sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	}

	repo := storage.NewRepository(pool)
	deliverer := deliver.New(emailSender, smsSender, repo, logger)

	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")

	topics := []string{
		dispatch.TopicAppointmentPending,
		dispatch.TopicAppointmentConfirmed,
		dispatch.TopicAppointmentCancelled,
		dispatch.TopicReminderDue,
		dispatch.TopicSeriesCompleted,
	}
	for _, topic := range topics {
		consumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			meta := kafkax.ExtractEventMeta(msg)
			return deliverer.Handle(ctx, meta.EventID, msg.Topic, msg.Value)
		})
		go consumer.Run(ctx)
	}

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
