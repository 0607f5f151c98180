package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agendly/agendly/internal/scheduling/dispatch"
	"github.com/agendly/agendly/internal/scheduling/lifecycle"
	"github.com/agendly/agendly/internal/scheduling/storage"
	"github.com/agendly/agendly/libs/config"
	"github.com/agendly/agendly/libs/db"
	"github.com/agendly/agendly/libs/httpx"
	"github.com/agendly/agendly/libs/kafkax"
	otelx "github.com/agendly/agendly/libs/otel"
	"github.com/agendly/agendly/libs/outbox"
	"github.com/agendly/agendly/libs/runtime"
	"github.com/agendly/agendly/services/booking-service/internal/handlers"
	bookingstorage "github.com/agendly/agendly/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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
	outboxRepo := outbox.NewRepository(pool)
	dispatcher := dispatch.NewOutboxDispatcher(pool, outboxRepo)
	engine := lifecycle.NewEngine(store, dispatcher, dispatcher, logger, lifecycle.Config{
		ReminderLead:    config.Minutes("REMINDER_LEAD_MINUTES", time.Hour),
		CancelCutoff:    config.Minutes("CANCEL_CUTOFF_MINUTES", 60*time.Minute),
		CompletionGrace: config.Minutes("COMPLETION_GRACE_MINUTES", 30*time.Minute),
	})

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	idemRepo := bookingstorage.NewIdempotencyRepository(pool)
	bookingHandler := handlers.NewBookingHandler(engine, store, idemRepo, logger)
	directoryHandler := handlers.NewDirectoryHandler(store)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	// Public booking endpoints are rate limited. With Redis configured the
	// window is shared across replicas; otherwise each replica counts alone.
	var limit httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 60), time.Minute, service)
		limit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		limit = httpx.NewRateLimiter(config.Int("RATE_LIMIT", 60), time.Minute).Middleware()
	}

	public := http.NewServeMux()
	public.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	public.HandleFunc("/api/v1/public/availability", bookingHandler.Availability)
	public.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	publicChain := httpx.Chain(public,
		limit,
		httpx.WithCORS(httpx.PublicBookingPolicy(
			strings.Split(config.String("CORS_ORIGINS", "*"), ","),
		)),
	)

	mux := runtime.NewBaseMux(readyChecks...)
	mux.Handle("/api/v1/public/", publicChain)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/businesses", directoryHandler.Businesses)
	mux.HandleFunc("/api/v1/businesses/hours", directoryHandler.UpdateHours)
	mux.HandleFunc("/api/v1/employees", directoryHandler.Employees)
	mux.HandleFunc("/api/v1/employees/schedule", directoryHandler.UpdateSchedule)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
