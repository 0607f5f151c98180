package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes a single message. Returning an error skips the message
// after logging; the consumer does not retry (duplicates are handled by the
// inbox, permanent failures belong in the handler's own dead-letter path).
type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates events by id. Record reports false when the event was
// already seen.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topic   string
}

func NewConsumer(logger *slog.Logger, inbox Inbox, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := ExtractEventMeta(msg)
		if meta.AppointmentID != "" {
			span.SetAttributes(attribute.String("scheduling.appointment_id", meta.AppointmentID))
		}

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}
