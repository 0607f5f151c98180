package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck reports whether the event bus is reachable. Any responding
// broker counts: the scheduling topics are replicated, so one live broker
// means events can flow.
func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var lastErr error
		for _, addr := range list {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		return fmt.Errorf("no broker reachable: %w", lastErr)
	}
}
