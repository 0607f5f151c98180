package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta is the metadata every scheduling event carries. The outbox
// publisher stamps event_id and event_type headers and keys each message by
// the appointment it concerns, so partition order follows the appointment.
type EventMeta struct {
	EventID       string
	EventType     string
	AppointmentID string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	eventID := HeaderValue(msg.Headers, "event_id")
	eventType := HeaderValue(msg.Headers, "event_type")
	if eventID == "" {
		// Non-outbox producers (tooling, replays) may omit the headers;
		// the key still dedups per appointment.
		eventID = string(msg.Key)
	}
	if eventType == "" {
		eventType = msg.Topic
	}
	return EventMeta{
		EventID:       eventID,
		EventType:     eventType,
		AppointmentID: string(msg.Key),
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
