package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message is one outbound text. The appointment reference and event kind
// ride along so the gateway can thread texts per appointment and drop
// duplicates on redelivery.
type Message struct {
	To            string
	Body          string
	AppointmentID string
	EventType     string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// WebhookSender posts each text to an SMS gateway webhook.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "sms-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if s.url == "" {
		return errors.New("sms webhook url not configured")
	}
	if msg.To == "" {
		return errors.New("sms recipient missing")
	}
	payload := struct {
		To        string `json:"to"`
		Body      string `json:"body"`
		Reference string `json:"reference,omitempty"`
		Kind      string `json:"kind,omitempty"`
	}{
		To:        msg.To,
		Body:      msg.Body,
		Reference: msg.AppointmentID,
		Kind:      msg.EventType,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(_ context.Context, _ Message) error {
	return nil
}
