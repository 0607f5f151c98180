package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSender_Send(t *testing.T) {
	var got struct {
		To        string `json:"to"`
		Body      string `json:"body"`
		Reference string `json:"reference"`
		Kind      string `json:"kind"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "tok-1")
	err := sender.Send(context.Background(), Message{
		To:            "+351111",
		Body:          "See you tomorrow",
		AppointmentID: "appt-1",
		EventType:     "scheduling.reminder.due.v1",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer tok-1" {
		t.Fatalf("authorization header %q", auth)
	}
	if got.To != "+351111" || got.Reference != "appt-1" || got.Kind != "scheduling.reminder.due.v1" {
		t.Fatalf("payload %+v", got)
	}
}

func TestWebhookSender_GatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "")
	if err := sender.Send(context.Background(), Message{To: "+351111", Body: "hi"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookSender_Unconfigured(t *testing.T) {
	sender := NewWebhookSender("", "")
	if err := sender.Send(context.Background(), Message{To: "+351111", Body: "hi"}); err == nil {
		t.Fatal("expected error when url missing")
	}
}
