package model

import "testing"

func TestNormalizeStatus_Canonical(t *testing.T) {
	for _, s := range []Status{StatusInReview, StatusPending, StatusScheduled, StatusCancelled, StatusRealized} {
		got, ok := NormalizeStatus(string(s))
		if !ok || got != s {
			t.Fatalf("NormalizeStatus(%q) = %q, %v", s, got, ok)
		}
	}
}

func TestNormalizeStatus_LegacySynonyms(t *testing.T) {
	cases := map[string]Status{
		"agendado":   StatusScheduled,
		"confirmado": StatusScheduled,
		"booked":     StatusScheduled,
		"Confirmed":  StatusScheduled,
		"pendente":   StatusPending,
		"em_analise": StatusInReview,
		"cancelado":  StatusCancelled,
		"canceled":   StatusCancelled,
		"realizado":  StatusRealized,
		"completed":  StatusRealized,
	}
	for raw, want := range cases {
		got, ok := NormalizeStatus(raw)
		if !ok {
			t.Fatalf("NormalizeStatus(%q) not recognized", raw)
		}
		if got != want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeStatus_Unknown(t *testing.T) {
	if got, ok := NormalizeStatus(" Scheduled "); !ok || got != StatusScheduled {
		t.Fatalf("expected trimmed case-folded input to normalize, got %q, %v", got, ok)
	}
	if _, ok := NormalizeStatus("nonsense"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := NormalizeStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusCancelled.Terminal() || !StatusRealized.Terminal() {
		t.Fatal("cancelled and realized must be terminal")
	}
	if StatusPending.Terminal() || StatusScheduled.Terminal() {
		t.Fatal("pending and scheduled must not be terminal")
	}
	if StatusCancelled.Occupies() {
		t.Fatal("cancelled must not occupy its interval")
	}
	for _, s := range []Status{StatusInReview, StatusPending, StatusScheduled, StatusRealized} {
		if !s.Occupies() {
			t.Fatalf("%s must occupy its interval", s)
		}
	}
	if !StatusPending.AwaitingConfirmation() || !StatusInReview.AwaitingConfirmation() {
		t.Fatal("pending and in_review await confirmation")
	}
	if StatusScheduled.AwaitingConfirmation() {
		t.Fatal("scheduled does not await confirmation")
	}
}
