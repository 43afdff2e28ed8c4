package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientActionTreatsRejectionAsResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":   "cooldown active: 2 hours remaining",
			"dashboard": map[string]any{"cash": 989500.0},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	out, err := c.Buy(context.Background(), "tok", 10)
	if err != nil {
		t.Fatalf("policy rejection should not be an error: %v", err)
	}
	if !strings.Contains(out.Message, "cooldown active") {
		t.Fatalf("message got %q", out.Message)
	}
	if out.Dashboard == nil || out.Dashboard.Cash != 989500 {
		t.Fatalf("rejection dashboard not decoded: %+v", out.Dashboard)
	}
}

func TestClientSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotAdmin string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAdmin = r.Header.Get("X-Admin-Key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "hunter2")
	if _, err := c.Say(context.Background(), "tok-9", "hello"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if gotAuth != "Bearer tok-9" {
		t.Fatalf("auth header got %q", gotAuth)
	}

	if _, err := c.AdminStart(context.Background()); err != nil {
		t.Fatalf("admin start: %v", err)
	}
	if gotAdmin != "hunter2" {
		t.Fatalf("admin header got %q", gotAdmin)
	}
}

func TestClientActionSendsIdempotencyKey(t *testing.T) {
	var gotIdem string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	if _, err := c.Action(context.Background(), "tok", "/v1/actions/buy", map[string]any{"quantity": 10}, "replay-1"); err != nil {
		t.Fatalf("action: %v", err)
	}
	if gotIdem != "replay-1" {
		t.Fatalf("idempotency header got %q", gotIdem)
	}

	// Typed helpers do not mark the request as replayable.
	if _, err := c.Buy(context.Background(), "tok", 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if gotIdem != "" {
		t.Fatalf("buy should not send an idempotency key, got %q", gotIdem)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "admin key required"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	_, err := c.AdminStart(context.Background())
	if err == nil || !strings.Contains(err.Error(), "admin key required") {
		t.Fatalf("expected admin key error, got %v", err)
	}
}
