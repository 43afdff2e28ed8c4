package cli

import (
	"strings"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadSession(); err == nil {
		t.Fatalf("loading a missing session must fail")
	}

	saved := Session{Token: "tok-123", Email: "ada@example.com", DisplayName: "Ada"}
	if err := SaveSession(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != saved {
		t.Fatalf("session got %+v want %+v", got, saved)
	}

	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("session must be gone after clear")
	}
	// Clearing twice is fine.
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestLoadSessionRejectsEmptyToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SaveSession(Session{Email: "ada@example.com"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := LoadSession()
	if err == nil || !strings.Contains(err.Error(), "dp join") {
		t.Fatalf("expected join hint, got %v", err)
	}
}
