package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"darkpool/internal/config"
	"darkpool/internal/game"
)

func newTestServer(t *testing.T, cfg config.APIConfig) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.TickEvery == 0 {
		cfg.TickEvery = time.Hour
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	state := game.NewState(game.Config{Seed: 11, AllowLateJoin: true}, nil, logger)
	srv := New(context.Background(), cfg, logger, state, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url, token, adminKey string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

func register(t *testing.T, baseURL, email, name string) string {
	t.Helper()
	code, out := doJSON(t, http.MethodPost, baseURL+"/v1/register", "", "", map[string]any{
		"email":        email,
		"display_name": name,
	})
	if code != http.StatusOK {
		t.Fatalf("register status %d: %v", code, out)
	}
	token, _ := out["token"].(string)
	if token == "" {
		t.Fatalf("register returned no token: %v", out)
	}
	return token
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})
	code, out := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", "", nil)
	if code != http.StatusOK || out["ok"] != true {
		t.Fatalf("healthz: %d %v", code, out)
	}
}

func TestRegisterAndReentry(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})

	token := register(t, ts.URL, "ada@example.com", "Ada")

	// Same email again: original token back, not a fresh account.
	code, out := doJSON(t, http.MethodPost, ts.URL+"/v1/register", "", "", map[string]any{
		"email":        "ada@example.com",
		"display_name": "Ada",
	})
	if code != http.StatusOK {
		t.Fatalf("re-register status %d: %v", code, out)
	}
	if out["token"] != token {
		t.Fatalf("re-register must return the original token")
	}

	code, out = doJSON(t, http.MethodPost, ts.URL+"/v1/register", "", "", map[string]any{
		"email": "noname@example.com",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("missing display_name: %d %v", code, out)
	}
}

func TestFullRoundFlow(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})

	token := register(t, ts.URL, "ada@example.com", "Ada")
	register(t, ts.URL, "bob@example.com", "Bob")

	// Trading is gated until the round starts.
	code, out := doJSON(t, http.MethodPost, ts.URL+"/v1/actions/buy", token, "", map[string]any{"quantity": 10})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("pre-start buy: %d %v", code, out)
	}

	code, out = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil)
	if code != http.StatusOK {
		t.Fatalf("start: %d %v", code, out)
	}

	code, out = doJSON(t, http.MethodPost, ts.URL+"/v1/actions/buy", token, "", map[string]any{"quantity": 10})
	if code != http.StatusOK {
		t.Fatalf("buy: %d %v", code, out)
	}
	if _, ok := out["dashboard"].(map[string]any); !ok {
		t.Fatalf("action response must embed a dashboard: %v", out)
	}

	// The cooldown rejection still carries the dashboard.
	code, out = doJSON(t, http.MethodPost, ts.URL+"/v1/actions/buy", token, "", map[string]any{"quantity": 10})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("cooldown buy: %d %v", code, out)
	}
	if _, ok := out["dashboard"].(map[string]any); !ok {
		t.Fatalf("rejection must still embed a dashboard: %v", out)
	}

	code, out = doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", token, "", nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d %v", code, out)
	}
	if out["position"] != float64(10) {
		t.Fatalf("position got %v want 10", out["position"])
	}

	code, out = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/fast-forward", "", "", nil)
	if code != http.StatusOK || out["settled"] != true {
		t.Fatalf("fast-forward: %d %v", code, out)
	}

	code, out = doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", token, "", nil)
	if code != http.StatusOK {
		t.Fatalf("settled dashboard: %d %v", code, out)
	}
	if out["phase"] != string(game.PhaseSettlement) {
		t.Fatalf("phase got %v want settlement", out["phase"])
	}
	if _, ok := out["leaderboard"].([]any); !ok {
		t.Fatalf("settlement dashboard must include the leaderboard: %v", out)
	}

	// Reset keeps the session token alive for the next round.
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/reset", "", "", nil)
	if code != http.StatusOK {
		t.Fatalf("reset: %d", code)
	}
	code, out = doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", token, "", nil)
	if code != http.StatusOK || out["phase"] != string(game.PhaseRegistration) {
		t.Fatalf("post-reset dashboard: %d %v", code, out)
	}
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})

	code, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", "", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", code)
	}
	code, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", "bogus", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bogus token: %d", code)
	}
}

func TestMagicLinkTokenQuery(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})
	token := register(t, ts.URL, "ada@example.com", "Ada")

	// The join QR encodes /v1/dashboard?token=..., no Authorization header.
	code, out := doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard?token="+token, "", "", nil)
	if code != http.StatusOK {
		t.Fatalf("magic link: %d %v", code, out)
	}
	if out["display_name"] != "Ada" {
		t.Fatalf("magic link resolved wrong player: %v", out["display_name"])
	}

	code, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard?token=bogus", "", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bogus query token: %d", code)
	}
}

func TestActionIdempotencyKeyReplay(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})
	token := register(t, ts.URL, "ada@example.com", "Ada")
	if code, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil); code != http.StatusOK {
		t.Fatalf("start: %d", code)
	}

	buy := func() (int, map[string]any) {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(map[string]any{"quantity": 10}); err != nil {
			t.Fatalf("encode: %v", err)
		}
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/actions/buy", &buf)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "replay-1")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.StatusCode, out
	}

	code, first := buy()
	if code != http.StatusOK {
		t.Fatalf("first buy: %d %v", code, first)
	}
	code, second := buy()
	if code != http.StatusOK {
		t.Fatalf("replayed buy: %d %v", code, second)
	}
	if first["message"] != second["message"] {
		t.Fatalf("replay answered differently: %v vs %v", first["message"], second["message"])
	}

	// The replay must not have executed a second trade.
	code, dash := doJSON(t, http.MethodGet, ts.URL+"/v1/dashboard", token, "", nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d", code)
	}
	if pos, _ := dash["position"].(float64); pos != 10 {
		t.Fatalf("position after replay got %v want 10", dash["position"])
	}
}

func TestAdminKeyEnforced(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{AdminKey: "hunter2"})
	register(t, ts.URL, "ada@example.com", "Ada")

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil)
	if code != http.StatusForbidden {
		t.Fatalf("missing admin key: %d", code)
	}
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "wrong", nil)
	if code != http.StatusForbidden {
		t.Fatalf("wrong admin key: %d", code)
	}
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "hunter2", nil)
	if code != http.StatusOK {
		t.Fatalf("correct admin key: %d", code)
	}
}

func TestAdminStartRejections(t *testing.T) {
	_, ts := newTestServer(t, config.APIConfig{})

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil)
	if code != http.StatusPreconditionFailed {
		t.Fatalf("empty table start: %d", code)
	}

	register(t, ts.URL, "ada@example.com", "Ada")
	if code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil); code != http.StatusOK {
		t.Fatalf("start: %d", code)
	}
	if code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil); code != http.StatusConflict {
		t.Fatalf("double start: %d", code)
	}

	if code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/fast-forward", "", "", nil); code != http.StatusOK {
		t.Fatalf("fast-forward: %d", code)
	}
	if code, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/start", "", "", nil); code != http.StatusConflict {
		t.Fatalf("start from settlement: %d", code)
	}
}

func TestDomainStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: game.ErrNotRegistered, want: http.StatusUnauthorized},
		{err: game.ErrInvalidQuantity, want: http.StatusBadRequest},
		{err: game.ErrCooldownActive, want: http.StatusUnprocessableEntity},
		{err: game.ErrInsufficientMargin, want: http.StatusUnprocessableEntity},
		{err: game.ErrRegistrationClosed, want: http.StatusConflict},
		{err: game.ErrRoundSettled, want: http.StatusConflict},
		{err: game.ErrNotEnoughPlayers, want: http.StatusPreconditionFailed},
	}
	for _, tc := range tests {
		if got := domainStatus(tc.err); got != tc.want {
			t.Fatalf("%v: status got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc123", want: "abc123"},
		{header: "bearer abc123", want: "abc123"},
		{header: "Basic abc123", want: ""},
		{header: "Bearer", want: ""},
		{header: "", want: ""},
	}
	for _, tc := range tests {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("header %q got %q want %q", tc.header, got, tc.want)
		}
	}
}
