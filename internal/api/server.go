package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"darkpool/internal/config"
	"darkpool/internal/game"
	"darkpool/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const playerContextKey contextKey = "player"

// Announcer mirrors noteworthy lines to an external channel. Best-effort.
type Announcer interface {
	Announce(line string)
}

// Exporter persists a settled round. Failures are logged, never surfaced.
type Exporter interface {
	SaveRound(ctx context.Context, rep game.RoundReport) error
}

type Server struct {
	cfg       config.APIConfig
	log       *slog.Logger
	state     *game.GameState
	clock     *game.Clock
	exporter  Exporter
	announcer Announcer
	mux       *chi.Mux

	// baseCtx parents the background clock so process shutdown stops it.
	baseCtx context.Context

	// Replayed actions (offline queue, lost responses) are answered from
	// this cache instead of executing twice. Keys are scoped per player.
	idemMu    sync.Mutex
	idemSeen  map[string]idemResponse
	idemOrder []string
}

type idemResponse struct {
	status int
	body   []byte
}

const idemCacheCap = 512

func New(ctx context.Context, cfg config.APIConfig, logger *slog.Logger, state *game.GameState, exporter Exporter, announcer Announcer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		log:       logger,
		state:     state,
		exporter:  exporter,
		announcer: announcer,
		mux:       chi.NewRouter(),
		baseCtx:   ctx,
		idemSeen:  make(map[string]idemResponse),
	}
	s.clock = game.NewClock(state, cfg.TickEvery, logger, s.afterTick)
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Shutdown stops the background clock.
func (s *Server) Shutdown() {
	s.clock.Stop()
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/register", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/dashboard", s.handleDashboard)
			r.Post("/actions/buy", s.handleBuy)
			r.Post("/actions/sell", s.handleSell)
			r.Post("/actions/intel", s.handleIntel)
			r.Post("/actions/loan", s.handleLoan)
			r.Post("/messages", s.handleMessage)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Post("/admin/start", s.handleAdminStart)
			r.Post("/admin/advance", s.handleAdminAdvance)
			r.Post("/admin/fast-forward", s.handleAdminFastForward)
			r.Post("/admin/reset", s.handleAdminReset)
			r.Get("/admin/overview", s.handleAdminOverview)
		})
	})
}

// authMiddleware resolves the session token from the Authorization header,
// falling back to a ?token= query parameter so magic links scanned from the
// join QR code log straight in.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}
		playerID, ok := s.state.FindPlayerByToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown session token")
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, playerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware enforces the shared admin key when one is configured.
// Without a key the god-mode panel is open, matching a LAN-party setup.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey != "" && r.Header.Get("X-Admin-Key") != s.cfg.AdminKey {
			writeError(w, http.StatusForbidden, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func playerFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(playerContextKey).(string)
	if !ok || id == "" {
		return "", errors.New("missing auth context")
	}
	return id, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.Email == "" || in.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "email and display_name are required")
		return
	}

	token, msg, err := s.state.Register(in.Email, in.DisplayName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.SetPlayers(len(s.state.GetAdminView().Players))
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "token": token})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	view, err := s.state.GetPlayerView(playerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	s.handleAction(w, r, &in, func(playerID string) (string, error) {
		msg, err := s.state.Buy(playerID, in.Quantity)
		if err == nil {
			metrics.IncTrade("buy")
		}
		return msg, err
	})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	s.handleAction(w, r, &in, func(playerID string) (string, error) {
		msg, err := s.state.Sell(playerID, in.Quantity)
		if err == nil {
			metrics.IncTrade("sell")
		}
		return msg, err
	})
}

func (s *Server) handleIntel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Direction string `json:"direction"`
	}
	s.handleAction(w, r, &in, func(playerID string) (string, error) {
		msg, err := s.state.PurchaseIntel(playerID, game.Direction(strings.ToLower(strings.TrimSpace(in.Direction))))
		if err == nil {
			metrics.IncIntel(in.Direction)
			if s.announcer != nil {
				s.announcer.Announce(msg)
			}
		}
		return msg, err
	})
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	s.handleAction(w, r, &in, func(playerID string) (string, error) {
		msg, err := s.state.TakeLoan(playerID, in.Amount)
		if err == nil {
			metrics.IncLoan()
		}
		return msg, err
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	s.handleAction(w, r, &in, func(playerID string) (string, error) {
		return s.state.PostMessage(playerID, in.Text)
	})
}

// handleAction decodes the body, runs the action, and always answers with
// the action's status message plus a refreshed dashboard snapshot. An
// Idempotency-Key header makes the call replay-safe: a key seen before
// answers with the recorded response instead of executing again.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, in any, run func(playerID string) (string, error)) {
	playerID, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := decodeJSON(r, in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		idemKey = playerID + "\x00" + idemKey
		if resp, ok := s.idemLookup(idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.status)
			_, _ = w.Write(resp.body)
			return
		}
	}

	msg, actionErr := run(playerID)

	view, viewErr := s.state.GetPlayerView(playerID)
	payload := map[string]any{}
	if viewErr == nil {
		payload["dashboard"] = view
	}

	status := http.StatusOK
	if actionErr != nil {
		payload["message"] = actionErr.Error()
		status = domainStatus(actionErr)
	} else {
		payload["message"] = msg
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if idemKey != "" {
		s.idemStore(idemKey, status, raw)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func (s *Server) idemLookup(key string) (idemResponse, bool) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	resp, ok := s.idemSeen[key]
	return resp, ok
}

func (s *Server) idemStore(key string, status int, body []byte) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	if _, ok := s.idemSeen[key]; ok {
		return
	}
	if len(s.idemOrder) >= idemCacheCap {
		oldest := s.idemOrder[0]
		s.idemOrder = s.idemOrder[1:]
		delete(s.idemSeen, oldest)
	}
	s.idemSeen[key] = idemResponse{status: status, body: body}
	s.idemOrder = append(s.idemOrder, key)
}

func (s *Server) handleAdminStart(w http.ResponseWriter, r *http.Request) {
	if err := s.state.StartGame(); err != nil {
		writeDomainError(w, err)
		return
	}
	s.clock.Start(s.baseCtx)
	writeJSON(w, http.StatusOK, map[string]any{"message": "round started"})
}

func (s *Server) handleAdminAdvance(w http.ResponseWriter, r *http.Request) {
	res := s.state.AdvanceHour()
	s.afterTick(res)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "clock advanced",
		"hour":     res.Hour,
		"price":    res.Price,
		"advanced": res.Advanced,
		"settled":  res.Settled,
	})
}

func (s *Server) handleAdminFastForward(w http.ResponseWriter, r *http.Request) {
	res := s.state.FastForwardToEnd()
	s.afterTick(res)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "fast-forwarded",
		"hour":    res.Hour,
		"price":   res.Price,
		"settled": res.Settled,
	})
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	s.clock.Stop()
	s.state.PrepareNextRound()
	writeJSON(w, http.StatusOK, map[string]any{"message": "next round prepared"})
}

func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.GetAdminView())
}

// afterTick updates gauges and, on settlement, exports the round report.
func (s *Server) afterTick(res game.TickResult) {
	metrics.SetPrice(res.Price)
	metrics.SetClockHour(res.Hour)
	if res.Liquidations > 0 {
		metrics.IncLiquidations(res.Liquidations)
	}
	overview := s.state.GetAdminView()
	metrics.SetShortPressure(overview.ShortPressure)
	metrics.SetPlayers(len(overview.Players))

	if res.Report == nil {
		return
	}
	if s.announcer != nil && res.Report.Narrative != "" {
		s.announcer.Announce(res.Report.Narrative)
	}
	if s.exporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.exporter.SaveRound(ctx, *res.Report); err != nil {
		s.log.Error("round report export failed", "err", err)
	} else {
		s.log.Info("round report exported", "final_price", res.Report.FinalPrice)
	}
}

func domainStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrNotRegistered):
		return http.StatusUnauthorized
	case errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrTradingClosed),
		errors.Is(err, game.ErrCooldownActive),
		errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrInsufficientMargin),
		errors.Is(err, game.ErrCreditLimit),
		errors.Is(err, game.ErrAccountRestricted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, game.ErrAlreadyRegistered),
		errors.Is(err, game.ErrRegistrationClosed),
		errors.Is(err, game.ErrRoundActive),
		errors.Is(err, game.ErrRoundSettled):
		return http.StatusConflict
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return http.StatusPreconditionFailed
	default:
		return http.StatusBadRequest
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, domainStatus(err), err.Error())
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
