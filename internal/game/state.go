package game

import (
	"errors"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseRegistration Phase = "registration"
	PhaseTrading      Phase = "trading"
	PhaseSettlement   Phase = "settlement"
)

const (
	StartingPrice = 100.0
	RoundHours    = 12

	// VolatilityLimit bounds the cumulative intel-driven momentum magnitude.
	VolatilityLimit = 0.30

	// MaintenanceMargin is the risk ratio below which shorts are force-closed.
	MaintenanceMargin = 1.10

	// SettlementFeeRate is skimmed off net worth at round end.
	SettlementFeeRate = 0.10

	systemLogCap = 200
	chatLogCap   = 200
)

var (
	ErrNotRegistered      = errors.New("not registered")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrRegistrationClosed = errors.New("registration closed for this round")
	ErrTradingClosed      = errors.New("trading not open")
	ErrCooldownActive     = errors.New("cooldown active")
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrCreditLimit        = errors.New("credit limit exceeded")
	ErrAccountRestricted  = errors.New("account restricted")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrRoundActive        = errors.New("round already running")
	ErrRoundSettled       = errors.New("round settled, prepare the next round first")
)

const eventLiquidated = "liquidated"

// Config tunes one GameState. Zero values fall back to the calibrated
// defaults; CrowdDenom in particular is scaled to the 1,000,000 starting
// cash so a fully crowded short book needs notional equal to one bankroll.
type Config struct {
	CrowdDenom    float64
	HarvestRatio  float64
	AllowLateJoin bool
	Seed          int64
}

func (c Config) withDefaults() Config {
	if c.CrowdDenom <= 0 {
		c.CrowdDenom = 1_000_000
	}
	if c.HarvestRatio <= 0 {
		c.HarvestRatio = 0.5
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Bar is one hourly OHLCV candle.
type Bar struct {
	Hour   int     `json:"hour"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// RoundStats is the aggregate picture handed to the narrator at settlement.
// It never feeds back into balances.
type RoundStats struct {
	FinalPrice    float64 `json:"final_price"`
	Players       int     `json:"players"`
	Bankruptcies  int     `json:"bankruptcies"`
	RetailLosses  float64 `json:"retail_losses"`
	HarvestTarget float64 `json:"harvest_target"`
	HarvestMet    bool    `json:"harvest_met"`
}

// Narrator produces market flavor text. Implementations must be best-effort;
// the game treats any error as "use nothing" and carries on.
type Narrator interface {
	Headline(direction Direction) (string, error)
	HourlyCommentary(bar Bar, pctChange float64) (string, error)
	RoundSummary(stats RoundStats) (string, error)
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// GameState is the single shared game instance. It is constructed once at
// process start; every mutation and every read projection goes through mu.
type GameState struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger
	rng *mathrand.Rand

	narrator Narrator

	phase Phase
	clock int

	price    float64
	trend    float64
	momentum float64

	barOpen       float64
	volume        int64
	bars          []Bar
	shortPressure float64

	players    map[string]*Player
	byToken    map[string]*Player
	systemLogs []string
	messages   []string

	lastStats *RoundStats
}

func NewState(cfg Config, narrator Narrator, logger *slog.Logger) *GameState {
	if logger == nil {
		logger = slog.Default()
	}
	if narrator == nil {
		narrator = silentNarrator{}
	}
	cfg = cfg.withDefaults()
	g := &GameState{
		cfg:      cfg,
		log:      logger,
		rng:      mathrand.New(mathrand.NewSource(cfg.Seed)),
		narrator: narrator,
	}
	g.resetLocked()
	return g
}

// resetLocked reinitializes everything except player identities, which the
// caller manages. Callers must hold mu (or be the constructor).
func (g *GameState) resetLocked() {
	g.phase = PhaseRegistration
	g.clock = 0
	g.price = StartingPrice
	g.trend = 0
	g.momentum = 0
	g.barOpen = StartingPrice
	g.volume = 0
	g.bars = nil
	g.shortPressure = 0
	g.players = map[string]*Player{}
	g.byToken = map[string]*Player{}
	g.systemLogs = nil
	g.messages = nil
	g.lastStats = nil
}

// Register adds a player. Joining after trading has started is allowed only
// when configured, and late joiners are always retail. Re-registering an
// existing id returns the original session token so browser reloads survive.
func (g *GameState) Register(id, name string) (token string, msg string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.players[id]; ok {
		return p.Token, "already registered, welcome back", nil
	}
	if g.phase != PhaseRegistration && !g.cfg.AllowLateJoin {
		return "", "", ErrRegistrationClosed
	}

	p := newPlayer(id, name, uuid.NewString())
	g.players[id] = p
	g.byToken[p.Token] = p
	if g.phase != PhaseRegistration {
		g.systemLog(name + " joined mid-round as retail")
	}
	g.log.Info("player registered", "id", id, "name", name, "phase", g.phase)
	return p.Token, "registered", nil
}

// FindPlayerByToken resolves a session token to a player id. Used by the
// auto-login flow only.
func (g *GameState) FindPlayerByToken(token string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.byToken[token]
	if !ok {
		return "", false
	}
	return p.ID, true
}

func (g *GameState) systemLog(line string) {
	stamped := time.Now().Format("15:04:05") + " " + line
	g.systemLogs = append(g.systemLogs, stamped)
	if len(g.systemLogs) > systemLogCap {
		g.systemLogs = g.systemLogs[len(g.systemLogs)-systemLogCap:]
	}
}

func (g *GameState) chatLog(line string) {
	g.messages = append(g.messages, line)
	if len(g.messages) > chatLogCap {
		g.messages = g.messages[len(g.messages)-chatLogCap:]
	}
}

func (g *GameState) playerLocked(id string) (*Player, error) {
	p, ok := g.players[id]
	if !ok {
		return nil, ErrNotRegistered
	}
	return p, nil
}

// totalShortExposureLocked sums |position|×price across all short books.
func (g *GameState) totalShortExposureLocked() float64 {
	var total float64
	for _, p := range g.players {
		if p.Position < 0 {
			total += float64(-p.Position) * g.price
		}
	}
	return total
}

// shortFeeLocked prices short opens by crowding: 5% on an empty book rising
// linearly to 50% when aggregate short notional reaches CrowdDenom.
func (g *GameState) shortFeeLocked() float64 {
	crowding := g.totalShortExposureLocked() / g.cfg.CrowdDenom
	if crowding > 1 {
		crowding = 1
	}
	g.shortPressure = crowding
	return 0.05 + 0.45*crowding
}

// silentNarrator is the in-package fallback when no narrator is injected.
type silentNarrator struct{}

func (silentNarrator) Headline(Direction) (string, error)            { return "", errors.New("no narrator") }
func (silentNarrator) HourlyCommentary(Bar, float64) (string, error) { return "", errors.New("no narrator") }
func (silentNarrator) RoundSummary(RoundStats) (string, error)       { return "", errors.New("no narrator") }
