package game

import (
	"fmt"
	"sort"
	"time"
)

// PlayerView is the dashboard projection for one player. Pure read; built
// under the state mutex from copies.
type PlayerView struct {
	DisplayName string  `json:"display_name"`
	Role        Role    `json:"role"`
	Phase       Phase   `json:"phase"`
	Hour        int     `json:"hour"`
	Price       float64 `json:"price"`

	StatusSummary string  `json:"status_summary"`
	Cash          float64 `json:"cash"`
	FrozenCash    float64 `json:"frozen_cash"`
	AvailableCash float64 `json:"available_cash"`
	Position      int64   `json:"position"`
	Debt          float64 `json:"debt"`
	NetWorth      float64 `json:"net_worth"`
	RiskRatio     float64 `json:"risk_ratio"`

	TrendInfo   string   `json:"trend_info"`
	BuyHint     string   `json:"buy_hint"`
	SellHint    string   `json:"sell_hint"`
	SystemLogs  []string `json:"system_logs"`
	ChatLogs    []string `json:"chat_logs"`
	PersonalLog []string `json:"personal_log"`
	Online      []string `json:"online"`

	ChartSeries []Bar            `json:"chart_series"`
	Leaderboard []LeaderboardRow `json:"leaderboard,omitempty"` // settlement only
}

type LeaderboardRow struct {
	Rank     int     `json:"rank"`
	Name     string  `json:"name"`
	ID       string  `json:"id"`
	Role     Role    `json:"role"`
	Cash     float64 `json:"cash"`
	Bankrupt bool    `json:"bankrupt"`
}

// AdminView is the god-mode projection over the whole table.
type AdminView struct {
	Phase         Phase            `json:"phase"`
	Hour          int              `json:"hour"`
	Price         float64          `json:"price"`
	Trend         float64          `json:"trend"`
	Momentum      float64          `json:"momentum"`
	ShortPressure float64          `json:"short_pressure"`
	PhaseSummary  string           `json:"phase_summary"`
	ChartSeries   []Bar            `json:"chart_series"`
	Players       []AdminPlayerRow `json:"players"`
	SystemLogs    []string         `json:"system_logs"`
	ChatLogs      []string         `json:"chat_logs"`
}

type AdminPlayerRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Role     Role    `json:"role"`
	Cash     float64 `json:"cash"`
	Position int64   `json:"position"`
	Debt     float64 `json:"debt"`
	NetWorth float64 `json:"net_worth"`
	Status   string  `json:"status"`
}

// RoundReport is the durable record of a finished round, handed to the
// report exporters after settlement.
type RoundReport struct {
	SettledAt   time.Time        `json:"settled_at"`
	FinalPrice  float64          `json:"final_price"`
	Stats       RoundStats       `json:"stats"`
	Leaderboard []LeaderboardRow `json:"leaderboard"`
	Bars        []Bar            `json:"bars"`
	SystemLogs  []string         `json:"system_logs"`
	ChatLogs    []string         `json:"chat_logs"`
	Narrative   string           `json:"narrative,omitempty"`
}

// GetPlayerView builds the dashboard snapshot for one player.
func (g *GameState) GetPlayerView(playerID string) (PlayerView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return PlayerView{}, err
	}

	m := p.MarginInfo(g.price)
	v := PlayerView{
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Phase:         g.phase,
		Hour:          g.clock,
		Price:         g.price,
		StatusSummary: p.AccountStatus(g.price, g.clock).Summary(),
		Cash:          p.Cash,
		FrozenCash:    m.FrozenCash,
		AvailableCash: m.AvailableCash,
		Position:      p.Position,
		Debt:          p.Debt,
		NetWorth:      p.NetWorth(g.price),
		RiskRatio:     m.RiskRatio,
		SystemLogs:    tail(g.systemLogs, 8),
		ChatLogs:      tail(g.messages, 8),
		PersonalLog:   tail(p.Log, 8),
		ChartSeries:   append([]Bar(nil), g.bars...),
	}

	for _, other := range g.sortedPlayersLocked() {
		v.Online = append(v.Online, other.DisplayName)
	}

	if g.phase == PhaseTrading {
		switch p.Role {
		case RoleMarketMaker:
			v.TrendInfo = fmt.Sprintf("god view: trend %+.2f%%/h, projected %+.2f%%/round, planted momentum %+.2f%%",
				g.trend*100, g.trend*float64(RoundHours)*100, g.momentum*100)
		default:
			v.TrendInfo = fmt.Sprintf("market brief: short crowding %.0f%%, trading fees from 5%%", g.shortPressure*100)
		}
		if g.price > 0 {
			maxBuy := int64(m.AvailableCash / (g.price * (1 + BuyFeeRate)))
			v.BuyHint = fmt.Sprintf("max ~%d shares at $%.2f", maxBuy, g.price)
		}
		v.SellHint = fmt.Sprintf("own %d shares; selling further opens a short", p.Position)
	}

	if g.phase == PhaseSettlement {
		v.Leaderboard = g.leaderboardLocked()
	}
	return v, nil
}

// GetAdminView builds the full-table projection.
func (g *GameState) GetAdminView() AdminView {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := AdminView{
		Phase:         g.phase,
		Hour:          g.clock,
		Price:         g.price,
		Trend:         g.trend,
		Momentum:      g.momentum,
		ShortPressure: g.shortPressure,
		PhaseSummary:  fmt.Sprintf("%s, hour %d/%d, %d players", g.phase, g.clock, RoundHours, len(g.players)),
		ChartSeries:   append([]Bar(nil), g.bars...),
		SystemLogs:    append([]string(nil), g.systemLogs...),
		ChatLogs:      append([]string(nil), g.messages...),
	}
	for _, p := range g.sortedPlayersLocked() {
		v.Players = append(v.Players, AdminPlayerRow{
			ID:       p.ID,
			Name:     p.DisplayName,
			Role:     p.Role,
			Cash:     p.Cash,
			Position: p.Position,
			Debt:     p.Debt,
			NetWorth: p.NetWorth(g.price),
			Status:   p.AccountStatus(g.price, g.clock).Summary(),
		})
	}
	return v
}

func (g *GameState) leaderboardLocked() []LeaderboardRow {
	players := g.sortedPlayersLocked()
	sort.SliceStable(players, func(i, j int) bool { return players[i].Cash > players[j].Cash })
	rows := make([]LeaderboardRow, 0, len(players))
	for i, p := range players {
		rows = append(rows, LeaderboardRow{
			Rank:     i + 1,
			Name:     p.DisplayName,
			ID:       p.ID,
			Role:     p.Role,
			Cash:     p.Cash,
			Bankrupt: p.Cash <= 0,
		})
	}
	return rows
}

func (g *GameState) roundReportLocked(stats RoundStats) *RoundReport {
	return &RoundReport{
		SettledAt:   time.Now(),
		FinalPrice:  g.price,
		Stats:       stats,
		Leaderboard: g.leaderboardLocked(),
		Bars:        append([]Bar(nil), g.bars...),
		SystemLogs:  append([]string(nil), g.systemLogs...),
		ChatLogs:    append([]string(nil), g.messages...),
	}
}

func (g *GameState) sortedPlayersLocked() []*Player {
	out := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return append([]string(nil), lines...)
	}
	return append([]string(nil), lines[len(lines)-n:]...)
}
