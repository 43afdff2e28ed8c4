package game

import "fmt"

type Role string

const (
	RoleRetail      Role = "retail"
	RoleMarketMaker Role = "market-maker"
)

const (
	StartingCash = 1_000_000.0

	// CooldownHours is the minimum gap between a player's executed trades.
	CooldownHours = 3

	playerLogCap = 50
)

// Player is one account in the round. All fields are guarded by the
// owning GameState's mutex; nothing outside the game package mutates them.
type Player struct {
	ID          string
	DisplayName string
	Token       string
	Role        Role

	Cash     float64
	Position int64
	Debt     float64

	// LastTradeHour starts at -CooldownHours so an hour-0 trade passes.
	LastTradeHour int
	LastEvent     string

	Log []string
}

func newPlayer(id, name, token string) *Player {
	return &Player{
		ID:            id,
		DisplayName:   name,
		Token:         token,
		Role:          RoleRetail,
		Cash:          StartingCash,
		LastTradeHour: -CooldownHours,
	}
}

// NetWorth is cash plus position marked at price, minus outstanding debt.
func (p *Player) NetWorth(price float64) float64 {
	return p.Cash + float64(p.Position)*price - p.Debt
}

type MarginInfo struct {
	ShortValue    float64
	FrozenCash    float64
	AvailableCash float64
	RiskRatio     float64
}

// MarginInfo computes the short-margin picture at the given price. Frozen
// cash is 150% of short notional: the buy-back cost plus a 50% maintenance
// buffer. A long or flat account has everything available and zero risk.
func (p *Player) MarginInfo(price float64) MarginInfo {
	if p.Position >= 0 {
		return MarginInfo{AvailableCash: p.Cash}
	}
	shortVal := float64(-p.Position) * price
	frozen := shortVal * 1.5
	avail := p.Cash - frozen
	if avail < 0 {
		avail = 0
	}
	risk := 999.0
	if shortVal > 0 {
		risk = (p.Cash - shortVal) / shortVal
	}
	return MarginInfo{
		ShortValue:    shortVal,
		FrozenCash:    frozen,
		AvailableCash: avail,
		RiskRatio:     risk,
	}
}

// Status is the derived account condition shown on dashboards and used to
// gate intel purchases.
type Status struct {
	Tags []string

	Liquidated   bool
	CoolingDown  bool
	CooldownLeft int
	Frozen       bool
	InDebt       bool
}

func (s Status) Summary() string {
	if len(s.Tags) == 0 {
		return "flat"
	}
	out := s.Tags[0]
	for _, t := range s.Tags[1:] {
		out += ", " + t
	}
	return out
}

// AccountStatus derives the player's status tags at the given price and
// simulated hour. A fresh liquidation overrides everything else; otherwise
// tags combine (cooldown + debt + short risk).
func (p *Player) AccountStatus(price float64, hour int) Status {
	if p.LastEvent == eventLiquidated {
		return Status{Tags: []string{"just liquidated"}, Liquidated: true}
	}

	var st Status
	if left := CooldownHours - (hour - p.LastTradeHour); left > 0 {
		st.CoolingDown = true
		st.CooldownLeft = left
		st.Tags = append(st.Tags, fmt.Sprintf("cooldown %dh left", left))
	}
	if p.Debt > 0 {
		st.InDebt = true
		st.Tags = append(st.Tags, fmt.Sprintf("debt $%.0f", p.Debt))
	}

	if p.Position < 0 {
		m := p.MarginInfo(price)
		switch {
		case m.RiskRatio < 1.15:
			st.Tags = append(st.Tags, "near liquidation")
		case m.RiskRatio < 1.35:
			st.Tags = append(st.Tags, "margin call warning")
		case m.AvailableCash < 5000:
			st.Frozen = true
			st.Tags = append(st.Tags, "funds frozen")
		default:
			st.Tags = append(st.Tags, "short position open")
		}
		return st
	}

	if len(st.Tags) == 0 {
		if p.Position > 0 {
			st.Tags = append(st.Tags, "holding")
		} else {
			st.Tags = append(st.Tags, "flat")
		}
	}
	return st
}

func (p *Player) appendLog(line string) {
	p.Log = append(p.Log, line)
	if len(p.Log) > playerLogCap {
		p.Log = p.Log[len(p.Log)-playerLogCap:]
	}
}
