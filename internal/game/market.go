package game

import (
	"fmt"
	"math"
	"sort"
)

// StartGame transitions Registration to Trading: samples the round trend,
// runs the market-maker lottery and opens the clock at hour zero. The phase
// machine is linear, so a settled round must go through PrepareNextRound
// before trading can open again.
func (g *GameState) StartGame() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase == PhaseTrading {
		return ErrRoundActive
	}
	if g.phase == PhaseSettlement {
		return ErrRoundSettled
	}
	if len(g.players) < 1 {
		return ErrNotEnoughPlayers
	}

	g.phase = PhaseTrading
	g.clock = 0
	g.trend = g.rng.Float64()*0.04 - 0.02
	g.momentum = 0
	g.price = StartingPrice
	g.barOpen = StartingPrice
	g.volume = 0
	g.bars = nil

	ids := make([]string, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	g.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	numMM := len(ids) / 10
	if numMM < 1 {
		numMM = 1
	}
	for i, id := range ids {
		if i < numMM {
			g.players[id].Role = RoleMarketMaker
		} else {
			g.players[id].Role = RoleRetail
		}
	}

	g.systemLog(fmt.Sprintf("market open: %d traders seated, %d running the book", len(ids), numMM))
	g.log.Info("round started", "players", len(ids), "market_makers", numMM, "trend", g.trend)
	return nil
}

// TickResult reports what a clock advance did. Report is non-nil exactly
// once per round, on the tick that triggered settlement.
type TickResult struct {
	Advanced     bool
	Hour         int
	Price        float64
	Liquidations int
	Settled      bool
	Report       *RoundReport
}

// AdvanceHour moves the simulation forward one hour: price path, bar
// synthesis, liquidation sweep, and settlement once the clock hits 12.
// Calling it outside Trading, or past hour 12, is a no-op.
func (g *GameState) AdvanceHour() TickResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseTrading || g.clock >= RoundHours {
		return TickResult{Hour: g.clock, Price: g.price}
	}

	hourOpen := g.barOpen

	noise := g.rng.Float64()*0.02 - 0.01
	change := g.trend + g.momentum + noise
	if change > 0.5 {
		change = 0.5
	}
	if change < -0.5 {
		change = -0.5
	}
	g.price *= 1 + change
	hourClose := g.price

	// Synthetic intrabar wicks: high/low always straddle open and close.
	volatility := math.Abs(hourOpen-hourClose) + hourOpen*0.01
	high := math.Max(hourOpen, hourClose) + g.rng.Float64()*0.5*volatility
	low := math.Min(hourOpen, hourClose) - g.rng.Float64()*0.5*volatility

	bar := Bar{
		Hour:   g.clock,
		Open:   hourOpen,
		High:   high,
		Low:    low,
		Close:  hourClose,
		Volume: g.volume,
	}
	g.bars = append(g.bars, bar)

	g.clock++
	g.barOpen = g.price
	g.volume = 0
	g.momentum = 0

	liquidated := g.sweepShortsLocked()

	g.systemLog(fmt.Sprintf("hour %d close at $%.2f", g.clock, g.price))
	if line, err := g.narrator.HourlyCommentary(bar, change*100); err == nil && line != "" {
		g.systemLog(line)
	}

	res := TickResult{Advanced: true, Hour: g.clock, Price: g.price, Liquidations: liquidated}
	if g.clock >= RoundHours {
		res.Settled = true
		res.Report = g.settleLocked()
	}
	return res
}

// sweepShortsLocked clears transient flags and force-closes any short whose
// risk ratio fell under the maintenance margin. Liquidation buy-backs feed
// the next bar's volume and add squeeze momentum to the next hour.
func (g *GameState) sweepShortsLocked() int {
	liquidated := 0
	for _, p := range g.players {
		p.LastEvent = ""
		if p.Position >= 0 {
			continue
		}
		m := p.MarginInfo(g.price)
		switch {
		case m.RiskRatio < MaintenanceMargin:
			g.liquidateLocked(p)
			liquidated++
		case m.RiskRatio < 1.30:
			p.appendLog(fmt.Sprintf("warning: margin level %.2f is running low", m.RiskRatio))
		}
	}
	return liquidated
}

func (g *GameState) liquidateLocked(p *Player) {
	qty := -p.Position
	cost := float64(qty) * g.price
	p.Position = 0
	p.Cash -= cost // bankruptcy representable: cash may go negative
	p.LastEvent = eventLiquidated
	p.appendLog(fmt.Sprintf("forced buy-back of %d shares, $%.2f deducted", qty, cost))
	g.systemLog(fmt.Sprintf("%s was margin-liquidated (squeeze momentum +5%%)", p.DisplayName))
	g.momentum += 0.05
	g.volume += qty
	g.log.Warn("liquidation", "player", p.ID, "quantity", qty, "cost", cost)
}

// settleLocked runs end-of-round settlement: every account is marked to the
// final price, a 10% management fee comes off net worth, and positions and
// debts are absorbed into the final cash figure.
func (g *GameState) settleLocked() *RoundReport {
	g.phase = PhaseSettlement

	stats := RoundStats{FinalPrice: g.price, Players: len(g.players)}
	for _, p := range g.players {
		val := p.NetWorth(g.price)
		fee := val * SettlementFeeRate
		p.Cash = val - fee
		p.Position = 0
		p.Debt = 0
		p.appendLog(fmt.Sprintf("settled, management fee $%.2f deducted", fee))

		if p.Cash <= 0 {
			stats.Bankruptcies++
		}
		if p.Role == RoleRetail && p.Cash < StartingCash {
			stats.RetailLosses += StartingCash - p.Cash
		}
	}
	stats.HarvestTarget = g.cfg.HarvestRatio * StartingCash
	stats.HarvestMet = stats.RetailLosses >= stats.HarvestTarget
	g.lastStats = &stats

	g.systemLog("round closed, all assets settled")
	narrative := ""
	if line, err := g.narrator.RoundSummary(stats); err == nil && line != "" {
		narrative = line
		g.systemLog(line)
	}
	g.log.Info("round settled",
		"final_price", g.price,
		"bankruptcies", stats.Bankruptcies,
		"retail_losses", stats.RetailLosses,
		"harvest_met", stats.HarvestMet)

	rep := g.roundReportLocked(stats)
	rep.Narrative = narrative
	return rep
}

// FastForwardToEnd repeatedly advances the clock until Settlement, bounded
// by a safety cap. Each step takes the same lock as a normal tick.
func (g *GameState) FastForwardToEnd() TickResult {
	var last TickResult
	for i := 0; i < 20; i++ {
		res := g.AdvanceHour()
		if res.Report != nil {
			return res
		}
		if !res.Advanced {
			break
		}
		last = res
	}
	return last
}

// PrepareNextRound resets the game to Registration while preserving player
// identities: each registrant gets a fresh account with the same id, name
// and session token.
func (g *GameState) PrepareNextRound() {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := make([]*Player, 0, len(g.players))
	for _, p := range g.players {
		kept = append(kept, newPlayer(p.ID, p.DisplayName, p.Token))
	}
	g.resetLocked()
	for _, p := range kept {
		g.players[p.ID] = p
		g.byToken[p.Token] = p
	}
	g.systemLog("board wiped, next round open for registration")
	g.log.Info("next round prepared", "players", len(kept))
}
