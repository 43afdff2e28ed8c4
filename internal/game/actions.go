package game

import (
	"fmt"
	"math"
	"strings"
)

const (
	// BuyFeeRate is baked into every long purchase.
	BuyFeeRate = 0.05

	// SellFeeRate applies to plain sells; short opens pay the crowding fee.
	SellFeeRate = 0.05

	IntelCost = 5000.0

	// LoanInterestRate accrues immediately as a fixed liability.
	LoanInterestRate = 0.30

	// LoanCreditRatio caps a single loan at this share of current cash.
	LoanCreditRatio = 0.90
)

// Buy executes a market buy with the 5% transaction fee baked into cost.
func (g *GameState) Buy(playerID string, qty int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return "", err
	}
	if g.phase != PhaseTrading {
		return "", ErrTradingClosed
	}
	if qty <= 0 {
		return "", ErrInvalidQuantity
	}
	if err := g.checkCooldownLocked(p); err != nil {
		return "", err
	}

	cost := float64(qty) * g.price * (1 + BuyFeeRate)
	if p.MarginInfo(g.price).AvailableCash < cost {
		return "", fmt.Errorf("%w: need $%.2f", ErrInsufficientFunds, cost)
	}

	p.Cash -= cost
	p.Position += qty
	g.volume += qty
	p.LastTradeHour = g.clock
	p.appendLog(fmt.Sprintf("bought %d shares at $%.2f", qty, g.price))
	return fmt.Sprintf("bought %d shares for $%.2f", qty, cost), nil
}

// Sell executes a sell or short. Opening or deepening a short pays the
// crowding fee and must leave enough cash to cover the 150% margin on the
// resulting short notional; plain sells of owned shares are never blocked.
func (g *GameState) Sell(playerID string, qty int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return "", err
	}
	if g.phase != PhaseTrading {
		return "", ErrTradingClosed
	}
	if qty <= 0 {
		return "", ErrInvalidQuantity
	}
	if err := g.checkCooldownLocked(p); err != nil {
		return "", err
	}

	goingShort := p.Position-qty < 0
	feeRate := SellFeeRate
	if goingShort {
		feeRate = g.shortFeeLocked()
	}
	proceeds := float64(qty) * g.price * (1 - feeRate)

	if goingShort {
		newShortNotional := float64(qty-p.Position) * g.price
		if p.Cash+proceeds < newShortNotional*1.5 {
			return "", fmt.Errorf("%w: post-trade margin requires $%.2f", ErrInsufficientMargin, newShortNotional*1.5)
		}
	}

	p.Cash += proceeds
	p.Position -= qty
	g.volume += qty
	p.LastTradeHour = g.clock
	verb := "sold"
	if goingShort {
		verb = "shorted"
	}
	p.appendLog(fmt.Sprintf("%s %d shares at $%.2f (fee %.1f%%)", verb, qty, g.price, feeRate*100))
	return fmt.Sprintf("%s %d shares for $%.2f", verb, qty, proceeds), nil
}

// PurchaseIntel spends a fixed 5000 to nudge market momentum in the chosen
// direction. Market-makers hit three times harder than retail, impact decays
// to zero as momentum saturates toward the volatility ceiling, and each
// purchase publishes a planted market-news line. Exempt from the trade
// cooldown.
func (g *GameState) PurchaseIntel(playerID string, direction Direction) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return "", err
	}
	if g.phase != PhaseTrading {
		return "", ErrTradingClosed
	}
	if direction != DirectionUp && direction != DirectionDown {
		return "", fmt.Errorf("direction must be %q or %q", DirectionUp, DirectionDown)
	}

	status := p.AccountStatus(g.price, g.clock)
	if status.Liquidated || status.Frozen {
		return "", fmt.Errorf("%w: %s", ErrAccountRestricted, status.Summary())
	}
	if p.MarginInfo(g.price).AvailableCash < IntelCost {
		return "", ErrInsufficientFunds
	}

	p.Cash -= IntelCost
	base := 0.05
	if p.Role == RoleMarketMaker {
		base = 0.15
	}
	impact := base
	if direction == DirectionDown {
		impact = -base
	}
	actual := boundedImpact(g.momentum, impact, VolatilityLimit)
	g.momentum += actual

	headline, err := g.narrator.Headline(direction)
	if err != nil || strings.TrimSpace(headline) == "" {
		headline = fallbackHeadline(direction)
	}
	g.systemLog("market news: " + headline)
	g.chatLog("[news] " + headline)
	p.appendLog(fmt.Sprintf("planted %s intel, %+.2f%% momentum", direction, actual*100))
	g.log.Info("intel purchased", "player", p.ID, "direction", direction, "impact", actual)
	return "intel purchased, news published: " + headline, nil
}

// boundedImpact scales a momentum nudge by the remaining headroom to the
// volatility limit. De-risking moves (shrinking or flipping momentum) pass
// through unattenuated; same-direction stacking gets diminishing returns
// and can never push |momentum| past the limit.
func boundedImpact(current, impact, limit float64) float64 {
	target := current + impact
	if math.Abs(target) < math.Abs(current) || target*current < 0 {
		return impact
	}
	headroom := limit - math.Abs(current)
	if headroom <= 0 {
		return 0
	}
	return impact * headroom / limit
}

// TakeLoan hands out cash against a hard 90%-of-cash credit limit, with 30%
// interest accrued immediately. The limit intentionally ignores existing
// debt, so stacked loans compound leverage. Exempt from the trade cooldown.
func (g *GameState) TakeLoan(playerID string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return "", err
	}
	if g.phase != PhaseTrading {
		return "", ErrTradingClosed
	}
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	limit := p.Cash * LoanCreditRatio
	if float64(amount) > limit {
		return "", fmt.Errorf("%w: limit $%.2f", ErrCreditLimit, limit)
	}

	p.Cash += float64(amount)
	owed := float64(amount) * (1 + LoanInterestRate)
	p.Debt += owed
	p.appendLog(fmt.Sprintf("took a $%d loan, now owing $%.2f", amount, p.Debt))
	g.log.Info("loan issued", "player", p.ID, "amount", amount, "debt", p.Debt)
	return fmt.Sprintf("loan approved: +$%d cash, $%.2f added to debt", amount, owed), nil
}

// PostMessage appends a role-tagged line to the trader chat. No economic
// effect.
func (g *GameState) PostMessage(playerID, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, err := g.playerLocked(playerID)
	if err != nil {
		return "", err
	}
	if g.phase != PhaseTrading {
		return "", ErrTradingClosed
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	tag := "[investor]"
	if p.Role == RoleMarketMaker {
		tag = "[insider]"
	}
	g.chatLog(fmt.Sprintf("%s %s: %s", tag, p.DisplayName, strings.TrimSpace(text)))
	return "message sent", nil
}

func (g *GameState) checkCooldownLocked(p *Player) error {
	left := CooldownHours - (g.clock - p.LastTradeHour)
	if left > 0 {
		return fmt.Errorf("%w: %d hours remaining", ErrCooldownActive, left)
	}
	return nil
}

func fallbackHeadline(direction Direction) string {
	if direction == DirectionUp {
		return "sector leaders announce a major expansion plan"
	}
	return "regulators warn of rising market risk"
}
