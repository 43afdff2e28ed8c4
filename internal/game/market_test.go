package game

import (
	"errors"
	"fmt"
	"testing"
)

func TestStartGameAssignsMarketMakers(t *testing.T) {
	tests := []struct {
		players int
		wantMM  int
	}{
		{players: 1, wantMM: 1},
		{players: 9, wantMM: 1},
		{players: 10, wantMM: 1},
		{players: 25, wantMM: 2},
	}
	for _, tc := range tests {
		g := NewState(Config{Seed: 7}, nil, testLogger())
		for i := 0; i < tc.players; i++ {
			id := fmt.Sprintf("u%02d", i)
			if _, _, err := g.Register(id, id); err != nil {
				t.Fatalf("register: %v", err)
			}
		}
		if err := g.StartGame(); err != nil {
			t.Fatalf("start: %v", err)
		}

		mm := 0
		for _, p := range g.players {
			if p.Role == RoleMarketMaker {
				mm++
			}
		}
		if mm != tc.wantMM {
			t.Fatalf("players=%d market makers got %d want %d", tc.players, mm, tc.wantMM)
		}
	}
}

func TestStartGameRejections(t *testing.T) {
	g := NewState(Config{Seed: 7}, nil, testLogger())
	if err := g.StartGame(); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("empty table: got %v", err)
	}

	if _, _, err := g.Register("u1", "U1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := g.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.StartGame(); !errors.Is(err, ErrRoundActive) {
		t.Fatalf("double start: got %v", err)
	}
}

func TestStartGameBlockedUntilNextRoundPrepared(t *testing.T) {
	g := NewState(Config{Seed: 7}, nil, testLogger())
	if _, _, err := g.Register("u1", "U1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := g.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if res := g.FastForwardToEnd(); !res.Settled {
		t.Fatalf("round did not settle: %+v", res)
	}

	if err := g.StartGame(); !errors.Is(err, ErrRoundSettled) {
		t.Fatalf("start from settlement: got %v", err)
	}

	g.PrepareNextRound()
	if err := g.StartGame(); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
}

func TestAdvanceHourProducesBar(t *testing.T) {
	g := newTradingState(t, "u1")

	res := g.AdvanceHour()
	if !res.Advanced || res.Hour != 1 {
		t.Fatalf("unexpected tick result %+v", res)
	}
	if len(g.bars) != 1 {
		t.Fatalf("bar count got %d want 1", len(g.bars))
	}

	bar := g.bars[0]
	if bar.High < bar.Open || bar.High < bar.Close {
		t.Fatalf("high %.2f must straddle open %.2f and close %.2f", bar.High, bar.Open, bar.Close)
	}
	if bar.Low > bar.Open || bar.Low > bar.Close {
		t.Fatalf("low %.2f must straddle open %.2f and close %.2f", bar.Low, bar.Open, bar.Close)
	}
	if bar.Close != res.Price {
		t.Fatalf("bar close %.2f != tick price %.2f", bar.Close, res.Price)
	}
	if g.momentum != 0 {
		t.Fatalf("momentum must reset each hour, got %.4f", g.momentum)
	}
}

func TestAdvanceHourNoOpOutsideTrading(t *testing.T) {
	g := NewState(Config{Seed: 7}, nil, testLogger())
	if res := g.AdvanceHour(); res.Advanced {
		t.Fatalf("registration phase tick must be a no-op")
	}
}

func TestHourlyVolumeAccumulatesTrades(t *testing.T) {
	g := newTradingState(t, "u1", "u2")
	if _, err := g.Buy("u1", 100); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := g.Sell("u2", 40); err != nil {
		t.Fatalf("sell: %v", err)
	}

	res := g.AdvanceHour()
	if !res.Advanced {
		t.Fatalf("expected tick")
	}
	if got := g.bars[0].Volume; got != 140 {
		t.Fatalf("bar volume got %d want 140", got)
	}
	if g.volume != 0 {
		t.Fatalf("hour volume must reset, got %d", g.volume)
	}
}

func TestSweepLiquidatesUndermarginedShorts(t *testing.T) {
	g := newTradingState(t, "u1", "u2", "u3")

	// risk 0.40: liquidate.
	doomed := g.players["u1"]
	doomed.Position = -1000
	doomed.Cash = 140_000

	// risk 1.20: warn only.
	warned := g.players["u2"]
	warned.Position = -1000
	warned.Cash = 220_000

	long := g.players["u3"]
	long.Position = 500
	long.Cash = 0

	g.mu.Lock()
	n := g.sweepShortsLocked()
	g.mu.Unlock()

	if n != 1 {
		t.Fatalf("liquidation count got %d want 1", n)
	}
	if doomed.Position != 0 {
		t.Fatalf("liquidated short must be flattened, position %d", doomed.Position)
	}
	if !almostEqual(doomed.Cash, 40_000) {
		t.Fatalf("buy-back cash got %.2f want 40000", doomed.Cash)
	}
	if doomed.LastEvent != eventLiquidated {
		t.Fatalf("last event got %q", doomed.LastEvent)
	}
	if !almostEqual(g.momentum, 0.05) {
		t.Fatalf("squeeze momentum got %.4f want 0.05", g.momentum)
	}

	if warned.Position != -1000 {
		t.Fatalf("warned short must keep its position")
	}
	if long.Position != 500 || long.Cash != 0 {
		t.Fatalf("long accounts are never liquidated: %+v", long)
	}
}

func TestLiquidationCanGoNegative(t *testing.T) {
	g := newTradingState(t, "u1")
	p := g.players["u1"]
	p.Position = -1000
	p.Cash = 50_000

	g.mu.Lock()
	g.sweepShortsLocked()
	g.mu.Unlock()

	if !almostEqual(p.Cash, -50_000) {
		t.Fatalf("cash got %.2f want -50000", p.Cash)
	}
}

func TestFastForwardSettlesRound(t *testing.T) {
	g := newTradingState(t, "u1", "u2")

	res := g.FastForwardToEnd()
	if !res.Settled || res.Report == nil {
		t.Fatalf("expected settlement, got %+v", res)
	}
	if g.phase != PhaseSettlement {
		t.Fatalf("phase got %s want settlement", g.phase)
	}
	if len(res.Report.Bars) != RoundHours {
		t.Fatalf("bar count got %d want %d", len(res.Report.Bars), RoundHours)
	}
	if len(res.Report.Leaderboard) != 2 {
		t.Fatalf("leaderboard rows got %d want 2", len(res.Report.Leaderboard))
	}

	// Settlement marks to market, takes 10% and clears positions and debt.
	for id, p := range g.players {
		if p.Position != 0 || p.Debt != 0 {
			t.Fatalf("%s not fully settled: %+v", id, p)
		}
	}

	// Ticking a settled round is a no-op.
	if after := g.AdvanceHour(); after.Advanced {
		t.Fatalf("settled round must not advance")
	}
}

func TestSettlementFeeApplied(t *testing.T) {
	g := newTradingState(t, "u1")
	p := g.players["u1"]
	p.Position = 0
	p.Debt = 0

	g.FastForwardToEnd()

	want := StartingCash * (1 - SettlementFeeRate)
	if !almostEqual(p.Cash, want) {
		t.Fatalf("settled cash got %.2f want %.2f", p.Cash, want)
	}
}

func TestHarvestStats(t *testing.T) {
	g := newTradingState(t, "u1", "u2")
	g.players["u1"].Role = RoleMarketMaker

	res := g.FastForwardToEnd()
	stats := res.Report.Stats

	if stats.Players != 2 {
		t.Fatalf("players got %d want 2", stats.Players)
	}
	if !almostEqual(stats.HarvestTarget, 0.5*StartingCash) {
		t.Fatalf("harvest target got %.2f", stats.HarvestTarget)
	}
	// u2 is flat retail: only the management fee bites.
	wantLoss := StartingCash * SettlementFeeRate
	if !almostEqual(stats.RetailLosses, wantLoss) {
		t.Fatalf("retail losses got %.2f want %.2f", stats.RetailLosses, wantLoss)
	}
}

func TestPrepareNextRoundKeepsIdentities(t *testing.T) {
	g := newTradingState(t, "u1", "u2")
	token := g.players["u1"].Token
	g.players["u1"].Cash = 123
	g.FastForwardToEnd()

	g.PrepareNextRound()

	if g.phase != PhaseRegistration {
		t.Fatalf("phase got %s want registration", g.phase)
	}
	p, ok := g.players["u1"]
	if !ok {
		t.Fatalf("player identity must survive the reset")
	}
	if p.Token != token {
		t.Fatalf("session token must survive the reset")
	}
	if p.Cash != StartingCash {
		t.Fatalf("balance must reset, got %.2f", p.Cash)
	}
	if id, ok := g.FindPlayerByToken(token); !ok || id != "u1" {
		t.Fatalf("token lookup after reset: %q %v", id, ok)
	}
}

func TestRegisterDuplicateReturnsSameToken(t *testing.T) {
	g := NewState(Config{Seed: 7}, nil, testLogger())
	tok1, _, err := g.Register("u1", "U1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	tok2, msg, err := g.Register("u1", "U1")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if tok1 != tok2 {
		t.Fatalf("duplicate registration must return the original token")
	}
	if msg == "registered" {
		t.Fatalf("duplicate registration should be acknowledged differently")
	}
}

func TestLateJoinGating(t *testing.T) {
	closed := NewState(Config{Seed: 7}, nil, testLogger())
	if _, _, err := closed.Register("u1", "U1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := closed.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := closed.Register("late", "Late"); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected registration closed, got %v", err)
	}

	open := NewState(Config{Seed: 7, AllowLateJoin: true}, nil, testLogger())
	if _, _, err := open.Register("u1", "U1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := open.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := open.Register("late", "Late"); err != nil {
		t.Fatalf("late join should be allowed: %v", err)
	}
	if open.players["late"].Role != RoleRetail {
		t.Fatalf("late joiners are always retail")
	}
}
