// Package news provides Narrator implementations for the market flavor
// text: a deterministic template generator, an optional LLM-backed client,
// a best-effort resilience wrapper, and an optional Discord announcer.
package news

import (
	"fmt"
	"sync"

	"darkpool/internal/game"
)

var bullishHeadlines = []string{
	"industry giant announces a major investment program",
	"government unveils new stimulus measures",
	"breakthrough product launch electrifies the sector",
	"earnings season beats expectations across the board",
}

var bearishHeadlines = []string{
	"regulators warn of mounting market risk",
	"latest data points to a slowing economy",
	"geopolitical flare-up rattles investors",
	"accounting scandal puts a household name under investigation",
}

// TemplateNarrator rotates through fixed headline pools. Deterministic for
// a given call sequence, so tests and the no-LLM deployment behave the same.
type TemplateNarrator struct {
	mu   sync.Mutex
	next map[game.Direction]int
}

func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{next: map[game.Direction]int{}}
}

func (t *TemplateNarrator) Headline(direction game.Direction) (string, error) {
	pool := bearishHeadlines
	if direction == game.DirectionUp {
		pool = bullishHeadlines
	}
	t.mu.Lock()
	i := t.next[direction]
	t.next[direction] = (i + 1) % len(pool)
	t.mu.Unlock()
	return pool[i], nil
}

func (t *TemplateNarrator) HourlyCommentary(bar game.Bar, pctChange float64) (string, error) {
	mood := "drifts"
	switch {
	case pctChange >= 5:
		mood = "surges"
	case pctChange >= 1:
		mood = "climbs"
	case pctChange <= -5:
		mood = "craters"
	case pctChange <= -1:
		mood = "slides"
	}
	return fmt.Sprintf("tape talk: hour %d %s %+.2f%% to $%.2f on %d shares",
		bar.Hour+1, mood, pctChange, bar.Close, bar.Volume), nil
}

func (t *TemplateNarrator) RoundSummary(stats game.RoundStats) (string, error) {
	verdict := "the house fell short of its harvest"
	if stats.HarvestMet {
		verdict = "the house hit its harvest target"
	}
	return fmt.Sprintf("closing bell: $%.2f final, %d accounts wiped out, retail surrendered $%.0f; %s",
		stats.FinalPrice, stats.Bankruptcies, stats.RetailLosses, verdict), nil
}
