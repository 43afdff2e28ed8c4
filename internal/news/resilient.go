package news

import (
	"log/slog"

	"darkpool/internal/game"
)

// Resilient tries a primary narrator and falls back to a deterministic one
// on any failure. It never returns an error, so the game's progression can
// never depend on an external text generator being reachable.
type Resilient struct {
	primary  game.Narrator
	fallback game.Narrator
	log      *slog.Logger
}

// NewResilient builds the standard chain. primary may be nil, in which case
// only the fallback is used.
func NewResilient(primary game.Narrator, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{primary: primary, fallback: NewTemplateNarrator(), log: logger}
}

func (r *Resilient) Headline(direction game.Direction) (string, error) {
	if r.primary != nil {
		if line, err := r.primary.Headline(direction); err == nil && line != "" {
			return line, nil
		} else if err != nil {
			r.log.Warn("narrator headline failed, using fallback", "err", err)
		}
	}
	return r.fallback.Headline(direction)
}

func (r *Resilient) HourlyCommentary(bar game.Bar, pctChange float64) (string, error) {
	if r.primary != nil {
		if line, err := r.primary.HourlyCommentary(bar, pctChange); err == nil && line != "" {
			return line, nil
		} else if err != nil {
			r.log.Warn("narrator commentary failed, using fallback", "err", err)
		}
	}
	return r.fallback.HourlyCommentary(bar, pctChange)
}

func (r *Resilient) RoundSummary(stats game.RoundStats) (string, error) {
	if r.primary != nil {
		if line, err := r.primary.RoundSummary(stats); err == nil && line != "" {
			return line, nil
		} else if err != nil {
			r.log.Warn("narrator summary failed, using fallback", "err", err)
		}
	}
	return r.fallback.RoundSummary(stats)
}
