package report

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"darkpool/internal/game"
)

// Store archives settled rounds into Postgres. One row per round; the
// leaderboard, bars and logs are kept as jsonb so the schema survives
// gameplay tweaks without migrations.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS round_reports (
			id           BIGSERIAL PRIMARY KEY,
			settled_at   TIMESTAMPTZ NOT NULL,
			final_price  DOUBLE PRECISION NOT NULL,
			narrative    TEXT NOT NULL DEFAULT '',
			stats        JSONB NOT NULL,
			leaderboard  JSONB NOT NULL,
			bars         JSONB NOT NULL,
			system_logs  JSONB NOT NULL,
			chat_logs    JSONB NOT NULL
		)
	`)
	return err
}

func (s *Store) SaveRound(ctx context.Context, rep game.RoundReport) error {
	stats, err := json.Marshal(rep.Stats)
	if err != nil {
		return err
	}
	leaderboard, err := json.Marshal(rep.Leaderboard)
	if err != nil {
		return err
	}
	bars, err := json.Marshal(rep.Bars)
	if err != nil {
		return err
	}
	systemLogs, err := json.Marshal(rep.SystemLogs)
	if err != nil {
		return err
	}
	chatLogs, err := json.Marshal(rep.ChatLogs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO round_reports (settled_at, final_price, narrative, stats, leaderboard, bars, system_logs, chat_logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rep.SettledAt, rep.FinalPrice, rep.Narrative, stats, leaderboard, bars, systemLogs, chatLogs)
	return err
}
