package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"darkpool/internal/api"
	"darkpool/internal/config"
	"darkpool/internal/db"
	"darkpool/internal/game"
	"darkpool/internal/news"
	"darkpool/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadAPIFromEnv()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var primary game.Narrator
	if cfg.LLMBaseURL != "" && cfg.LLMAPIKey != "" {
		primary = news.NewLLMNarrator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		logger.Info("llm narrator enabled", "model", cfg.LLMModel)
	}
	narrator := news.NewResilient(primary, logger)

	state := game.NewState(game.Config{
		CrowdDenom:    cfg.CrowdDenom,
		HarvestRatio:  cfg.HarvestRatio,
		AllowLateJoin: cfg.AllowLateJoin,
	}, narrator, logger)

	exporters := report.Multi{report.NewFileWriter(cfg.ReportDir)}
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		store := report.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("report schema init failed", "err", err)
			os.Exit(1)
		}
		exporters = append(exporters, store)
		logger.Info("postgres round archive enabled")
	}

	var announcer api.Announcer
	if cfg.DiscordToken != "" && cfg.DiscordChannel != "" {
		d, err := news.NewDiscordAnnouncer(cfg.DiscordToken, cfg.DiscordChannel, logger)
		if err != nil {
			logger.Warn("discord announcer disabled", "err", err)
		} else {
			announcer = d
			logger.Info("discord announcer enabled")
		}
	}

	server := api.New(ctx, cfg, logger, state, exporters, announcer)
	defer server.Shutdown()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("darkpool api listening", "addr", cfg.Addr, "tick_every", cfg.TickEvery.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
