package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr          string
	TickEvery     time.Duration
	AllowLateJoin bool
	CrowdDenom    float64
	HarvestRatio  float64
	ReportDir     string
	DatabaseURL   string
	AdminKey      string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	DiscordToken   string
	DiscordChannel string
}

type CLIConfig struct {
	APIBaseURL string
	AdminKey   string
}

func LoadAPIFromEnv() APIConfig {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("DARKPOOL_API_ADDR", ":8080")
	}

	return APIConfig{
		Addr:          addr,
		TickEvery:     envDurationDefault("DARKPOOL_TICK_EVERY", 3*time.Minute),
		AllowLateJoin: envBoolDefault("DARKPOOL_ALLOW_LATE_JOIN", true),
		CrowdDenom:    envFloatDefault("DARKPOOL_CROWD_DENOM", 1_000_000),
		HarvestRatio:  envFloatDefault("DARKPOOL_HARVEST_RATIO", 0.5),
		ReportDir:     envDefault("DARKPOOL_REPORT_DIR", "savedata"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminKey:      strings.TrimSpace(os.Getenv("DARKPOOL_ADMIN_KEY")),

		LLMBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("DARKPOOL_LLM_BASE_URL")), "/"),
		LLMAPIKey:  strings.TrimSpace(os.Getenv("DARKPOOL_LLM_API_KEY")),
		LLMModel:   envDefault("DARKPOOL_LLM_MODEL", "gpt-4o-mini"),

		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannel: strings.TrimSpace(os.Getenv("DISCORD_NEWS_CHANNEL")),
	}
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("DP_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminKey:   strings.TrimSpace(os.Getenv("DP_ADMIN_KEY")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
