package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable knob for the cycle engine's runtime behavior.
type Config struct {
	// Chain gateway
	ChainRPCURL             string
	FallbackRPCURL          string
	OddysseyContractAddress string
	OraclePrivateKeyPath    string
	RPCTimeoutMs            int
	RPCMaxRetries           int

	// Cycle shape
	MatchesPerCycle       int
	MinKickoffHourUTC     int
	CycleDurationHours    int
	ResolutionBufferHours int

	// Cleanup
	CycleCleanupDays      int
	DailyMatchCleanupDays int

	// Slip placement
	PlacementRateLimit       int
	PlacementRateLimitWindow time.Duration
	SlipStakeWei             string

	// Storage
	DatabasePath string

	// League priority side-config
	LeaguePriorityPath string

	// Telemetry
	LogLevel string

	// Alerting
	DiscordWebhookURL string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ChainRPCURL:             envStr("CHAIN_RPC_URL", "https://rpc.oddyssey.local"),
		FallbackRPCURL:          envStr("CHAIN_FALLBACK_RPC_URL", ""),
		OddysseyContractAddress: envStr("ODDYSSEY_CONTRACT_ADDRESS", ""),
		OraclePrivateKeyPath:    envStr("ORACLE_PRIVATE_KEY_PATH", ""),
		RPCTimeoutMs:            envInt("RPC_TIMEOUT_MS", 8000),
		RPCMaxRetries:           envInt("RPC_MAX_RETRIES", 3),

		MatchesPerCycle:       envInt("MATCHES_PER_CYCLE", 10),
		MinKickoffHourUTC:     envInt("MIN_KICKOFF_HOUR_UTC", 11),
		CycleDurationHours:    envInt("CYCLE_DURATION_HOURS", 24),
		ResolutionBufferHours: envInt("RESOLUTION_BUFFER_HOURS", 2),

		CycleCleanupDays:      envInt("CYCLE_CLEANUP_DAYS", 30),
		DailyMatchCleanupDays: envInt("DAILY_MATCH_CLEANUP_DAYS", 7),

		PlacementRateLimit:       envInt("PLACEMENT_RATE_LIMIT", 3),
		PlacementRateLimitWindow: time.Duration(envInt("PLACEMENT_RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
		SlipStakeWei:             envStr("SLIP_STAKE_WEI", "1000000000000000"), // 0.001 native token

		DatabasePath: envStr("DATABASE_PATH", "data/oddyssey.db"),

		LeaguePriorityPath: envStr("LEAGUE_PRIORITY_PATH", "internal/config/league_priority.yaml"),

		LogLevel: envStr("LOG_LEVEL", "info"),

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
