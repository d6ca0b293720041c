package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oddyssey-cycle/engine/internal/adapters/outbound/discord"
	"github.com/oddyssey-cycle/engine/internal/chain"
	"github.com/oddyssey-cycle/engine/internal/config"
	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/events"
	"github.com/oddyssey-cycle/engine/internal/fixturestore"
	"github.com/oddyssey-cycle/engine/internal/lifecycle"
	"github.com/oddyssey-cycle/engine/internal/monitor"
	"github.com/oddyssey-cycle/engine/internal/scheduler"
	"github.com/oddyssey-cycle/engine/internal/selector"
	"github.com/oddyssey-cycle/engine/internal/slippipeline"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
	"golang.org/x/time/rate"

	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("oddyssey: starting")

	bus := events.NewBus()

	cycleStore, err := cyclestore.Open(cfg.DatabasePath)
	if err != nil {
		telemetry.Errorf("open cycle store: %v", err)
		os.Exit(1)
	}
	defer cycleStore.Close()

	fixtureStore, err := openFixtureStore(cfg.DatabasePath)
	if err != nil {
		telemetry.Errorf("open fixture store: %v", err)
		os.Exit(1)
	}

	priorities, err := config.LoadLeaguePriorities(cfg.LeaguePriorityPath)
	if err != nil {
		telemetry.Warnf("league priorities: %v (continuing with empty table)", err)
	}
	sel := selector.New(fixtureStore, priorities)

	signer, err := chain.NewSignerFromFile(cfg.OraclePrivateKeyPath)
	if err != nil {
		telemetry.Errorf("oracle signer: %v", err)
		os.Exit(1)
	}
	if !signer.Enabled() {
		telemetry.Warnf("oracle signer disabled — ORACLE_PRIVATE_KEY_PATH not set; result submission will be unsigned")
	}

	gateway := chain.NewRPCGateway(
		cfg.ChainRPCURL, cfg.FallbackRPCURL, signer,
		time.Duration(cfg.RPCTimeoutMs)*time.Millisecond, cfg.RPCMaxRetries,
	)

	slipCfg := slippipeline.DefaultConfig()
	if cfg.PlacementRateLimit > 0 && cfg.PlacementRateLimitWindow > 0 {
		slipCfg.PlacementRateLimit = rate.Every(cfg.PlacementRateLimitWindow / time.Duration(cfg.PlacementRateLimit))
		slipCfg.PlacementBurst = cfg.PlacementRateLimit
	}
	slipCfg.SlipStakeWei = cfg.SlipStakeWei
	slipPipeline := slippipeline.New(cycleStore, gateway, bus, slipCfg)

	cycleMgr := lifecycle.New(cycleStore, gateway, sel, fixtureStore, bus, slipPipeline, lifecycle.Config{
		CycleDuration:    time.Duration(cfg.CycleDurationHours) * time.Hour,
		ResolutionBuffer: time.Duration(cfg.ResolutionBufferHours) * time.Hour,
	})

	sched := scheduler.New(cycleStore, cycleMgr, scheduler.Config{
		MatchSelectSpec: "1 0 * * *",
		NewCycleSpec:    "5 0 * * *",
		ResolveSpec:     "0 22-23,0-6 * * *",
		CleanupSpec:     "0 3 * * 0",
		CycleRetention:  cfg.CycleCleanupDays,
		SelectRetention: cfg.DailyMatchCleanupDays,
	})
	if err := sched.Start(); err != nil {
		telemetry.Errorf("start scheduler: %v", err)
		os.Exit(1)
	}

	healthMon := monitor.New(cycleStore, gateway, monitor.DefaultConfig()).
		WithNotifier(discord.NewNotifier(cfg.DiscordWebhookURL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runMonitorLoop(ctx, healthMon)

	telemetry.Infof("oddyssey: running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("oddyssey: shutting down")
	cancel()
	sched.Stop()

	telemetry.Infof("oddyssey: shutdown complete  cyclesCreated=%d  cyclesResolved=%d  slipsPlaced=%d  slipsEvaluated=%d",
		telemetry.Metrics.CyclesCreated.Value(),
		telemetry.Metrics.CyclesResolved.Value(),
		telemetry.Metrics.SlipsPlaced.Value(),
		telemetry.Metrics.SlipsEvaluated.Value(),
	)
}

// openFixtureStore opens a dedicated connection against the same database
// file used for cycle state; the fixtures/odds tables are owned by an
// external ingestion process (out of scope), so this only ensures they
// exist for local/standalone operation and never writes to them afterward.
func openFixtureStore(path string) (*fixturestore.Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open fixtures db: %w", err)
	}
	if _, err := db.Exec(fixturestore.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init fixtures schema: %w", err)
	}
	return fixturestore.New(db), nil
}

// runMonitorLoop runs the health monitor on a fixed interval until ctx is
// canceled. It is not one of the scheduler's four named jobs: it only
// reads and alerts, so it carries no lock against the write-path jobs.
func runMonitorLoop(ctx context.Context, m *monitor.Monitor) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunAll(ctx, time.Now().UTC()); err != nil {
				telemetry.Errorf("monitor: run failed: %v", err)
			}
		}
	}
}

var _ = slog.LevelInfo // keep slog import meaningful if ParseLogLevel signature changes
