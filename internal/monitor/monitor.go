// Package monitor runs the read-only health checks for the cycle engine:
// missing cycles, off-schedule creation, failed transactions, delayed
// resolution, and DB/chain sync drift. Checks never write business state,
// only alerts.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/oddyssey-cycle/engine/internal/adapters/outbound/discord"
	"github.com/oddyssey-cycle/engine/internal/chain"
	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
)

// Config carries the tolerances the checks below compare against.
type Config struct {
	LookbackDays           int
	CreationScheduleTarget time.Duration // time-of-day offset, e.g. 5m past midnight UTC
	CreationTolerance      time.Duration
	ResolutionGrace        time.Duration // how long past last kickoff before "delayed"
}

func DefaultConfig() Config {
	return Config{
		LookbackDays:           7,
		CreationScheduleTarget: 5 * time.Minute,
		CreationTolerance:      10 * time.Minute,
		ResolutionGrace:        4 * time.Hour,
	}
}

// Monitor runs the health checks and records findings as alerts.
type Monitor struct {
	store    *cyclestore.Store
	gateway  chain.Gateway
	cfg      Config
	notifier *discord.Notifier
}

func New(store *cyclestore.Store, gateway chain.Gateway, cfg Config) *Monitor {
	return &Monitor{store: store, gateway: gateway, cfg: cfg}
}

// WithNotifier attaches a Discord webhook notifier; Critical alerts raised
// by RunAll are forwarded to it in addition to being persisted. Passing a
// disabled notifier (empty webhook URL) is a no-op.
func (m *Monitor) WithNotifier(n *discord.Notifier) *Monitor {
	m.notifier = n
	return m
}

// RunAll runs every check and returns the alerts raised this pass (they are
// also persisted via cyclestore.InsertAlert as each is found).
func (m *Monitor) RunAll(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert

	checks := []func(context.Context, time.Time) ([]domain.Alert, error){
		m.checkMissingCycles,
		m.checkOffScheduleCreation,
		m.checkFailedTransactions,
		m.checkDelayedResolution,
		m.checkCycleSync,
	}

	for _, check := range checks {
		found, err := check(ctx, now)
		if err != nil {
			telemetry.Errorf("monitor: check failed: %v", err)
			continue
		}
		alerts = append(alerts, found...)
	}

	for _, a := range alerts {
		if err := m.store.InsertAlert(ctx, a); err != nil {
			telemetry.Errorf("monitor: insert alert: %v", err)
		}
		if m.notifier != nil && a.Severity == domain.Critical {
			if err := m.notifier.AlertRaised(ctx, a); err != nil {
				telemetry.Warnf("monitor: discord notify failed: %v", err)
			}
		}
	}
	return alerts, nil
}

func (m *Monitor) checkMissingCycles(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for i := 1; i <= m.cfg.LookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		cycles, err := m.store.ListCyclesByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("monitor: list cycles for %s: %w", day.Format("2006-01-02"), err)
		}
		if len(cycles) == 0 {
			alerts = append(alerts, newAlert(domain.Warning,
				fmt.Sprintf("no cycle was created for %s (%s)", day.Format("2006-01-02"), humanize.Time(day)),
				map[string]any{"date": day.Format("2006-01-02")}))
		}
	}
	return alerts, nil
}

func (m *Monitor) checkOffScheduleCreation(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for i := 0; i < m.cfg.LookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		cycles, err := m.store.ListCyclesByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("monitor: list cycles for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, c := range cycles {
			target := time.Date(c.StartAt.Year(), c.StartAt.Month(), c.StartAt.Day(), 0, 0, 0, 0, time.UTC).Add(m.cfg.CreationScheduleTarget)
			delta := c.CreatedAt.Sub(target)
			if delta < 0 {
				delta = -delta
			}
			if delta > m.cfg.CreationTolerance {
				alerts = append(alerts, newAlert(domain.Info,
					fmt.Sprintf("cycle %d created %s off the %s target", c.ID, humanize.RelTime(target, c.CreatedAt, "after", "before"), m.cfg.CreationScheduleTarget),
					map[string]any{"cycleId": c.ID, "createdAt": c.CreatedAt, "target": target}))
			}
		}
	}
	return alerts, nil
}

func (m *Monitor) checkFailedTransactions(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for i := 0; i < m.cfg.LookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		cycles, err := m.store.ListCyclesByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("monitor: list cycles for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, c := range cycles {
			if c.Status >= domain.CyclePublished && c.CreationTxHash == "" {
				alerts = append(alerts, newAlert(domain.Critical,
					fmt.Sprintf("cycle %d is published but carries no creation tx hash", c.ID),
					map[string]any{"cycleId": c.ID}))
			}
			if c.Status >= domain.CycleResolved && c.ResolutionTxHash == "" {
				alerts = append(alerts, newAlert(domain.Critical,
					fmt.Sprintf("cycle %d is resolved but carries no resolution tx hash", c.ID),
					map[string]any{"cycleId": c.ID}))
			}
		}
	}
	return alerts, nil
}

func (m *Monitor) checkDelayedResolution(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for i := 0; i < m.cfg.LookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		cycles, err := m.store.ListCyclesByDate(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("monitor: list cycles for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, c := range cycles {
			if c.Status >= domain.CycleResolved {
				continue
			}
			latestKickoff := latestKickoffOf(c.Matches)
			if now.Sub(latestKickoff) > m.cfg.ResolutionGrace {
				alerts = append(alerts, newAlert(domain.Warning,
					fmt.Sprintf("cycle %d's last match kicked off %s and is still unresolved", c.ID, humanize.Time(latestKickoff)),
					map[string]any{"cycleId": c.ID, "latestKickoff": latestKickoff}))
			}
		}
	}
	return alerts, nil
}

func (m *Monitor) checkCycleSync(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	current, err := m.store.GetCurrentCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: get current cycle: %w", err)
	}
	chainID, err := m.gateway.GetCurrentCycleID(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: get chain current cycle id: %w", err)
	}
	if current.ID != chainID {
		return []domain.Alert{newAlert(domain.Critical,
			fmt.Sprintf("db cycle id %s disagrees with chain cycle id %s", humanize.Comma(current.ID), humanize.Comma(chainID)),
			map[string]any{"dbCycleId": current.ID, "chainCycleId": chainID})}, nil
	}
	return nil, nil
}

func latestKickoffOf(matches [10]domain.CycleMatch) time.Time {
	latest := time.Unix(matches[0].KickoffUnix, 0)
	for _, mt := range matches[1:] {
		t := time.Unix(mt.KickoffUnix, 0)
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

func newAlert(sev domain.Severity, msg string, details map[string]any) domain.Alert {
	return domain.Alert{ID: uuid.NewString(), Severity: sev, Message: msg, Details: details, CreatedAt: time.Now()}
}
