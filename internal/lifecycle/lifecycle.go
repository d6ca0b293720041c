// Package lifecycle drives a cycle through its state machine: creation,
// on-chain publication, resolution readiness, result submission, and
// triggering evaluation.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oddyssey-cycle/engine/internal/apperr"
	"github.com/oddyssey-cycle/engine/internal/chain"
	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/events"
	"github.com/oddyssey-cycle/engine/internal/fixturestore"
	"github.com/oddyssey-cycle/engine/internal/retry"
	"github.com/oddyssey-cycle/engine/internal/selector"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
)

// Evaluator runs slip evaluation and ranking for a resolved cycle; it is
// satisfied by internal/slippipeline and kept as a narrow interface here to
// avoid a dependency cycle.
type Evaluator interface {
	EvaluateCycle(ctx context.Context, cycleID int64) error
}

// Config carries the duration knobs the lifecycle manager needs.
type Config struct {
	CycleDuration      time.Duration
	ResolutionBuffer   time.Duration
}

// Manager drives the cycle state machine.
type Manager struct {
	store     *cyclestore.Store
	gateway   chain.Gateway
	selector  *selector.Selector
	fixtures  *fixturestore.Store
	bus       *events.Bus
	evaluator Evaluator
	cfg       Config

	createMu   sync.Mutex
	resolveMus sync.Map // cycleID -> *sync.Mutex
}

func New(store *cyclestore.Store, gateway chain.Gateway, sel *selector.Selector, fixtures *fixturestore.Store, bus *events.Bus, evaluator Evaluator, cfg Config) *Manager {
	return &Manager{store: store, gateway: gateway, selector: sel, fixtures: fixtures, bus: bus, evaluator: evaluator, cfg: cfg}
}

// CreateDailyCycle is idempotent per UTC day: if a cycle already exists for
// today in state >= Created(DB), it is returned unchanged. Otherwise it
// selects matches, persists, publishes to chain, and verifies chain/DB sync,
// retrying the whole procedure up to 3 times on transient failure.
func (m *Manager) CreateDailyCycle(ctx context.Context, date time.Time) (domain.Cycle, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	existing, err := m.store.ListCyclesByDate(ctx, date)
	if err != nil {
		return domain.Cycle{}, fmt.Errorf("lifecycle: list cycles by date: %w", err)
	}
	for _, c := range existing {
		if c.Status >= domain.CycleCreatedDB {
			return c, nil
		}
	}

	policy := retry.Policy{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond, Cap: 5 * time.Second, Classify: apperr.Classify}
	var result domain.Cycle
	err = policy.Do(ctx, func(ctx context.Context, attempt int) error {
		cycle, err := m.createOnce(ctx, date)
		if err != nil {
			telemetry.Warnf("lifecycle: createDailyCycle attempt %d failed: %v", attempt, err)
			return err
		}
		result = cycle
		return nil
	})
	if err != nil {
		telemetry.Metrics.CycleCreateErrors.Inc()
		return domain.Cycle{}, err
	}
	return result, nil
}

func (m *Manager) createOnce(ctx context.Context, date time.Time) (domain.Cycle, error) {
	matches, err := m.selector.SelectDaily(ctx, date)
	if err != nil {
		return domain.Cycle{}, err
	}

	id, err := m.store.NextCycleID(ctx)
	if err != nil {
		return domain.Cycle{}, err
	}

	startAt := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	endAt := startAt.Add(m.cfg.CycleDuration)
	now := time.Now()

	rolloverWei, err := m.store.TakePendingRollover(ctx)
	if err != nil {
		telemetry.Warnf("lifecycle: take pending rollover: %v (seeding pool at zero)", err)
		rolloverWei = "0"
	}
	if err := m.store.CreateCycle(ctx, id, matches, startAt, endAt, now, rolloverWei); err != nil {
		return domain.Cycle{}, err
	}
	telemetry.Metrics.CyclesCreated.Inc()
	m.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventCycleCreated, CycleID: id, Timestamp: now,
		Payload: events.CycleCreatedPayload{CycleID: id, FixtureIDs: fixtureIDsOf(matches)},
	})

	txHash, err := m.gateway.SubmitDailyCycle(ctx, id, matches)
	if err != nil {
		if apperr.Classify(err) != apperr.Transient {
			if orphanErr := m.store.MarkOrphaned(ctx, id); orphanErr != nil {
				telemetry.Errorf("lifecycle: mark orphaned after terminal submit failure: %v", orphanErr)
			}
			m.raiseAlert(ctx, domain.Critical, "cycle creation failed terminally, orphaned", map[string]any{"cycleId": id, "error": err.Error()})
		}
		return domain.Cycle{}, err
	}

	if err := m.store.AttachCreationTx(ctx, id, txHash); err != nil {
		return domain.Cycle{}, err
	}
	telemetry.Metrics.CyclesPublished.Inc()
	m.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventCyclePublished, CycleID: id, Timestamp: time.Now(),
		Payload: events.CyclePublishedPayload{CycleID: id, TxHash: txHash},
	})

	m.verifySync(ctx, id)

	return m.store.GetCycle(ctx, id)
}

// verifySync checks that the chain's current cycle id matches what was just
// persisted; on mismatch it raises a CycleSyncIssue alert and sets the
// cycle's sync_repair_needed flag. No code in this module reads that flag
// back or repairs the drift.
func (m *Manager) verifySync(ctx context.Context, id int64) {
	chainID, err := m.gateway.GetCurrentCycleID(ctx)
	if err != nil {
		telemetry.Warnf("lifecycle: verify sync: getCurrentCycleId failed: %v", err)
		return
	}
	if chainID == id {
		return
	}

	if err := m.store.SetSyncRepairNeeded(ctx, id, true); err != nil {
		telemetry.Errorf("lifecycle: set sync repair flag: %v", err)
	}
	m.raiseAlert(ctx, domain.Warning, "cycle id mismatch between db and chain", map[string]any{"dbCycleId": id, "chainCycleId": chainID})
	m.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventCycleSyncIssue, CycleID: id, Timestamp: time.Now(),
		Payload: events.CycleSyncIssuePayload{CycleID: id, ChainID: chainID},
	})
}

func (m *Manager) raiseAlert(ctx context.Context, sev domain.Severity, msg string, details map[string]any) {
	alert := domain.Alert{ID: uuid.NewString(), Severity: sev, Message: msg, Details: details, CreatedAt: time.Now()}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		telemetry.Errorf("lifecycle: insert alert: %v", err)
	}
	m.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventAlertRaised, Timestamp: time.Now(),
		Payload: events.AlertRaisedPayload{Severity: sev.String(), Message: msg, Details: details},
	})
}

// CheckResolutions scans unresolved cycles whose end time is at least the
// resolution buffer in the past, resolving any whose fixtures are all
// finished.
func (m *Manager) CheckResolutions(ctx context.Context, now time.Time) error {
	// Cycles load by date across the current and recent days; a cycle store
	// walk by status would be cleaner with a dedicated query, but today's
	// and yesterday's dates cover the realistic backlog for a daily cycle.
	var candidates []domain.Cycle
	for _, d := range []time.Time{now, now.Add(-24 * time.Hour)} {
		cycles, err := m.store.ListCyclesByDate(ctx, d)
		if err != nil {
			return fmt.Errorf("lifecycle: list cycles for resolution check: %w", err)
		}
		candidates = append(candidates, cycles...)
	}

	for _, cycle := range candidates {
		if cycle.Status >= domain.CycleResolved {
			continue
		}
		if now.Sub(cycle.EndAt) < m.cfg.ResolutionBuffer {
			continue
		}
		if err := m.resolveCycle(ctx, cycle); err != nil {
			telemetry.Warnf("lifecycle: resolve cycle %d: %v", cycle.ID, err)
		}
	}
	return nil
}

func (m *Manager) lockFor(cycleID int64) *sync.Mutex {
	lock, _ := m.resolveMus.LoadOrStore(cycleID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (m *Manager) resolveCycle(ctx context.Context, cycle domain.Cycle) error {
	lock := m.lockFor(cycle.ID)
	lock.Lock()
	defer lock.Unlock()

	fixtureIDs := cycle.FixtureIDs()
	results, err := m.fixtures.ResultsFor(ctx, fixtureIDs[:])
	if err != nil {
		return fmt.Errorf("lifecycle: load results: %w", err)
	}
	if !fixturestore.AllFinished(results, fixtureIDs[:]) {
		return nil
	}

	for i, m2 := range cycle.Matches {
		r := results[m2.FixtureID]
		ml, ou := domain.SettleTotal(r.HomeScore, r.AwayScore)
		cycle.Matches[i].Moneyline = ml
		cycle.Matches[i].OverUnder = ou
		if err := m.store.SetMatchOutcome(ctx, cycle.ID, m2.FixtureID, ml, ou); err != nil {
			return fmt.Errorf("lifecycle: set match outcome: %w", err)
		}
	}

	txHash, err := m.gateway.SubmitCycleResults(ctx, cycle.ID, cycle.Matches)
	if err != nil {
		return fmt.Errorf("lifecycle: submit cycle results: %w", err)
	}

	resolvedAt := time.Now()
	if err := m.store.AttachResolutionTx(ctx, cycle.ID, txHash); err != nil {
		return err
	}
	if err := m.store.MarkResolved(ctx, cycle.ID, resolvedAt); err != nil {
		return err
	}
	telemetry.Metrics.CyclesResolved.Inc()
	m.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventCycleResolved, CycleID: cycle.ID, Timestamp: resolvedAt,
		Payload: events.CycleResolvedPayload{CycleID: cycle.ID, TxHash: txHash},
	})

	if m.evaluator != nil {
		if err := m.evaluator.EvaluateCycle(ctx, cycle.ID); err != nil {
			telemetry.Errorf("lifecycle: evaluate cycle %d: %v", cycle.ID, err)
			return err
		}
		if err := m.store.MarkEvaluationComplete(ctx, cycle.ID); err != nil {
			return err
		}
		m.bus.Publish(events.Event{
			ID: uuid.NewString(), Type: events.EventCycleEvaluationComplete, CycleID: cycle.ID, Timestamp: time.Now(),
		})
	}

	return nil
}

func fixtureIDsOf(matches [10]domain.CycleMatch) [10]string {
	var ids [10]string
	for i, m := range matches {
		ids[i] = m.FixtureID
	}
	return ids
}
