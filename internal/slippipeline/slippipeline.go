// Package slippipeline implements placement, evaluation, ranking, and
// claiming for player slips against a cycle.
package slippipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oddyssey-cycle/engine/internal/apperr"
	"github.com/oddyssey-cycle/engine/internal/chain"
	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/events"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// rankPrizePercent is the fixed 40/30/20/5/5 split over the top five ranks
// (Open Question decision 4).
var rankPrizePercent = map[int]float64{1: 0.40, 2: 0.30, 3: 0.20, 4: 0.05, 5: 0.05}

const qualifyingCorrectCount = 7

// RawPrediction is a caller-supplied prediction before normalization:
// Selection may be a canonical string ("1","X","2","Over","Under") or a
// 0x-prefixed keccak hash of one.
type RawPrediction struct {
	FixtureID        string
	BetType          domain.BetType
	Selection        string
	SelectedOddX1000 uint32
}

// Pipeline wires the slip placement/evaluation/ranking/claim flow.
type Pipeline struct {
	store   *cyclestore.Store
	gateway chain.Gateway
	bus     *events.Bus
	cfg     Config

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	sfPlace singleflight.Group
}

type Config struct {
	ClaimableDelay     time.Duration // time after resolution before claims are allowed
	PlacementRateLimit rate.Limit   // events/sec; spec's "3 per 60s" => rate.Every(20s)
	PlacementBurst     int
	SlipStakeWei       string // added to a cycle's prize pool on every successful placement
}

func DefaultConfig() Config {
	return Config{
		ClaimableDelay:     1 * time.Hour,
		PlacementRateLimit: rate.Every(20 * time.Second),
		PlacementBurst:     3,
		SlipStakeWei:       "1000000000000000",
	}
}

func New(store *cyclestore.Store, gateway chain.Gateway, bus *events.Bus, cfg Config) *Pipeline {
	return &Pipeline{store: store, gateway: gateway, bus: bus, cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (p *Pipeline) limiterFor(player string) *rate.Limiter {
	p.limiterMu.Lock()
	defer p.limiterMu.Unlock()
	l, ok := p.limiters[player]
	if !ok {
		l = rate.NewLimiter(p.cfg.PlacementRateLimit, p.cfg.PlacementBurst)
		p.limiters[player] = l
	}
	return l
}

// PlaceSlip validates, normalizes, and submits a player's ten predictions
// against a cycle. cycleID of 0 means "the current unresolved cycle".
//
// Concurrent calls from the same player against the same cycle are
// serialized through a singleflight key: a second placement that arrives
// while the first is still in flight joins it and receives the same
// result rather than racing it for a NextSlipID.
func (p *Pipeline) PlaceSlip(ctx context.Context, player string, cycleID int64, raw [10]RawPrediction) (domain.Slip, error) {
	key := fmt.Sprintf("%s:%d", player, cycleID)
	v, err, _ := p.sfPlace.Do(key, func() (any, error) {
		return p.placeSlip(ctx, player, cycleID, raw)
	})
	if err != nil {
		return domain.Slip{}, err
	}
	return v.(domain.Slip), nil
}

func (p *Pipeline) placeSlip(ctx context.Context, player string, cycleID int64, raw [10]RawPrediction) (domain.Slip, error) {
	if !p.limiterFor(player).Allow() {
		return domain.Slip{}, apperr.New(apperr.CodeRateLimited, fmt.Sprintf("player %s exceeded placement rate limit", player))
	}

	cycle, err := p.resolveTargetCycle(ctx, cycleID)
	if err != nil {
		return domain.Slip{}, err
	}
	if err := p.rejectIfClosed(cycle); err != nil {
		return domain.Slip{}, err
	}

	onChainMatches, err := p.gateway.GetCycleMatches(ctx, cycle.ID)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slippipeline: get cycle matches: %w", err)
	}

	predictions, err := normalizePredictions(raw)
	if err != nil {
		return domain.Slip{}, err
	}
	if err := verifyAgainstOnChain(predictions, onChainMatches); err != nil {
		return domain.Slip{}, err
	}

	txHash, err := p.gateway.PlaceSlip(ctx, player, predictions)
	if err != nil {
		return domain.Slip{}, fmt.Errorf("slippipeline: place slip on chain: %w", err)
	}

	id, err := p.store.NextSlipID(ctx)
	if err != nil {
		return domain.Slip{}, err
	}
	slip := domain.Slip{
		ID:              id,
		CycleID:         cycle.ID,
		Player:          player,
		PlacedAt:        time.Now(),
		Predictions:     predictions,
		PlacementTxHash: txHash,
	}
	if err := p.store.InsertSlip(ctx, slip); err != nil {
		return domain.Slip{}, err
	}
	if err := p.store.IncrementPrizePool(ctx, cycle.ID, p.cfg.SlipStakeWei); err != nil {
		telemetry.Errorf("slippipeline: increment prize pool for cycle %d: %v", cycle.ID, err)
	}

	telemetry.Metrics.SlipsPlaced.Inc()
	p.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventSlipPlaced, CycleID: cycle.ID, Timestamp: slip.PlacedAt,
		Payload: events.SlipPlacedPayload{CycleID: cycle.ID, SlipID: id, Player: player, TxHash: txHash},
	})

	return slip, nil
}

func (p *Pipeline) resolveTargetCycle(ctx context.Context, cycleID int64) (domain.Cycle, error) {
	if cycleID == 0 {
		return p.store.GetCurrentCycle(ctx)
	}
	return p.store.GetCycle(ctx, cycleID)
}

func (p *Pipeline) rejectIfClosed(cycle domain.Cycle) error {
	if cycle.Status >= domain.CycleResolved {
		return apperr.New(apperr.CodeSlipClosedForBetting, "cycle is already resolved")
	}
	firstKickoff := earliestKickoff(cycle.Matches)
	if time.Now().After(firstKickoff) {
		return apperr.New(apperr.CodeSlipClosedForBetting, "first match has already kicked off")
	}
	return nil
}

func earliestKickoff(matches [10]domain.CycleMatch) time.Time {
	earliest := time.Unix(matches[0].KickoffUnix, 0)
	for _, m := range matches[1:] {
		t := time.Unix(m.KickoffUnix, 0)
		if t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

func normalizePredictions(raw [10]RawPrediction) ([10]domain.Prediction, error) {
	var out [10]domain.Prediction
	for i, r := range raw {
		sel, err := domain.ParseSelectionInput(r.Selection)
		if err != nil {
			return out, apperr.New(apperr.CodePredictionMismatch, err.Error(), "fixtureId", r.FixtureID)
		}
		out[i] = domain.Prediction{
			FixtureID:        r.FixtureID,
			BetType:          sel.BetType(),
			Selection:        sel,
			SelectedOddX1000: r.SelectedOddX1000,
		}
	}
	return out, nil
}

// verifyAgainstOnChain checks the fixtureId set equality and selectedOdd
// match against what the chain currently records for the cycle.
func verifyAgainstOnChain(predictions [10]domain.Prediction, matches [10]domain.CycleMatch) error {
	byFixture := make(map[string]domain.CycleMatch, 10)
	for _, m := range matches {
		byFixture[m.FixtureID] = m
	}
	if len(byFixture) != 10 {
		return apperr.New(apperr.CodeWrongMatchCount, "on-chain cycle did not return ten distinct matches")
	}

	seen := make(map[string]bool, 10)
	for _, pred := range predictions {
		m, ok := byFixture[pred.FixtureID]
		if !ok {
			return apperr.New(apperr.CodePredictionMismatch, "prediction references a fixture not in this cycle", "fixtureId", pred.FixtureID)
		}
		seen[pred.FixtureID] = true

		expectedOdd := expectedOddFor(pred, m)
		if pred.SelectedOddX1000 != expectedOdd {
			return apperr.New(apperr.CodePredictionMismatch, "selected odd does not match on-chain odds",
				"fixtureId", pred.FixtureID, "expected", expectedOdd, "got", pred.SelectedOddX1000)
		}
	}
	if len(seen) != 10 {
		return apperr.New(apperr.CodePredictionMismatch, "prediction fixture set does not cover the cycle's ten matches")
	}
	return nil
}

func expectedOddFor(pred domain.Prediction, m domain.CycleMatch) uint32 {
	if pred.BetType == domain.OverUnder {
		if pred.Selection.OverUnder() == domain.Over {
			return m.OddsOverX1000
		}
		return m.OddsUnderX1000
	}
	switch pred.Selection.Moneyline() {
	case domain.MoneylineHome:
		return m.OddsHomeX1000
	case domain.MoneylineDraw:
		return m.OddsDrawX1000
	default:
		return m.OddsAwayX1000
	}
}

// EvaluateCycle evaluates every slip belonging to cycleID and ranks the
// qualifiers, satisfying the lifecycle.Evaluator interface.
func (p *Pipeline) EvaluateCycle(ctx context.Context, cycleID int64) error {
	cycle, err := p.store.GetCycle(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("slippipeline: load cycle %d: %w", cycleID, err)
	}
	outcomeByFixture := make(map[string]domain.CycleMatch, 10)
	for _, m := range cycle.Matches {
		outcomeByFixture[m.FixtureID] = m
	}

	slips, err := p.store.ListSlipsByCycle(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("slippipeline: list slips for cycle %d: %w", cycleID, err)
	}

	for _, slip := range slips {
		if slip.Evaluated {
			continue
		}
		correctCount, finalScore := evaluateSlip(slip, outcomeByFixture)
		if err := p.store.SetSlipEvaluation(ctx, slip.ID, correctCount, finalScore); err != nil {
			return fmt.Errorf("slippipeline: evaluate slip %d: %w", slip.ID, err)
		}
		telemetry.Metrics.SlipsEvaluated.Inc()
		p.bus.Publish(events.Event{
			ID: uuid.NewString(), Type: events.EventSlipEvaluated, CycleID: cycleID, Timestamp: time.Now(),
			Payload: events.SlipEvaluatedPayload{CycleID: cycleID, SlipID: slip.ID, CorrectCount: correctCount, FinalScore: finalScore},
		})
	}

	return p.rankCycle(ctx, cycleID)
}

func evaluateSlip(slip domain.Slip, outcomeByFixture map[string]domain.CycleMatch) (correctCount int, finalScore uint64) {
	var correctOdds []uint32
	for _, pred := range slip.Predictions {
		m, ok := outcomeByFixture[pred.FixtureID]
		if !ok {
			continue
		}
		if predictionCorrect(pred, m) {
			correctCount++
			correctOdds = append(correctOdds, pred.SelectedOddX1000)
		}
	}
	return correctCount, domain.ComputeFinalScore(correctOdds)
}

func predictionCorrect(pred domain.Prediction, m domain.CycleMatch) bool {
	if pred.BetType == domain.OverUnder {
		return pred.Selection.OverUnder() == m.OverUnder
	}
	return pred.Selection.Moneyline() == m.Moneyline
}

// rankCycle sorts qualifying slips (correctCount >= 7) by descending
// finalScore, then descending correctCount, then ascending placedAt, and
// writes ranks 1..min(N,5).
func (p *Pipeline) rankCycle(ctx context.Context, cycleID int64) error {
	slips, err := p.store.ListSlipsByCycle(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("slippipeline: list slips for ranking: %w", err)
	}

	var qualifiers []domain.Slip
	for _, s := range slips {
		if s.Evaluated && s.CorrectCount >= qualifyingCorrectCount {
			qualifiers = append(qualifiers, s)
		}
	}

	sort.Slice(qualifiers, func(i, j int) bool {
		a, b := qualifiers[i], qualifiers[j]
		if a.FinalScoreX1000 != b.FinalScoreX1000 {
			return a.FinalScoreX1000 > b.FinalScoreX1000
		}
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		return a.PlacedAt.Before(b.PlacedAt)
	})

	limit := len(qualifiers)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		if err := p.store.SetSlipRank(ctx, qualifiers[i].ID, i+1); err != nil {
			return fmt.Errorf("slippipeline: set rank for slip %d: %w", qualifiers[i].ID, err)
		}
	}
	return nil
}

// ClaimPrize performs the §4.G Claiming flow for a single (cycle, slip,
// player) and returns the confirmed tx hash.
func (p *Pipeline) ClaimPrize(ctx context.Context, cycleID, slipID int64, player string) (string, error) {
	if existing, found, err := p.store.GetPrizeClaim(ctx, cycleID, slipID, player); err != nil {
		return "", err
	} else if found && existing.Claimed {
		return "", apperr.New(apperr.CodeAlreadyClaimed, "prize already claimed")
	}

	cycle, err := p.store.GetCycle(ctx, cycleID)
	if err != nil {
		return "", fmt.Errorf("slippipeline: load cycle %d: %w", cycleID, err)
	}
	if cycle.Status < domain.CycleResolved {
		return "", apperr.New(apperr.CodeNotEligibleForPrize, "cycle is not yet resolved")
	}
	if time.Now().Before(cycle.ResolvedAt.Add(p.cfg.ClaimableDelay)) {
		return "", apperr.New(apperr.CodeNotEligibleForPrize, "claim window has not opened yet")
	}

	slip, err := p.store.GetSlip(ctx, slipID)
	if err != nil {
		return "", fmt.Errorf("slippipeline: load slip %d: %w", slipID, err)
	}
	if slip.Player != player {
		return "", apperr.New(apperr.CodeUnauthorizedClaim, "slip does not belong to this player")
	}
	if !slip.Evaluated || slip.CorrectCount < qualifyingCorrectCount || slip.LeaderboardRank == nil {
		return "", apperr.New(apperr.CodeNotEligibleForPrize, "slip did not qualify for a prize", "correctCount", slip.CorrectCount)
	}

	rank := *slip.LeaderboardRank
	pct, ok := rankPrizePercent[rank]
	if !ok {
		return "", apperr.New(apperr.CodeNotEligibleForPrize, "rank outside the prize-eligible top 5", "rank", rank)
	}

	txHash, err := p.gateway.ClaimOddysseyPrize(ctx, cycleID, slipID, player)
	if err != nil {
		return "", fmt.Errorf("slippipeline: claim on chain: %w", err)
	}

	claim := domain.PrizeClaim{
		CycleID: cycleID, SlipID: slipID, Player: player, Rank: rank,
		AmountWei: prizeAmountWei(cycle.PrizePoolWei, pct), Claimed: true,
		ClaimTxHash: txHash, ClaimedAt: time.Now(),
	}
	if err := p.store.UpsertPrizeClaim(ctx, claim); err != nil {
		return "", err
	}

	telemetry.Metrics.PrizesClaimed.Inc()
	p.bus.Publish(events.Event{
		ID: uuid.NewString(), Type: events.EventSlipClaimed, CycleID: cycleID, Timestamp: claim.ClaimedAt,
		Payload: events.SlipPlacedPayload{CycleID: cycleID, SlipID: slipID, Player: player, TxHash: txHash},
	})

	return txHash, nil
}

// prizeAmountWei is a best-effort decimal-string multiply; the pool is
// stored as a decimal wei string (no native big-integer arithmetic is in
// scope since the oracle never mints or transfers funds itself, only the
// on-chain contract does).
func prizeAmountWei(poolWei string, pct float64) string {
	var pool float64
	fmt.Sscanf(poolWei, "%f", &pool)
	return fmt.Sprintf("%.0f", pool*pct)
}
