package cyclestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "oddyssey.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleMatches() [10]domain.CycleMatch {
	var matches [10]domain.CycleMatch
	base := time.Now().Add(24 * time.Hour)
	for i := range matches {
		matches[i] = domain.CycleMatch{
			DisplayOrder:   i + 1,
			FixtureID:      string(rune('a' + i)),
			KickoffUnix:    base.Add(time.Duration(i) * time.Hour).Unix(),
			OddsHomeX1000:  2000,
			OddsDrawX1000:  3000,
			OddsAwayX1000:  2500,
			OddsOverX1000:  1800,
			OddsUnderX1000: 2000,
		}
	}
	return matches
}

func TestCreateAndGetCycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.NextCycleID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	matches := sampleMatches()
	now := time.Now()
	err = store.CreateCycle(ctx, id, matches, now, now.Add(24*time.Hour), now, "0")
	require.NoError(t, err)

	cycle, err := store.GetCycle(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.CycleCreatedDB, cycle.Status)
	require.Equal(t, "a", cycle.Matches[0].FixtureID)
	require.Equal(t, 1, cycle.Matches[0].DisplayOrder)

	nextID, err := store.NextCycleID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), nextID)
}

func TestAttachCreationTxAdvancesStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), now, now.Add(24*time.Hour), now, "0"))
	require.NoError(t, store.AttachCreationTx(ctx, 1, "0xabc"))

	cycle, err := store.GetCycle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.CyclePublished, cycle.Status)
	require.Equal(t, "0xabc", cycle.CreationTxHash)
}

func TestGetCurrentCycle_PrefersUnresolved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), now, now.Add(24*time.Hour), now, "0"))
	require.NoError(t, store.MarkResolved(ctx, 1, now))
	require.NoError(t, store.CreateCycle(ctx, 2, sampleMatches(), now, now.Add(24*time.Hour), now, "0"))

	current, err := store.GetCurrentCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), current.ID)
}

func TestSlipInsertAndEvaluate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), now, now.Add(24*time.Hour), now, "0"))

	var predictions [10]domain.Prediction
	for i := range predictions {
		predictions[i] = domain.Prediction{FixtureID: string(rune('a' + i)), BetType: domain.Moneyline, Selection: domain.SelHome(), SelectedOddX1000: 2000}
	}
	slipID, err := store.NextSlipID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), slipID)

	slip := domain.Slip{ID: slipID, CycleID: 1, Player: "0xplayer", PlacedAt: now, Predictions: predictions, PlacementTxHash: "0xslip"}
	require.NoError(t, store.InsertSlip(ctx, slip))

	got, err := store.GetSlip(ctx, slipID)
	require.NoError(t, err)
	require.Equal(t, "0xplayer", got.Player)
	require.Equal(t, "a", got.Predictions[0].FixtureID)
	require.Equal(t, domain.SelHome().Canonical(), got.Predictions[0].Selection.Canonical())

	require.NoError(t, store.SetSlipEvaluation(ctx, slipID, 8, 12500))
	got, err = store.GetSlip(ctx, slipID)
	require.NoError(t, err)
	require.True(t, got.Evaluated)
	require.Equal(t, 8, got.CorrectCount)
	require.Equal(t, uint64(12500), got.FinalScoreX1000)
}

func TestPrizeClaimUpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	claim := domain.PrizeClaim{CycleID: 1, SlipID: 1, Player: "0xplayer", Rank: 1, AmountWei: "1000", Claimed: true, ClaimTxHash: "0xclaim", ClaimedAt: now}
	require.NoError(t, store.UpsertPrizeClaim(ctx, claim))
	require.NoError(t, store.UpsertPrizeClaim(ctx, claim))

	got, found, err := store.GetPrizeClaim(ctx, 1, 1, "0xplayer")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.Claimed)
	require.Equal(t, "0xclaim", got.ClaimTxHash)
}

func TestDailySelectionRecordedOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	date := time.Now()

	has, err := store.HasDailySelection(ctx, date)
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, store.RecordDailySelection(ctx, date))
	require.NoError(t, store.RecordDailySelection(ctx, date)) // idempotent

	has, err = store.HasDailySelection(ctx, date)
	require.NoError(t, err)
	require.True(t, has)
}

func TestPurgeOlderThan(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), old, old.Add(24*time.Hour), old, "0"))

	require.NoError(t, store.PurgeOlderThan(ctx, 30, 7))

	_, err := store.GetCycle(ctx, 1)
	require.Error(t, err) // purged, no rows
}

func TestPurgeOlderThan_SweepsUnclaimedRemainderIntoPendingRollover(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), old, old.Add(24*time.Hour), old, "0"))
	require.NoError(t, store.IncrementPrizePool(ctx, 1, "1000"))
	require.NoError(t, store.MarkEvaluationComplete(ctx, 1))

	require.NoError(t, store.PurgeOlderThan(ctx, 30, 7))

	rollover, err := store.TakePendingRollover(ctx)
	require.NoError(t, err)
	require.Equal(t, "1000", rollover)

	// Consumed exactly once.
	rollover, err = store.TakePendingRollover(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", rollover)
}

func TestCreateCycle_SeedsPoolFromRollover(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.CreateCycle(ctx, 1, sampleMatches(), now, now.Add(24*time.Hour), now, "500"))

	cycle, err := store.GetCycle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "500", cycle.PrizePoolWei)
	require.Equal(t, "500", cycle.RolloverWei)
}
