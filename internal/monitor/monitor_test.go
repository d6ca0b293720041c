package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	currentID int64
}

func (g *fakeGateway) SubmitDailyCycle(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	return "", nil
}
func (g *fakeGateway) SubmitCycleResults(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	return "", nil
}
func (g *fakeGateway) GetCurrentCycleID(ctx context.Context) (int64, error) { return g.currentID, nil }
func (g *fakeGateway) GetCycleMatches(ctx context.Context, cycleID int64) ([10]domain.CycleMatch, error) {
	return [10]domain.CycleMatch{}, nil
}
func (g *fakeGateway) PlaceSlip(ctx context.Context, player string, predictions [10]domain.Prediction) (string, error) {
	return "", nil
}
func (g *fakeGateway) ClaimOddysseyPrize(ctx context.Context, cycleID, slipID int64, player string) (string, error) {
	return "", nil
}

func openStore(t *testing.T) *cyclestore.Store {
	t.Helper()
	store, err := cyclestore.Open(t.TempDir() + "/cycles.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleMatches(kickoff time.Time) [10]domain.CycleMatch {
	var matches [10]domain.CycleMatch
	for i := range matches {
		matches[i] = domain.CycleMatch{DisplayOrder: i + 1, FixtureID: string(rune('a' + i)), KickoffUnix: kickoff.Unix()}
	}
	return matches
}

func TestCheckMissingCycles_ReportsGap(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now().UTC()

	m := New(store, &fakeGateway{}, DefaultConfig())
	alerts, err := m.checkMissingCycles(ctx, now)
	require.NoError(t, err)
	assert.Len(t, alerts, DefaultConfig().LookbackDays)
}

func TestCheckFailedTransactions_FlagsMissingCreationTx(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	matches := sampleMatches(yesterday)

	id, err := store.NextCycleID(ctx)
	require.NoError(t, err)
	require.NoError(t, store.CreateCycle(ctx, id, matches, yesterday, yesterday.Add(24*time.Hour), yesterday, "0"))
	// Attaching an empty creation tx hash moves the cycle to Published with
	// no tx, simulating a corrupted publish.
	require.NoError(t, store.AttachCreationTx(ctx, id, ""))

	m := New(store, &fakeGateway{}, DefaultConfig())
	alerts, err := m.checkFailedTransactions(ctx, time.Now().UTC())
	require.NoError(t, err)

	found := false
	for _, a := range alerts {
		if a.Details["cycleId"] == id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckCycleSync_DetectsMismatch(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	matches := sampleMatches(time.Now())
	id, err := store.NextCycleID(ctx)
	require.NoError(t, err)
	require.NoError(t, store.CreateCycle(ctx, id, matches, time.Now(), time.Now().Add(24*time.Hour), time.Now(), "0"))

	m := New(store, &fakeGateway{currentID: id + 1}, DefaultConfig())
	alerts, err := m.checkCycleSync(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.Critical, alerts[0].Severity)
}
