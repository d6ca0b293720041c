package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oddyssey-cycle/engine/internal/config"
	"github.com/oddyssey-cycle/engine/internal/cyclestore"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/events"
	"github.com/oddyssey-cycle/engine/internal/fixturestore"
	"github.com/oddyssey-cycle/engine/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	candidates []domain.Candidate
}

func (f *fakeProvider) CandidatesForDate(ctx context.Context, date time.Time, opts fixturestore.QueryOptions) ([]domain.Candidate, error) {
	return f.candidates, nil
}

func makeCandidates(date time.Time) []domain.Candidate {
	var out []domain.Candidate
	for i := 0; i < 12; i++ {
		out = append(out, domain.Candidate{
			Fixture: domain.Fixture{
				ID:        fmt.Sprintf("fx-%d", i),
				HomeTeam:  fmt.Sprintf("Home %d", i),
				AwayTeam:  fmt.Sprintf("Away %d", i),
				League:    fmt.Sprintf("League %d", i%6),
				KickoffAt: date.Add(time.Duration(16+i%4) * time.Hour),
				Status:    domain.StatusNotStarted,
			},
			Odds: domain.OddsQuote{Home: 2.0, Draw: 3.2, Away: 2.8, Over: 1.9, Under: 1.95},
		})
	}
	return out
}

func testSelector(date time.Time) *selector.Selector {
	provider := &fakeProvider{candidates: makeCandidates(date)}
	priorities := config.LeaguePriorities{}
	return selector.New(provider, priorities)
}

type fakeGateway struct {
	mu              sync.Mutex
	submitErr       error
	currentCycleID  int64
	forcedCurrentID *int64
	submitCalls     int
	resultsCalls    int
}

func (g *fakeGateway) SubmitDailyCycle(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.currentCycleID = cycleID
	return "0xcreate", nil
}

func (g *fakeGateway) SubmitCycleResults(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resultsCalls++
	return "0xresolve", nil
}

func (g *fakeGateway) GetCurrentCycleID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forcedCurrentID != nil {
		return *g.forcedCurrentID, nil
	}
	return g.currentCycleID, nil
}

func (g *fakeGateway) GetCycleMatches(ctx context.Context, cycleID int64) ([10]domain.CycleMatch, error) {
	return [10]domain.CycleMatch{}, nil
}

func (g *fakeGateway) PlaceSlip(ctx context.Context, player string, predictions [10]domain.Prediction) (string, error) {
	return "0xslip", nil
}

func (g *fakeGateway) ClaimOddysseyPrize(ctx context.Context, cycleID, slipID int64, player string) (string, error) {
	return "0xclaim", nil
}

func openTestCycleStore(t *testing.T) *cyclestore.Store {
	t.Helper()
	store, err := cyclestore.Open(t.TempDir() + "/cycles.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateDailyCycle_IdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	date := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	store := openTestCycleStore(t)
	gw := &fakeGateway{}
	bus := events.NewBus()
	mgr := New(store, gw, testSelector(date), nil, bus, nil, Config{CycleDuration: 24 * time.Hour, ResolutionBuffer: 2 * time.Hour})

	c1, err := mgr.CreateDailyCycle(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, domain.CyclePublished, c1.Status)
	assert.Equal(t, 1, gw.submitCalls)

	c2, err := mgr.CreateDailyCycle(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, 1, gw.submitCalls, "second call should not resubmit")
}

func TestCreateDailyCycle_SyncMismatchRaisesAlert(t *testing.T) {
	ctx := context.Background()
	date := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 2)
	store := openTestCycleStore(t)
	mismatchID := int64(1234)
	gw := &fakeGateway{forcedCurrentID: &mismatchID}
	bus := events.NewBus()
	mgr := New(store, gw, testSelector(date), nil, bus, nil, Config{CycleDuration: 24 * time.Hour, ResolutionBuffer: 2 * time.Hour})

	c, err := mgr.CreateDailyCycle(ctx, date)
	require.NoError(t, err)

	got, err := store.GetCycle(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.SyncRepairNeeded)
}

func TestCreateDailyCycle_TerminalFailureOrphans(t *testing.T) {
	ctx := context.Background()
	date := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 3)
	store := openTestCycleStore(t)
	gw := &fakeGateway{submitErr: assertNonTransientErr()}
	bus := events.NewBus()
	mgr := New(store, gw, testSelector(date), nil, bus, nil, Config{CycleDuration: 24 * time.Hour, ResolutionBuffer: 2 * time.Hour})

	_, err := mgr.CreateDailyCycle(ctx, date)
	require.Error(t, err)

	cycles, err := store.ListCyclesByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, domain.CycleOrphaned, cycles[0].Status)
}

func assertNonTransientErr() error {
	return fmt.Errorf("contract reverted: insufficient funds")
}

func TestCheckResolutions_BlocksOnUnfinishedFixture(t *testing.T) {
	ctx := context.Background()
	store := openTestCycleStore(t)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(fixturestore.Schema)
	require.NoError(t, err)
	fixtures := fixturestore.New(db)

	kickoff := time.Now().Add(-6 * time.Hour)
	var matches [10]domain.CycleMatch
	for i := range matches {
		id := fmt.Sprintf("fx-%d", i)
		matches[i] = domain.CycleMatch{DisplayOrder: i + 1, FixtureID: id, KickoffUnix: kickoff.Unix()}

		status, homeScore, awayScore := 2, 1, 0 // Finished
		if i == 9 {
			status, homeScore, awayScore = 1, 0, 0 // still InProgress past kickoff
		}
		_, err := db.Exec(`INSERT INTO fixtures (id, home_team, away_team, league, country, kickoff_utc, status, home_score, away_score)
			VALUES (?, 'Home', 'Away', 'League', '', ?, ?, ?, ?)`, id, kickoff.Unix(), status, homeScore, awayScore)
		require.NoError(t, err)
	}

	cycleID := int64(1)
	require.NoError(t, store.CreateCycle(ctx, cycleID, matches, kickoff.Add(-24*time.Hour), kickoff, time.Now(), "0"))
	require.NoError(t, store.AttachCreationTx(ctx, cycleID, "0xcreate"))

	gw := &fakeGateway{}
	bus := events.NewBus()
	mgr := New(store, gw, nil, fixtures, bus, nil, Config{CycleDuration: 24 * time.Hour, ResolutionBuffer: 2 * time.Hour})

	require.NoError(t, mgr.CheckResolutions(ctx, time.Now()))

	assert.Equal(t, 0, gw.resultsCalls, "a fixture still in progress past kickoff must block result submission")

	got, err := store.GetCycle(ctx, cycleID)
	require.NoError(t, err)
	assert.Less(t, got.Status, domain.CycleResolved, "cycle must remain unresolved while a fixture is still in progress")
}
