package fixturestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertFixture(t *testing.T, db *sql.DB, id, home, away, league string, kickoff time.Time, status int, homeScore, awayScore *int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO fixtures (id, home_team, away_team, league, country, kickoff_utc, status, home_score, away_score)
		VALUES (?, ?, ?, ?, '', ?, ?, ?, ?)`, id, home, away, league, kickoff.Unix(), status, homeScore, awayScore)
	require.NoError(t, err)
}

func insertOdds(t *testing.T, db *sql.DB, fixtureID string, home, draw, away, over, under float64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO odds_quotes (fixture_id, home, draw, away, over25, under25) VALUES (?, ?, ?, ?, ?, ?)`,
		fixtureID, home, draw, away, over, under)
	require.NoError(t, err)
}

func TestCandidatesForDate_BasicEligible(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(15 * time.Hour)

	insertFixture(t, db, "f1", "Arsenal", "Chelsea", "Premier League", kickoff, int(0), nil, nil)
	insertOdds(t, db, "f1", 2.1, 3.4, 3.2, 1.9, 1.95)

	store := New(db)
	candidates, err := store.CandidatesForDate(context.Background(), day, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "f1", candidates[0].Fixture.ID)
}

func TestCandidatesForDate_ExcludesWomensLeague(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(15 * time.Hour)

	insertFixture(t, db, "f1", "Arsenal WFC", "Chelsea Women", "Women's Super League", kickoff, int(0), nil, nil)
	insertOdds(t, db, "f1", 2.1, 3.4, 3.2, 1.9, 1.95)

	store := New(db)
	candidates, err := store.CandidatesForDate(context.Background(), day, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidatesForDate_ExcludesEarlyKickoff(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(9 * time.Hour) // before 11:00 UTC

	insertFixture(t, db, "f1", "Arsenal", "Chelsea", "Premier League", kickoff, int(0), nil, nil)
	insertOdds(t, db, "f1", 2.1, 3.4, 3.2, 1.9, 1.95)

	store := New(db)
	candidates, err := store.CandidatesForDate(context.Background(), day, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidatesForDate_RejectsMockOdds(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(15 * time.Hour)

	insertFixture(t, db, "f1", "Arsenal", "Chelsea", "Premier League", kickoff, int(0), nil, nil)
	insertOdds(t, db, "f1", 1.5, 3.0, 2.5, 1.8, 2.0)

	store := New(db)
	candidates, err := store.CandidatesForDate(context.Background(), day, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidatesForDate_RelaxOU(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(15 * time.Hour)

	insertFixture(t, db, "f1", "Arsenal", "Chelsea", "Premier League", kickoff, int(0), nil, nil)
	insertOdds(t, db, "f1", 2.1, 3.4, 3.2, 1.8, 2.0) // OU at provider default, 1X2 real

	store := New(db)
	strict, err := store.CandidatesForDate(context.Background(), day, QueryOptions{RelaxOU: false})
	require.NoError(t, err)
	assert.Len(t, strict, 1) // 1.8/2.0 are individually sane odds, strict mode still accepts

	relaxed, err := store.CandidatesForDate(context.Background(), day, QueryOptions{RelaxOU: true})
	require.NoError(t, err)
	assert.Len(t, relaxed, 1)
}

func TestCandidatesForDate_OutsideStatusExcluded(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	kickoff := day.Add(15 * time.Hour)

	insertFixture(t, db, "f1", "Arsenal", "Chelsea", "Premier League", kickoff, 1, nil, nil) // InProgress
	insertOdds(t, db, "f1", 2.1, 3.4, 3.2, 1.9, 1.95)

	store := New(db)
	candidates, err := store.CandidatesForDate(context.Background(), day, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestResultsFor_OnlyFinished(t *testing.T) {
	db := openTestDB(t)
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	home, away := 2, 1

	insertFixture(t, db, "finished", "A", "B", "Premier League", day, 2, &home, &away)
	insertFixture(t, db, "pending", "C", "D", "Premier League", day, 0, nil, nil)

	store := New(db)
	results, err := store.ResultsFor(context.Background(), []string{"finished", "pending"})
	require.NoError(t, err)
	require.Contains(t, results, "finished")
	assert.Equal(t, 2, results["finished"].HomeScore)
	assert.Equal(t, 1, results["finished"].AwayScore)
	assert.NotContains(t, results, "pending")
}

func TestAllFinished(t *testing.T) {
	results := map[string]FixtureResult{
		"a": {Finished: true},
		"b": {Finished: true},
	}
	assert.True(t, AllFinished(results, []string{"a", "b"}))
	assert.False(t, AllFinished(results, []string{"a", "b", "c"}))
}
