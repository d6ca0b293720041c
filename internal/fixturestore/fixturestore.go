// Package fixturestore implements the read-only fixture/odds view:
// candidatesForDate and resultsFor, plus the exclusion/sanity rules that
// keep women's leagues, stale kickoffs, and placeholder odds out of the
// selector's candidate pool. It consumes an already-populated fixtures/odds
// table — ingestion from the upstream provider is out of scope.
package fixturestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oddyssey-cycle/engine/internal/domain"
)

// Store is a read-only view over the fixtures/odds tables.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema for the upstream-populated fixtures/odds tables this store reads.
// A real deployment's ingestion pipeline (out of scope) owns writes to these
// tables; this module only ever SELECTs from them, except in test fixtures.
const Schema = `
CREATE TABLE IF NOT EXISTS fixtures (
	id          TEXT PRIMARY KEY,
	home_team   TEXT NOT NULL,
	away_team   TEXT NOT NULL,
	league      TEXT NOT NULL,
	country     TEXT NOT NULL DEFAULT '',
	kickoff_utc INTEGER NOT NULL,
	status      INTEGER NOT NULL,
	home_score  INTEGER,
	away_score  INTEGER
);

CREATE TABLE IF NOT EXISTS odds_quotes (
	fixture_id TEXT PRIMARY KEY REFERENCES fixtures(id),
	home       REAL NOT NULL,
	draw       REAL NOT NULL,
	away       REAL NOT NULL,
	over25     REAL NOT NULL,
	under25    REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fixtures_kickoff ON fixtures(kickoff_utc);
CREATE INDEX IF NOT EXISTS idx_fixtures_status ON fixtures(status);
`

// excludedSubstrings are matched case-insensitively against league and team
// names to drop women's competitions.
var excludedSubstrings = []string{"women", "female", "ladies"}

// defaultPlaceholderOdds is the known mock-data fingerprint the upstream
// provider leaves behind for unpriced fixtures; a fixture whose five odds
// match this set exactly is rejected.
var defaultPlaceholderOdds = domain.OddsQuote{Home: 1.5, Draw: 3.0, Away: 2.5, Over: 1.8, Under: 2.0}

// QueryOptions tunes how strict odds-completeness checking is.
type QueryOptions struct {
	// RelaxOU accepts fixtures whose OU odds equal the provider's default
	// fill-in (1.8/2.0) as long as 1X2 odds are fully present — the
	// selector's relaxed retry on a thin candidate pool.
	RelaxOU bool
}

// CandidatesForDate returns {fixture, odds} pairs for fixtures kicking off
// within [date 00:00 UTC, date 23:59:59 UTC].
func (s *Store) CandidatesForDate(ctx context.Context, date time.Time, opts QueryOptions) ([]domain.Candidate, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.home_team, f.away_team, f.league, f.country, f.kickoff_utc,
		       f.status, f.home_score, f.away_score,
		       o.home, o.draw, o.away, o.over25, o.under25
		FROM fixtures f
		JOIN odds_quotes o ON o.fixture_id = f.id
		WHERE f.kickoff_utc BETWEEN ? AND ?
		  AND f.status = ?
	`, dayStart.Unix(), dayEnd.Unix(), int(domain.StatusNotStarted))
	if err != nil {
		return nil, fmt.Errorf("fixturestore: query candidates: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []domain.Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("fixturestore: scan candidate: %w", err)
		}
		if seen[cand.Fixture.ID] {
			continue // dedup by fixture id
		}
		if !eligible(cand, opts) {
			continue
		}
		seen[cand.Fixture.ID] = true
		out = append(out, cand)
	}
	return out, rows.Err()
}

func scanCandidate(rows *sql.Rows) (domain.Candidate, error) {
	var c domain.Candidate
	var kickoffUnix int64
	var status int
	var homeScore, awayScore sql.NullInt64

	if err := rows.Scan(
		&c.Fixture.ID, &c.Fixture.HomeTeam, &c.Fixture.AwayTeam, &c.Fixture.League, &c.Fixture.Country,
		&kickoffUnix, &status, &homeScore, &awayScore,
		&c.Odds.Home, &c.Odds.Draw, &c.Odds.Away, &c.Odds.Over, &c.Odds.Under,
	); err != nil {
		return c, err
	}
	c.Fixture.KickoffAt = time.Unix(kickoffUnix, 0).UTC()
	c.Fixture.Status = domain.FixtureStatus(status)
	if homeScore.Valid {
		v := int(homeScore.Int64)
		c.Fixture.HomeScore = &v
	}
	if awayScore.Valid {
		v := int(awayScore.Int64)
		c.Fixture.AwayScore = &v
	}
	return c, nil
}

func eligible(c domain.Candidate, opts QueryOptions) bool {
	if c.Fixture.Status != domain.StatusNotStarted {
		return false
	}
	if c.Fixture.KickoffAt.Hour() < 11 {
		return false
	}
	if hasExcludedTerm(c.Fixture.League) || hasExcludedTerm(c.Fixture.HomeTeam) || hasExcludedTerm(c.Fixture.AwayTeam) {
		return false
	}
	if isMockOdds(c.Odds) {
		return false
	}
	if !oddsAcceptable(c.Odds, opts) {
		return false
	}
	return true
}

func hasExcludedTerm(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range excludedSubstrings {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func isMockOdds(q domain.OddsQuote) bool {
	const eps = 1e-9
	return closeTo(q.Home, defaultPlaceholderOdds.Home, eps) &&
		closeTo(q.Draw, defaultPlaceholderOdds.Draw, eps) &&
		closeTo(q.Away, defaultPlaceholderOdds.Away, eps) &&
		closeTo(q.Over, defaultPlaceholderOdds.Over, eps) &&
		closeTo(q.Under, defaultPlaceholderOdds.Under, eps)
}

func closeTo(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

// oddsAcceptable requires full 1X2 always; OU is required full unless
// RelaxOU permits the provider's default fill-in values.
func oddsAcceptable(q domain.OddsQuote, opts QueryOptions) bool {
	sane := func(v float64) bool { return v > 1.0 && v <= 50 }
	if !sane(q.Home) || !sane(q.Draw) || !sane(q.Away) {
		return false
	}
	if opts.RelaxOU {
		isDefaultOU := closeTo(q.Over, 1.8, 1e-9) && closeTo(q.Under, 2.0, 1e-9)
		return isDefaultOU || (sane(q.Over) && sane(q.Under))
	}
	return sane(q.Over) && sane(q.Under)
}

// FixtureResult is the settled outcome of a finished fixture.
type FixtureResult struct {
	HomeScore int
	AwayScore int
	Finished  bool
}

// ResultsFor returns the final score for each requested fixture id, if the
// fixture has finished; unfinished or unknown fixtures are simply omitted.
func (s *Store) ResultsFor(ctx context.Context, fixtureIDs []string) (map[string]FixtureResult, error) {
	out := make(map[string]FixtureResult, len(fixtureIDs))
	if len(fixtureIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fixtureIDs)), ",")
	args := make([]any, len(fixtureIDs))
	for i, id := range fixtureIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, status, home_score, away_score
		FROM fixtures
		WHERE id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fixturestore: query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status int
		var homeScore, awayScore sql.NullInt64
		if err := rows.Scan(&id, &status, &homeScore, &awayScore); err != nil {
			return nil, fmt.Errorf("fixturestore: scan result: %w", err)
		}
		if domain.FixtureStatus(status) != domain.StatusFinished || !homeScore.Valid || !awayScore.Valid {
			continue
		}
		out[id] = FixtureResult{HomeScore: int(homeScore.Int64), AwayScore: int(awayScore.Int64), Finished: true}
	}
	return out, rows.Err()
}

// AllFinished reports whether every requested fixture is Finished.
func AllFinished(results map[string]FixtureResult, fixtureIDs []string) bool {
	for _, id := range fixtureIDs {
		r, ok := results[id]
		if !ok || !r.Finished {
			return false
		}
	}
	return true
}
