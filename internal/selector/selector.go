// Package selector implements the daily match selection algorithm:
// scoring candidates by league priority, odds quality, and kickoff time,
// then picking exactly ten with league-diversity protection.
package selector

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oddyssey-cycle/engine/internal/apperr"
	"github.com/oddyssey-cycle/engine/internal/config"
	"github.com/oddyssey-cycle/engine/internal/core/odds"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/fixturestore"
)

// CandidateProvider is the subset of fixturestore.Store the selector needs.
type CandidateProvider interface {
	CandidatesForDate(ctx context.Context, date time.Time, opts fixturestore.QueryOptions) ([]domain.Candidate, error)
}

const (
	matchesPerCycle    = 10
	highPriorityFloor  = 80
	defaultLeagueScore = 30
)

// Selector picks the daily set of matches.
type Selector struct {
	provider   CandidateProvider
	priorities config.LeaguePriorities
}

func New(provider CandidateProvider, priorities config.LeaguePriorities) *Selector {
	return &Selector{provider: provider, priorities: priorities}
}

type scored struct {
	candidate      domain.Candidate
	leagueScore    float64
	total          float64
}

// SelectDaily returns exactly ten validated matches for date, in kickoff
// order with display order assigned, or a PredicateFailure/Invariant error
// (InsufficientCandidates, ValidationFailed).
func (s *Selector) SelectDaily(ctx context.Context, date time.Time) ([matchesPerCycle]domain.CycleMatch, error) {
	var out [matchesPerCycle]domain.CycleMatch

	candidates, err := s.provider.CandidatesForDate(ctx, date, fixturestore.QueryOptions{})
	if err != nil {
		return out, err
	}
	if len(candidates) < matchesPerCycle {
		relaxed, err := s.provider.CandidatesForDate(ctx, date, fixturestore.QueryOptions{RelaxOU: true})
		if err != nil {
			return out, err
		}
		candidates = relaxed
	}
	if len(candidates) < matchesPerCycle {
		return out, apperr.New(apperr.CodeInsufficientCandidates, "fewer than ten candidates available",
			"date", date.Format("2006-01-02"), "count", len(candidates))
	}

	rng := rand.New(rand.NewSource(dateSeed(date)))
	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		leagueScore := s.leaguePriority(c)
		total := leagueScore + oddsBalance(c.Odds) + reasonableRangeBonus(c.Odds) + kickoffWindowBonus(c.Fixture.KickoffAt) + rng.Float64()*5
		scoredList = append(scoredList, scored{candidate: c, leagueScore: leagueScore, total: total})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].total > scoredList[j].total })

	selected := selectWithDiversity(scoredList)
	if len(selected) != matchesPerCycle {
		return out, apperr.New(apperr.CodeValidationFailed, "could not assemble ten matches with diversity pass",
			"selected", len(selected))
	}

	if err := validateTen(selected, time.Now()); err != nil {
		return out, err
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Fixture.KickoffAt.Before(selected[j].Fixture.KickoffAt)
	})

	for i, c := range selected {
		home, draw, away, over, under := domain.ScaleQuote(c.Odds)
		out[i] = domain.CycleMatch{
			DisplayOrder:   i + 1,
			FixtureID:      c.Fixture.ID,
			KickoffUnix:    c.Fixture.KickoffAt.Unix(),
			OddsHomeX1000:  home,
			OddsDrawX1000:  draw,
			OddsAwayX1000:  away,
			OddsOverX1000:  over,
			OddsUnderX1000: under,
			Moneyline:      domain.MoneylineUnset,
			OverUnder:      domain.OverUnderUnset,
		}
	}
	return out, nil
}

// dateSeed derives a deterministic RNG seed from the UTC calendar day, so
// jitter is reproducible within a single call for a given date but varies
// day to day.
func dateSeed(date time.Time) int64 {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return d.Unix()
}

// leaguePriority resolves a candidate's league-priority score, applying the
// English-Premier-League disambiguation rule when the YAML entry carries an
// EnglishPL hint list.
func (s *Selector) leaguePriority(c domain.Candidate) float64 {
	entry, ok := lookupLeague(s.priorities, c.Fixture.League)
	if !ok {
		return defaultLeagueScore
	}
	if len(entry.EnglishPL) > 0 {
		if onList(entry.EnglishPL, c.Fixture.HomeTeam) || onList(entry.EnglishPL, c.Fixture.AwayTeam) {
			return 100
		}
		return 30
	}
	return float64(entry.Priority)
}

func lookupLeague(priorities config.LeaguePriorities, league string) (config.LeagueEntry, bool) {
	for name, entry := range priorities {
		if strings.EqualFold(name, league) {
			return entry, true
		}
	}
	return config.LeagueEntry{}, false
}

func onList(list []string, team string) bool {
	for _, t := range list {
		if strings.EqualFold(t, team) {
			return true
		}
	}
	return false
}

// oddsBalance scores how competitive a fixture's vig-free 1X2 market is,
// favoring genuine toss-ups over near-certain favorites.
func oddsBalance(q domain.OddsQuote) float64 {
	pHome, pDraw, pAway := odds.RemoveVig3(q.Home, q.Draw, q.Away)
	return odds.CompetitivenessScore(pHome, pDraw, pAway) * 20
}

func reasonableRangeBonus(q domain.OddsQuote) float64 {
	for _, v := range []float64{q.Home, q.Draw, q.Away, q.Over, q.Under} {
		if v < 1.05 || v > 15.0 {
			return 0
		}
	}
	bonus := 15.0
	if odds.GoalExpectancyConsistent(q.Over, q.Under) {
		bonus += 5
	}
	return bonus
}

func kickoffWindowBonus(kickoff time.Time) float64 {
	h := kickoff.UTC().Hour()
	if h >= 15 && h <= 21 {
		return 10
	}
	return 0
}

// selectWithDiversity walks the score-sorted list twice: once admitting
// high-priority leagues with a per-league cap of two, then filling any
// remaining slots with the best leftovers regardless of league.
func selectWithDiversity(sortedList []scored) []domain.Candidate {
	admittedByLeague := make(map[string]int)
	used := make(map[int]bool, len(sortedList))
	selected := make([]domain.Candidate, 0, matchesPerCycle)

	for i, sc := range sortedList {
		if len(selected) >= matchesPerCycle {
			break
		}
		if sc.leagueScore < highPriorityFloor {
			continue
		}
		league := sc.candidate.Fixture.League
		if admittedByLeague[league] >= 2 {
			continue
		}
		selected = append(selected, sc.candidate)
		admittedByLeague[league]++
		used[i] = true
	}

	for i, sc := range sortedList {
		if len(selected) >= matchesPerCycle {
			break
		}
		if used[i] {
			continue
		}
		selected = append(selected, sc.candidate)
		used[i] = true
	}

	return selected
}

func validateTen(selected []domain.Candidate, now time.Time) error {
	if len(selected) != matchesPerCycle {
		return apperr.New(apperr.CodeValidationFailed, "expected exactly ten matches", "got", len(selected))
	}
	seen := make(map[string]bool, matchesPerCycle)
	for _, c := range selected {
		if seen[c.Fixture.ID] {
			return apperr.New(apperr.CodeDuplicateFixtureInCycle, "duplicate fixture in selection", "fixtureId", c.Fixture.ID)
		}
		seen[c.Fixture.ID] = true

		if !moneylineSane(c.Odds.Home) || !moneylineSane(c.Odds.Draw) || !moneylineSane(c.Odds.Away) {
			return apperr.New(apperr.CodeValidationFailed, "moneyline odds out of range", "fixtureId", c.Fixture.ID)
		}
		if !ouSane(c.Odds.Over) || !ouSane(c.Odds.Under) {
			return apperr.New(apperr.CodeValidationFailed, "over/under odds out of range", "fixtureId", c.Fixture.ID)
		}
		if !c.Fixture.KickoffAt.After(now) {
			return apperr.New(apperr.CodeValidationFailed, "kickoff not in the future", "fixtureId", c.Fixture.ID)
		}
	}
	return nil
}

func moneylineSane(v float64) bool { return v > 1.00 && v <= 50.0 }
func ouSane(v float64) bool        { return v > 1.00 && v <= 10.0 }
