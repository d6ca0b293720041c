// Package domain holds the canonical data model shared by every Oddyssey
// component: fixtures, odds, cycles, slips, predictions, and prize claims.
package domain

import "time"

// FixtureStatus mirrors the upstream provider's match-state enum.
type FixtureStatus int

const (
	StatusNotStarted FixtureStatus = iota
	StatusInProgress
	StatusFinished
	StatusOther
)

// Fixture is a read-only view over a single football match.
type Fixture struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	League    string
	Country   string
	KickoffAt time.Time
	Status    FixtureStatus
	HomeScore *int
	AwayScore *int
}

// FinalScore reports the finished score, if any.
func (f Fixture) FinalScore() (home, away int, ok bool) {
	if f.Status != StatusFinished || f.HomeScore == nil || f.AwayScore == nil {
		return 0, 0, false
	}
	return *f.HomeScore, *f.AwayScore, true
}

// OddsQuote carries the five markets the selector and slip pipeline need:
// 1X2 (moneyline) and Over/Under 2.5. Values are decimal odds (e.g. 1.85).
type OddsQuote struct {
	Home  float64
	Draw  float64
	Away  float64
	Over  float64
	Under float64
}

// Complete reports whether all five quotes are present and sane (§3
// invariant: each value > 1.0 and <= 50).
func (q OddsQuote) Complete() bool {
	for _, v := range []float64{q.Home, q.Draw, q.Away, q.Over, q.Under} {
		if v <= 1.0 || v > 50 {
			return false
		}
	}
	return true
}

// Candidate is a fixture paired with its odds, as produced by the fixture
// read model and consumed by the selector.
type Candidate struct {
	Fixture Fixture
	Odds    OddsQuote
}

// MoneylineResult is the settled 1X2 outcome of a match.
type MoneylineResult int

const (
	MoneylineUnset MoneylineResult = iota
	MoneylineHome
	MoneylineDraw
	MoneylineAway
)

// OverUnderResult is the settled Over/Under-2.5 outcome of a match.
type OverUnderResult int

const (
	OverUnderUnset OverUnderResult = iota
	Over
	Under
)

// SettleTotal derives the canonical moneyline/over-under outcome from a
// finished score: total > 2.5 (i.e. >= 3) is Over.
func SettleTotal(home, away int) (MoneylineResult, OverUnderResult) {
	var ml MoneylineResult
	switch {
	case home > away:
		ml = MoneylineHome
	case home < away:
		ml = MoneylineAway
	default:
		ml = MoneylineDraw
	}
	ou := Under
	if home+away > 2 {
		ou = Over
	}
	return ml, ou
}

// CycleMatch is one of a cycle's ten fixed-order match slots.
type CycleMatch struct {
	DisplayOrder int // 1..10
	FixtureID    string
	KickoffUnix  int64
	OddsHomeX1000  uint32
	OddsDrawX1000  uint32
	OddsAwayX1000  uint32
	OddsOverX1000  uint32
	OddsUnderX1000 uint32
	Moneyline  MoneylineResult
	OverUnder  OverUnderResult
}

// CycleStatus is the lifecycle state machine position of a cycle.
type CycleStatus int

const (
	CycleCreatedDB CycleStatus = iota
	CyclePublished
	CycleAwaitingResults
	CycleResolved
	CycleEvaluationComplete
	CycleOrphaned
)

func (s CycleStatus) String() string {
	switch s {
	case CycleCreatedDB:
		return "created_db"
	case CyclePublished:
		return "published"
	case CycleAwaitingResults:
		return "awaiting_results"
	case CycleResolved:
		return "resolved"
	case CycleEvaluationComplete:
		return "evaluation_complete"
	case CycleOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// Cycle is a dated container of exactly ten matches.
type Cycle struct {
	ID                 int64
	CreatedAt          time.Time
	StartAt            time.Time
	EndAt              time.Time
	Matches            [10]CycleMatch
	Status             CycleStatus
	CreationTxHash     string
	ResolutionTxHash   string
	ResolvedAt         time.Time
	EvaluationComplete bool
	PrizePoolWei       string // decimal string, wei-denominated
	RolloverWei        string
	SyncRepairNeeded   bool
}

// FixtureIDs returns the ten fixture ids in display order.
func (c Cycle) FixtureIDs() [10]string {
	var ids [10]string
	for i, m := range c.Matches {
		ids[i] = m.FixtureID
	}
	return ids
}

// Prediction is a single player pick against one of a cycle's ten fixtures.
type Prediction struct {
	FixtureID      string
	BetType        BetType
	Selection      Selection
	SelectedOddX1000 uint32
}

// Slip is a player's ten-prediction entry against one cycle.
type Slip struct {
	ID             int64
	CycleID        int64
	Player         string
	PlacedAt       time.Time
	Predictions    [10]Prediction
	Evaluated      bool
	CorrectCount   int
	FinalScoreX1000 uint64
	LeaderboardRank *int
	PrizeClaimed   bool
	PlacementTxHash string
}

// PrizeClaim records a single (cycle, slip, player) prize claim.
type PrizeClaim struct {
	CycleID   int64
	SlipID    int64
	Player    string
	Rank      int
	AmountWei string
	Claimed   bool
	ClaimTxHash string
	ClaimedAt time.Time
}

// Severity is an alert's urgency level.
type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "info"
	}
}

// Alert is a health/monitor finding.
type Alert struct {
	ID        string
	Severity  Severity
	Message   string
	Details   map[string]any
	CreatedAt time.Time
}
