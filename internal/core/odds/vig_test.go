package odds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveVig3_SumsToOne(t *testing.T) {
	pHome, pDraw, pAway := RemoveVig3(2.00, 3.40, 3.80)
	assert.InDelta(t, 1.0, pHome+pDraw+pAway, 1e-9)
	assert.Greater(t, pHome, pAway)
}

func TestCompetitivenessScore_EvenMatchScoresHigh(t *testing.T) {
	even := CompetitivenessScore(1.0/3, 1.0/3, 1.0/3)
	assert.InDelta(t, 1.0, even, 1e-9)

	lopsided := CompetitivenessScore(0.85, 0.10, 0.05)
	assert.Less(t, lopsided, 0.3)
}

func TestGoalExpectancyConsistent_RejectsExtremeOdds(t *testing.T) {
	assert.True(t, GoalExpectancyConsistent(1.9, 1.9))
	assert.False(t, GoalExpectancyConsistent(1.01, 50.0))
}
