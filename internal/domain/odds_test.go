package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleOdds_RoundTrip(t *testing.T) {
	for _, d := range []float64{1.001, 1.85, 2.5, 3.333, 50.0, 1.111} {
		scaled := ScaleOdds(d)
		back := UnscaleOdds(scaled)
		assert.InDelta(t, d, back, 1e-9)
	}
}

func TestComputeFinalScore_ScoringScenario(t *testing.T) {
	odds := []uint32{2000, 3000, 2500, 1800, 2000, 1500, 1700, 2200, 1900, 2100}
	correct := []int{0, 2, 5, 8}

	var correctOdds []uint32
	for _, i := range correct {
		correctOdds = append(correctOdds, odds[i])
	}
	assert.Equal(t, uint64(14250), ComputeFinalScore(correctOdds))
}

func TestComputeFinalScore_NoCorrect(t *testing.T) {
	assert.Equal(t, uint64(0), ComputeFinalScore(nil))
}

func TestMultiplyTruncate_Identity(t *testing.T) {
	assert.Equal(t, uint64(1000), MultiplyTruncate(1000, 1000))
}
