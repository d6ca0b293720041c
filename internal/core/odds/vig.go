// Package odds provides the vig-removal and goal-expectancy math the
// selector uses to judge how "fair" and internally consistent a
// fixture's quoted odds are before scoring it as a cycle candidate.
package odds

import "math"

// RemoveVig2 converts two-way decimal odds to fair probabilities by
// stripping the bookmaker's overround.
func RemoveVig2(a, b float64) (float64, float64) {
	rawA := 1.0 / a
	rawB := 1.0 / b
	total := rawA + rawB
	return rawA / total, rawB / total
}

// RemoveVig3 converts three-way decimal odds (home, draw, away) to fair
// probabilities.
func RemoveVig3(a, b, c float64) (float64, float64, float64) {
	rawA := 1.0 / a
	rawB := 1.0 / b
	rawC := 1.0 / c
	total := rawA + rawB + rawC
	return rawA / total, rawB / total, rawC / total
}

// PoissonCDF2 returns P(X <= 2) for a Poisson distribution with mean g0.
func PoissonCDF2(g0 float64) float64 {
	if g0 <= 0 {
		return 1.0
	}
	return math.Exp(-g0) * (1.0 + g0 + g0*g0/2.0)
}

// InferG0FromOU25 uses binary search to find the expected total goals (g0)
// that produces the given under-2.5 probability via the Poisson CDF.
func InferG0FromOU25(pUnder float64) float64 {
	if pUnder <= 0.01 || pUnder >= 0.99 {
		return 2.5
	}
	lo, hi := 0.1, 8.0
	for range 60 {
		mid := (lo + hi) / 2.0
		if PoissonCDF2(mid) > pUnder {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2.0
}

// CompetitivenessScore scores a vig-free 1X2 distribution from 0 (one side
// near-certain) to 1 (a true toss-up), used to favor fixtures that aren't
// foregone conclusions when the selector ranks candidates.
func CompetitivenessScore(pHome, pDraw, pAway float64) float64 {
	favorite := pHome
	if pAway > favorite {
		favorite = pAway
	}
	if pDraw > favorite {
		favorite = pDraw
	}
	// favorite ranges roughly [1/3, 1): rescale so an even three-way split
	// scores 1 and a near-certain favorite scores close to 0.
	score := 1 - (favorite-1.0/3.0)/(1.0-1.0/3.0)
	if score < 0 {
		return 0
	}
	return score
}

// GoalExpectancyConsistent reports whether the over/under-2.5 odds imply a
// plausible expected-goals figure (Poisson g0 within [0.5, 6]), catching
// feeds where the O/U market disagrees wildly with a sane match shape.
func GoalExpectancyConsistent(over, under float64) bool {
	pOver, pUnder := RemoveVig2(over, under)
	_ = pOver
	g0 := InferG0FromOU25(pUnder)
	return g0 >= 0.5 && g0 <= 6.0
}
