package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRoundTrip(t *testing.T) {
	for _, sel := range allCanonical {
		hash := sel.KeccakHex()
		got, err := ParseSelectionInput(hash)
		require.NoError(t, err)
		assert.Equal(t, sel.Canonical(), got.Canonical())
	}
}

func TestParseCanonical_HumanReadable(t *testing.T) {
	sel, err := ParseSelectionInput("Over")
	require.NoError(t, err)
	assert.Equal(t, OverUnder, sel.BetType())
	assert.Equal(t, Over, sel.OverUnder())

	sel, err = ParseSelectionInput("1")
	require.NoError(t, err)
	assert.Equal(t, Moneyline, sel.BetType())
	assert.Equal(t, MoneylineHome, sel.Moneyline())
}

func TestParseSelectionInput_Invalid(t *testing.T) {
	_, err := ParseSelectionInput("not-a-selection")
	assert.Error(t, err)
}

func TestSettleTotal_OverUnderBoundary(t *testing.T) {
	// total > 2.5 => Over, i.e. total >= 3.
	cases := []struct {
		home, away int
		wantOU     OverUnderResult
	}{
		{0, 0, Under},
		{1, 0, Under},
		{1, 1, Under},
		{2, 1, Over},
		{3, 0, Over},
		{2, 2, Over},
	}
	for _, c := range cases {
		_, ou := SettleTotal(c.home, c.away)
		assert.Equalf(t, c.wantOU, ou, "score %d-%d", c.home, c.away)
	}
}

func TestSettleTotal_Moneyline(t *testing.T) {
	ml, _ := SettleTotal(2, 1)
	assert.Equal(t, MoneylineHome, ml)
	ml, _ = SettleTotal(1, 2)
	assert.Equal(t, MoneylineAway, ml)
	ml, _ = SettleTotal(1, 1)
	assert.Equal(t, MoneylineDraw, ml)
}
