package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"polyagent/internal/market"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestKellyBetPositiveEdge(t *testing.T) {
	// $27 bankroll, 70% win probability at price 0.42.
	res := KellyBet(d("27"), d("0.70"), d("0.42"), market.SideYes, d("0.08"), d("0.333"))

	assert.True(t, res.FullKelly.GreaterThan(d("0.48")), "full kelly %s", res.FullKelly)
	assert.True(t, res.FullKelly.LessThan(d("0.49")))
	// Adjusted kelly exceeds the 8% cap, so the cap binds.
	assert.True(t, res.BetFraction.Equal(d("0.08")))
	assert.True(t, res.Stake.Equal(d("2.16")), "stake %s", res.Stake)
	assert.True(t, res.ExpectedValue.IsPositive())
}

func TestKellyBetNoEdgeIsZero(t *testing.T) {
	// At even odds with a coin-flip probability f* is exactly zero.
	res := KellyBet(d("100"), d("0.5"), d("0.5"), market.SideYes, d("0.08"), d("0.4"))
	assert.True(t, res.Stake.IsZero())

	// Below-even probability against odds b <= 1 goes negative.
	res = KellyBet(d("100"), d("0.45"), d("0.55"), market.SideYes, d("0.08"), d("0.4"))
	assert.True(t, res.Stake.IsZero())
	assert.True(t, res.FullKelly.IsZero())
}

func TestKellyBetNoSideFlipsPrice(t *testing.T) {
	// Long NO at yes price 0.70 means buying at 0.30.
	res := KellyBet(d("100"), d("0.60"), d("0.70"), market.SideNo, d("0.50"), d("1"))

	// b = 0.7/0.3, f* = (0.6*b - 0.4)/b = 0.6 - 0.4*3/7
	assert.True(t, res.FullKelly.Sub(d("0.4285714285714286")).Abs().LessThan(d("0.0000001")), "kelly %s", res.FullKelly)
}

func TestKellyBetSkipAndDegeneratePrices(t *testing.T) {
	assert.True(t, KellyBet(d("100"), d("0.7"), d("0.42"), market.SideSkip, d("0.08"), d("0.4")).Stake.IsZero())
	assert.True(t, KellyBet(d("100"), d("0.7"), d("0"), market.SideYes, d("0.08"), d("0.4")).Stake.IsZero())
	assert.True(t, KellyBet(d("100"), d("0.7"), d("1"), market.SideYes, d("0.08"), d("0.4")).Stake.IsZero())
	assert.True(t, KellyBet(d("100"), d("1"), d("0.42"), market.SideYes, d("0.08"), d("0.4")).Stake.IsZero())
}

func TestGrowthScale(t *testing.T) {
	// No scaling at or below the starting bankroll.
	assert.True(t, GrowthScale(d("0.08"), d("30"), d("30")).Equal(d("0.08")))
	assert.True(t, GrowthScale(d("0.08"), d("20"), d("30")).Equal(d("0.08")))

	// Doubled bankroll widens the cap by half.
	assert.True(t, GrowthScale(d("0.08"), d("60"), d("30")).Equal(d("0.12")))

	// Hard ceiling at 80%.
	assert.True(t, GrowthScale(d("0.50"), d("300"), d("30")).Equal(d("0.80")))
}

func TestSurvivalAdjust(t *testing.T) {
	kf, pct, dead := SurvivalAdjust(d("100"), d("15"), d("2"), d("0.4"), d("0.08"))
	assert.False(t, dead)
	assert.True(t, kf.Equal(d("0.4")))
	assert.True(t, pct.Equal(d("0.08")))

	// Inside the buffer zone both inputs shrink linearly, halved at most.
	kf, pct, dead = SurvivalAdjust(d("22.5"), d("15"), d("2"), d("0.4"), d("0.08"))
	assert.False(t, dead)
	assert.True(t, kf.Equal(d("0.1")), "kf %s", kf)
	assert.True(t, pct.Equal(d("0.02")), "pct %s", pct)

	// The cap never drops under 1%.
	_, pct, _ = SurvivalAdjust(d("15.1"), d("15"), d("2"), d("0.4"), d("0.08"))
	assert.True(t, pct.Equal(d("0.01")))

	// At the threshold the agent is dead.
	_, _, dead = SurvivalAdjust(d("15"), d("15"), d("2"), d("0.4"), d("0.08"))
	assert.True(t, dead)
}

func TestCheckConsecutiveLosses(t *testing.T) {
	assert.Equal(t, ActionContinue, CheckConsecutiveLosses(0))
	assert.Equal(t, ActionContinue, CheckConsecutiveLosses(2))
	assert.Equal(t, ActionSkipCycle, CheckConsecutiveLosses(3))
	assert.Equal(t, ActionReduceSize, CheckConsecutiveLosses(4))
	assert.Equal(t, ActionPause, CheckConsecutiveLosses(5))
	assert.Equal(t, ActionPause, CheckConsecutiveLosses(9))
}
