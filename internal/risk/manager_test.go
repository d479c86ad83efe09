package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		InitialBalance:     30,
		MaxPositionPct:     0.08,
		MinEdge:            0.08,
		MinConfidence:      0.60,
		KillThreshold:      15,
		KellyFraction:      0.333,
		ReservePct:         0.10,
		MaxOpenPositions:   8,
		MaxSpread:          0.05,
		MinStakeUSD:        0.10,
		MaxEdgeSanity:      0.35,
		SurvivalBufferMult: 2.0,
	}
}

func testMarket(yes string) market.Market {
	y := d(yes)
	return market.Market{
		ID:       "m1",
		Question: "Will it happen?",
		YesPrice: y,
		NoPrice:  decimal.NewFromInt(1).Sub(y),
	}
}

func testView(cash string) portfolio.View {
	c := d(cash)
	return portfolio.View{
		Cash:           c,
		Available:      c.Mul(d("0.9")),
		InitialBalance: d("30"),
	}
}

func testVerdict(side market.Side, fair string, conf float64) analysis.Verdict {
	return analysis.Verdict{
		MarketID:   "m1",
		Side:       side,
		FairValue:  d(fair),
		Confidence: conf,
	}
}

func TestEvaluateSizingScenario(t *testing.T) {
	m := NewManager(testTradingConfig())

	// $30 balance, price 0.42, fair value 0.62 (edge 0.20), confidence 0.70.
	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.70), testMarket("0.42"), testView("30"))

	require.True(t, dec.Approved, dec.Reason)
	// 8% cap on $27 available, then scaled by 0.70/0.80.
	assert.True(t, dec.Stake.Equal(d("1.89")), "stake %s", dec.Stake)
	maxAllowed := d("0.08").Mul(d("30"))
	assert.True(t, dec.Stake.LessThanOrEqual(maxAllowed))
}

func TestEvaluateRejectsSkipSide(t *testing.T) {
	m := NewManager(testTradingConfig())
	dec := m.Evaluate(testVerdict(market.SideSkip, "0.62", 0.90), testMarket("0.42"), testView("30"))
	assert.False(t, dec.Approved)
}

func TestEvaluateRejectsWhenPaused(t *testing.T) {
	m := NewManager(testTradingConfig())
	v := testView("30")
	v.Paused = true
	v.ConsecutiveLosses = 5

	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.90), testMarket("0.42"), v)
	assert.False(t, dec.Approved)
	assert.Equal(t, ActionPause, dec.LossAction)
}

func TestEvaluateRejectsBelowKillThreshold(t *testing.T) {
	m := NewManager(testTradingConfig())
	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.90), testMarket("0.42"), testView("14.99"))
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "kill threshold")
}

func TestEvaluateLossLadder(t *testing.T) {
	m := NewManager(testTradingConfig())
	verdict := testVerdict(market.SideYes, "0.62", 0.90)
	mkt := testMarket("0.42")

	// Three straight losses skip the whole cycle.
	v := testView("100")
	v.ConsecutiveLosses = 3
	dec := m.Evaluate(verdict, mkt, v)
	assert.False(t, dec.Approved)
	assert.Equal(t, ActionSkipCycle, dec.LossAction)

	// Four halve the stake relative to a clean slate.
	clean := testView("100")
	base := m.Evaluate(verdict, mkt, clean)
	require.True(t, base.Approved, base.Reason)

	v.ConsecutiveLosses = 4
	dec = m.Evaluate(verdict, mkt, v)
	require.True(t, dec.Approved, dec.Reason)
	assert.Equal(t, ActionReduceSize, dec.LossAction)
	assert.True(t, dec.Stake.Equal(base.Stake.Mul(d("0.5")).Round(2)),
		"halved %s vs base %s", dec.Stake, base.Stake)

	// Five is a hard stop even before the ledger flips paused.
	v.ConsecutiveLosses = 5
	dec = m.Evaluate(verdict, mkt, v)
	assert.False(t, dec.Approved)
	assert.Equal(t, ActionPause, dec.LossAction)
}

func TestEvaluateEdgeGates(t *testing.T) {
	m := NewManager(testTradingConfig())
	mkt := testMarket("0.42")
	view := testView("100")

	dec := m.Evaluate(testVerdict(market.SideYes, "0.45", 0.90), mkt, view)
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "below minimum")

	// A 0.40 edge smells like a calibration error, not free money.
	dec = m.Evaluate(testVerdict(market.SideYes, "0.82", 0.90), mkt, view)
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "sanity cap")
}

func TestEvaluateRejectsLowConfidence(t *testing.T) {
	m := NewManager(testTradingConfig())
	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.55), testMarket("0.42"), testView("100"))
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "confidence")
}

func TestEvaluateRejectsWideSpread(t *testing.T) {
	m := NewManager(testTradingConfig())
	mkt := testMarket("0.42")
	mkt.NoPrice = d("0.65") // yes+no = 1.07
	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.90), mkt, testView("100"))
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "spread")
}

func TestEvaluateRejectsAtPositionLimit(t *testing.T) {
	m := NewManager(testTradingConfig())
	v := testView("100")
	for i := 0; i < 8; i++ {
		v.OpenPositions = append(v.OpenPositions, portfolio.Position{})
	}
	dec := m.Evaluate(testVerdict(market.SideYes, "0.62", 0.90), testMarket("0.42"), v)
	assert.False(t, dec.Approved)
	assert.Contains(t, dec.Reason, "limit")
}

func TestEvaluateSurvivalModeShrinksStake(t *testing.T) {
	m := NewManager(testTradingConfig())
	verdict := testVerdict(market.SideYes, "0.62", 0.90)
	mkt := testMarket("0.42")

	normal := m.Evaluate(verdict, mkt, testView("100"))
	require.True(t, normal.Approved, normal.Reason)

	// $20 sits inside the buffer zone below 2x the $15 kill threshold.
	survival := m.Evaluate(verdict, mkt, testView("20"))
	require.True(t, survival.Approved, survival.Reason)
	assert.NotEmpty(t, survival.Adjustments)

	normalFrac := normal.Stake.Div(d("100"))
	survivalFrac := survival.Stake.Div(d("20"))
	assert.True(t, survivalFrac.LessThan(normalFrac),
		"survival fraction %s should be below normal %s", survivalFrac, normalFrac)
}
