package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/executor"
	"polyagent/internal/market"
	"polyagent/internal/planner"
	"polyagent/internal/portfolio"
	"polyagent/internal/risk"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubMarkets struct {
	markets []market.Market
}

func (s *stubMarkets) Scan(_ context.Context, _ int) ([]market.Market, error) {
	return s.markets, nil
}

// stubProvider serves canned verdicts by market id.
type stubProvider struct {
	verdicts map[string]analysis.Verdict
}

func (s *stubProvider) Research(_ context.Context, m market.Market) (analysis.Verdict, error) {
	v, ok := s.verdicts[m.ID]
	if !ok {
		return analysis.Verdict{}, analysis.ErrUnavailable
	}
	return v, nil
}

func (s *stubProvider) ExitOpinion(_ context.Context, _ analysis.ExitQuery) (analysis.ExitRecommendation, error) {
	return analysis.ExitRecommendation{}, nil
}

func engineConfig() config.Config {
	return config.Config{
		App: config.AppConfig{AgentID: "test"},
		Analysis: config.AnalysisConfig{
			MaxCandidates: 20,
		},
		Market: config.MarketConfig{MaxMarketsScan: 100},
		Trading: config.TradingConfig{
			InitialBalance:     100,
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
		},
	}
}

func tradableMarket(id, yes string) market.Market {
	y := d(yes)
	return market.Market{
		ID:       id,
		Question: "Will " + id + " happen?",
		YesPrice: y,
		NoPrice:  decimal.NewFromInt(1).Sub(y),
		Volume:   d("50000"),
		EndDate:  time.Now().Add(30 * 24 * time.Hour),
		Tokens: []market.TokenInfo{
			{TokenID: "tok-" + id + "-yes", Outcome: "Yes"},
			{TokenID: "tok-" + id + "-no", Outcome: "No"},
		},
	}
}

func newTestEngine(cfg config.Config, markets []market.Market, verdicts map[string]analysis.Verdict) (*Engine, *portfolio.Ledger) {
	ledger := portfolio.NewLedger(
		decimal.NewFromFloat(cfg.Trading.InitialBalance),
		decimal.NewFromFloat(cfg.Trading.ReservePct),
		cfg.Trading.MaxOpenPositions,
	)
	e := New(cfg, ledger,
		risk.NewManager(cfg.Trading),
		planner.New(cfg.Trading),
		executor.Frictionless(),
		&stubProvider{verdicts: verdicts},
		&stubMarkets{markets: markets},
	)
	return e, ledger
}

func TestRunCycleOpensPosition(t *testing.T) {
	cfg := engineConfig()
	mkt := tradableMarket("m1", "0.42")
	verdicts := map[string]analysis.Verdict{
		"m1": {MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
	}
	e, ledger := newTestEngine(cfg, []market.Market{mkt}, verdicts)

	stats := e.RunCycle(context.Background())

	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, stats.Traded)

	view := ledger.Snapshot()
	require.Equal(t, 1, view.OpenCount())
	pos := view.OpenPositions[0]
	assert.Equal(t, "m1", pos.MarketID)
	assert.Equal(t, market.SideYes, pos.Side)
	assert.Equal(t, "tok-m1-yes", pos.TokenID)
	assert.Equal(t, portfolio.ModeSwing, pos.Mode)
	// Frictionless fill at the quote; plan levels derive from it.
	assert.True(t, pos.EntryPrice.Equal(d("0.42")))
	assert.True(t, pos.TakeProfit.IsPositive())
	assert.True(t, pos.StopLoss.Equal(d("0.42").Mul(d("0.90"))))
	assert.False(t, pos.Deadline.IsZero())
}

func TestRunCyclePlanAndPositionAgree(t *testing.T) {
	cfg := engineConfig()
	mkt := tradableMarket("m1", "0.42")
	v := analysis.Verdict{MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85}
	e, ledger := newTestEngine(cfg, []market.Market{mkt}, map[string]analysis.Verdict{"m1": v})

	e.RunCycle(context.Background())

	view := ledger.Snapshot()
	require.Equal(t, 1, view.OpenCount())
	pos := view.OpenPositions[0]

	plan, err := planner.New(cfg.Trading).Plan(v, risk.Decision{Approved: true, Stake: pos.Stake}, mkt)
	require.NoError(t, err)
	tp, sl := plan.Levels(pos.EntryPrice)
	assert.True(t, pos.TakeProfit.Equal(tp))
	assert.True(t, pos.StopLoss.Equal(sl))
	assert.Equal(t, plan.Mode, pos.Mode)
}

func TestRunCycleRejectionDoesNotAbort(t *testing.T) {
	cfg := engineConfig()
	markets := []market.Market{
		tradableMarket("m1", "0.42"),
		tradableMarket("m2", "0.42"),
	}
	verdicts := map[string]analysis.Verdict{
		// Confidence below the floor: rejected.
		"m1": {MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.40},
		// Clean admit.
		"m2": {MarketID: "m2", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
	}
	e, ledger := newTestEngine(cfg, markets, verdicts)

	stats := e.RunCycle(context.Background())

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Traded)
	assert.Equal(t, 1, ledger.Snapshot().OpenCount())
}

func TestRunCycleSkipsHeldMarkets(t *testing.T) {
	cfg := engineConfig()
	mkt := tradableMarket("m1", "0.42")
	verdicts := map[string]analysis.Verdict{
		"m1": {MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
	}
	e, ledger := newTestEngine(cfg, []market.Market{mkt}, verdicts)

	e.RunCycle(context.Background())
	require.Equal(t, 1, ledger.Snapshot().OpenCount())

	// Second cycle sees the same market and must not double up.
	stats := e.RunCycle(context.Background())
	assert.Equal(t, 0, stats.Analyzed)
	assert.Equal(t, 0, stats.Traded)
	assert.Equal(t, 1, ledger.Snapshot().OpenCount())
}

func TestRunCycleHaltsOnLossStreak(t *testing.T) {
	cfg := engineConfig()
	markets := []market.Market{
		tradableMarket("m1", "0.42"),
		tradableMarket("m2", "0.42"),
	}
	verdicts := map[string]analysis.Verdict{
		"m1": {MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
		"m2": {MarketID: "m2", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
	}
	e, ledger := newTestEngine(cfg, markets, verdicts)

	// Three synthetic losing closes put the ladder into skip-cycle.
	for i := 0; i < 3; i++ {
		h, err := ledger.Reserve(d("1"))
		require.NoError(t, err)
		id := "loss-" + string(rune('a'+i))
		require.NoError(t, ledger.CommitOpen(h, portfolio.Position{ID: id, Stake: d("1")}))
		_, err = ledger.CommitClose(id, d("0.2"), decimal.Zero, d("-0.5"), portfolio.ExitStopLoss)
		require.NoError(t, err)
	}

	stats := e.RunCycle(context.Background())
	assert.Equal(t, 0, stats.Traded)
	assert.Equal(t, 2, stats.Skipped)
}

func TestRunCycleStopsAtCandidateBoundary(t *testing.T) {
	cfg := engineConfig()
	markets := []market.Market{
		tradableMarket("m1", "0.42"),
		tradableMarket("m2", "0.42"),
	}
	verdicts := map[string]analysis.Verdict{
		"m1": {MarketID: "m1", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
		"m2": {MarketID: "m2", Side: market.SideYes, FairValue: d("0.54"), Confidence: 0.85},
	}
	e, ledger := newTestEngine(cfg, markets, verdicts)
	e.WithStopCheck(func() bool { return true })

	stats := e.RunCycle(context.Background())
	assert.Equal(t, 0, stats.Traded)
	assert.Equal(t, 0, ledger.Snapshot().OpenCount())
	assert.Equal(t, "stopped mid-cycle", stats.Notes)
}

func TestShortlistFiltersExtremesAndTokenless(t *testing.T) {
	cfg := engineConfig()
	extreme := tradableMarket("m1", "0.98")
	tokenless := tradableMarket("m2", "0.42")
	tokenless.Tokens = nil
	good := tradableMarket("m3", "0.42")

	e, _ := newTestEngine(cfg, nil, nil)
	out := e.shortlist([]market.Market{extreme, tokenless, good})

	require.Len(t, out, 1)
	assert.Equal(t, "m3", out[0].ID)
}
