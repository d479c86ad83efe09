package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/market"
	"polyagent/internal/portfolio"
	"polyagent/internal/risk"
)

// ErrSpreadTooWide rejects a plan whose market spread exceeds the mode's
// tolerance. Scalps need tight books; conviction holds can absorb more.
var ErrSpreadTooWide = errors.New("spread too wide for trade mode")

// Plan is the exit contract for one approved trade. TP/SL are percentages
// relative to the eventual fill price; Levels resolves them once the fill
// is known.
type Plan struct {
	MarketID   string
	Question   string
	Side       market.Side
	Mode       portfolio.Mode
	Stake      decimal.Decimal
	FairValue  decimal.Decimal
	Edge       decimal.Decimal
	Confidence float64

	TakeProfitPct decimal.Decimal // zero = no TP
	StopLossPct   decimal.Decimal // zero = no SL
	Deadline      time.Time       // zero = hold to resolution

	CheckInterval time.Duration
	Reasoning     string
}

// Levels converts the percentage thresholds into price levels around the
// filled entry price. Zero percentages stay zero (no threshold).
func (p Plan) Levels(entry decimal.Decimal) (tp, sl decimal.Decimal) {
	one := decimal.NewFromInt(1)
	if p.TakeProfitPct.IsPositive() {
		tp = entry.Mul(one.Add(p.TakeProfitPct))
	}
	if p.StopLossPct.IsPositive() {
		sl = entry.Mul(one.Sub(p.StopLossPct))
	}
	return tp, sl
}

// Planner assigns each approved trade an exit mode from a deterministic
// rule table keyed by edge, confidence and time to resolution.
type Planner struct {
	tpOverride decimal.Decimal
	slOverride decimal.Decimal
	nowFn      func() time.Time
}

func New(cfg config.TradingConfig) *Planner {
	return &Planner{
		tpOverride: decimal.NewFromFloat(cfg.ExitTPPct),
		slOverride: decimal.NewFromFloat(cfg.ExitSLPct),
		nowFn:      time.Now,
	}
}

// Plan classifies the trade and derives its exit thresholds. The spread
// gate is per mode: 2% for scalps, 4% for swings, 5% for conviction.
func (pl *Planner) Plan(v analysis.Verdict, dec risk.Decision, mkt market.Market) (Plan, error) {
	now := pl.nowFn()
	yesPrice := mkt.PriceFor(market.SideYes)
	edge := v.FairValue.Sub(yesPrice).Abs()
	days := mkt.DaysToResolution(now)

	mode := classify(edge, v.Confidence, days)

	var (
		tpPct, slPct decimal.Decimal
		deadline     time.Time
		checkEvery   time.Duration
		maxSpread    decimal.Decimal
	)
	switch mode {
	case portfolio.ModeScalp:
		tpPct = decimal.RequireFromString("0.12")
		slPct = decimal.RequireFromString("0.08")
		deadline = now.Add(24 * time.Hour)
		checkEvery = 30 * time.Second
		maxSpread = decimal.RequireFromString("0.02")
	case portfolio.ModeSwing:
		// 80% of the edge, floored at 5% and capped at 20%.
		tpPct = decimal.Max(edge.Mul(decimal.RequireFromString("0.8")), decimal.RequireFromString("0.05"))
		tpPct = decimal.Min(tpPct, decimal.RequireFromString("0.20"))
		slPct = decimal.RequireFromString("0.10")
		deadline = now.Add(7 * 24 * time.Hour)
		checkEvery = 90 * time.Second
		maxSpread = decimal.RequireFromString("0.04")
	case portfolio.ModeConviction:
		// Hold to resolution, no price thresholds.
		deadline = mkt.EndDate
		checkEvery = 3 * time.Minute
		maxSpread = decimal.RequireFromString("0.05")
	}

	if spread := mkt.Spread(); spread.GreaterThan(maxSpread) {
		return Plan{}, fmt.Errorf("%s spread %s exceeds %s: %w", mode, spread, maxSpread, ErrSpreadTooWide)
	}

	// Operator overrides replace the mode-derived thresholds uniformly.
	if pl.tpOverride.IsPositive() {
		tpPct = pl.tpOverride
	}
	if pl.slOverride.IsPositive() {
		slPct = pl.slOverride
	}

	return Plan{
		MarketID:      mkt.ID,
		Question:      mkt.Question,
		Side:          v.Side,
		Mode:          mode,
		Stake:         dec.Stake,
		FairValue:     v.FairValue,
		Edge:          edge,
		Confidence:    v.Confidence,
		TakeProfitPct: tpPct,
		StopLossPct:   slPct,
		Deadline:      deadline,
		CheckInterval: checkEvery,
		Reasoning: fmt.Sprintf("[%s] edge=%s%% conf=%.2f days_left=%d",
			mode, edge.Mul(decimal.NewFromInt(100)).Round(1), v.Confidence, days),
	}, nil
}

func classify(edge decimal.Decimal, confidence float64, daysLeft int) portfolio.Mode {
	e, _ := edge.Float64()

	if e > 0.20 && confidence >= 0.75 {
		return portfolio.ModeConviction
	}
	if e > 0.15 && confidence >= 0.70 && daysLeft <= 7 {
		return portfolio.ModeScalp
	}
	return portfolio.ModeSwing
}
