package analysis

import (
	"context"

	"github.com/shopspring/decimal"

	"polyagent/internal/market"
)

var (
	one  = decimal.NewFromInt(1)
	half = decimal.NewFromFloat(0.5)
)

// Scout is the rule-based provider variant: no network, fully deterministic.
// It corrects for the favourite-longshot bias (extreme prices tend to be
// slightly too extreme) and grades confidence from liquidity. It exists so
// the engine runs end to end without any LLM and as the fixture provider in
// tests.
type Scout struct {
	// MinEdge below which the scout reports SKIP outright.
	MinEdge decimal.Decimal
}

func NewScout(minEdge float64) *Scout {
	return &Scout{MinEdge: decimal.NewFromFloat(minEdge)}
}

func (s *Scout) Research(_ context.Context, m market.Market) (Verdict, error) {
	fair := longshotCorrected(m.YesPrice)
	edge := fair.Sub(m.YesPrice).Abs()

	v := Verdict{
		MarketID:  m.ID,
		Side:      market.SideSkip,
		FairValue: fair,
		Edge:      edge,
		Category:  m.Category,
		Model:     "scout-v1",
	}
	if edge.LessThan(s.MinEdge) {
		v.Reasoning = "edge below scout threshold"
		return v, nil
	}

	if fair.GreaterThan(m.YesPrice) {
		v.Side = market.SideYes
	} else {
		v.Side = market.SideNo
	}
	v.Confidence = confidenceFrom(m)
	v.Reasoning = "longshot-bias correction"
	return v, nil
}

// ExitOpinion recommends closing only when the mark has converged on the
// recorded fair value, i.e. the thesis has played out.
func (s *Scout) ExitOpinion(_ context.Context, q ExitQuery) (ExitRecommendation, error) {
	if q.FairValue.IsZero() || q.CurrentPrice.IsZero() {
		return ExitRecommendation{}, nil
	}
	remaining := q.FairValue.Sub(q.CurrentPrice).Abs()
	if remaining.LessThanOrEqual(decimal.NewFromFloat(0.02)) {
		return ExitRecommendation{
			ShouldExit: true,
			Confidence: 0.7,
			Reasoning:  "mark has converged on fair value",
		}, nil
	}
	return ExitRecommendation{}, nil
}

// longshotCorrected nudges the implied probability toward 0.5: a market at
// 0.10 is treated as slightly underpriced, one at 0.90 slightly overpriced.
func longshotCorrected(price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(one) {
		return price
	}
	shift := price.Sub(half).Mul(decimal.NewFromFloat(0.08))
	fair := price.Sub(shift)
	if fair.LessThan(decimal.NewFromFloat(0.01)) {
		fair = decimal.NewFromFloat(0.01)
	}
	if fair.GreaterThan(decimal.NewFromFloat(0.99)) {
		fair = decimal.NewFromFloat(0.99)
	}
	return fair
}

func confidenceFrom(m market.Market) float64 {
	// Confidence grows with liquidity; thin books get the floor.
	switch {
	case m.Liquidity.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return 0.75
	case m.Liquidity.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return 0.68
	case m.Liquidity.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return 0.62
	default:
		return 0.55
	}
}
