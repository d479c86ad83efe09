package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

// Decision is the risk manager's verdict on one candidate trade.
type Decision struct {
	Approved    bool
	Stake       decimal.Decimal
	Reason      string
	Adjustments []string
	Kelly       KellyResult
	LossAction  LossAction
}

func rejected(action LossAction, format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...), Stake: decimal.Zero, LossAction: action}
}

// Manager applies the admission gates and sizes approved trades. It is
// stateless; all portfolio state arrives in the View snapshot.
type Manager struct {
	minEdge       decimal.Decimal
	minConfidence decimal.Decimal
	maxEdgeSanity decimal.Decimal
	maxSpread     decimal.Decimal
	killThreshold decimal.Decimal
	kellyFraction decimal.Decimal
	maxPct        decimal.Decimal
	bufferMult    decimal.Decimal
	minStake      decimal.Decimal
	maxOpen       int

	confScaleKnee decimal.Decimal
}

func NewManager(cfg config.TradingConfig) *Manager {
	return &Manager{
		minEdge:       decimal.NewFromFloat(cfg.MinEdge),
		minConfidence: decimal.NewFromFloat(cfg.MinConfidence),
		maxEdgeSanity: decimal.NewFromFloat(cfg.MaxEdgeSanity),
		maxSpread:     decimal.NewFromFloat(cfg.MaxSpread),
		killThreshold: decimal.NewFromFloat(cfg.KillThreshold),
		kellyFraction: decimal.NewFromFloat(cfg.KellyFraction),
		maxPct:        decimal.NewFromFloat(cfg.MaxPositionPct),
		bufferMult:    decimal.NewFromFloat(cfg.SurvivalBufferMult),
		minStake:      decimal.NewFromFloat(cfg.MinStakeUSD),
		maxOpen:       cfg.MaxOpenPositions,
		confScaleKnee: decimal.RequireFromString("0.80"),
	}
}

// Evaluate runs the gate sequence and, if every gate passes, the fractional
// Kelly sizing. Gates fire in a fixed order so rejection reasons are stable:
// skip side, pause, kill threshold, loss ladder, reserve, confidence, edge
// floor, edge sanity cap, spread, position limit, then sizing.
func (m *Manager) Evaluate(v analysis.Verdict, mkt market.Market, view portfolio.View) Decision {
	action := CheckConsecutiveLosses(view.ConsecutiveLosses)

	if v.Side == market.SideSkip {
		return rejected(action, "side is SKIP")
	}
	if view.Paused {
		return rejected(action, "portfolio paused after %d consecutive losses", view.ConsecutiveLosses)
	}
	balance := view.Cash
	if balance.LessThan(m.killThreshold) {
		return rejected(action, "balance %s below kill threshold %s", balance, m.killThreshold)
	}
	switch action {
	case ActionPause:
		return rejected(action, "loss ladder: pause at %d consecutive losses", view.ConsecutiveLosses)
	case ActionSkipCycle:
		return rejected(action, "loss ladder: skipping cycle after %d consecutive losses", view.ConsecutiveLosses)
	}
	if view.Available.LessThanOrEqual(decimal.Zero) {
		return rejected(action, "no funds available above reserve")
	}

	confidence := decimal.NewFromFloat(v.Confidence)
	if confidence.LessThan(m.minConfidence) {
		return rejected(action, "confidence %s below minimum %s", confidence, m.minConfidence)
	}

	yesPrice := mkt.PriceFor(market.SideYes)
	edge := v.FairValue.Sub(yesPrice).Abs()
	if edge.LessThan(m.minEdge) {
		return rejected(action, "edge %s below minimum %s", edge, m.minEdge)
	}
	if edge.GreaterThan(m.maxEdgeSanity) {
		return rejected(action, "edge %s above sanity cap %s, likely calibration error", edge, m.maxEdgeSanity)
	}
	if spread := mkt.Spread(); spread.GreaterThan(m.maxSpread) {
		return rejected(action, "spread %s above maximum %s", spread, m.maxSpread)
	}
	if view.OpenCount() >= m.maxOpen {
		return rejected(action, "open positions %d at limit %d", view.OpenCount(), m.maxOpen)
	}

	kf, maxPct, dead := SurvivalAdjust(balance, m.killThreshold, m.bufferMult, m.kellyFraction, m.maxPct)
	if dead {
		return rejected(action, "balance %s at or below kill threshold", balance)
	}
	var adjustments []string
	if kf.LessThan(m.kellyFraction) {
		adjustments = append(adjustments, fmt.Sprintf("survival mode: kelly fraction %s, max pct %s", kf, maxPct))
	}
	maxPct = GrowthScale(maxPct, balance, view.InitialBalance)

	kelly := KellyBet(view.Available, confidence, yesPrice, v.Side, maxPct, kf)
	if kelly.Stake.LessThanOrEqual(decimal.Zero) {
		return rejected(action, "kelly stake is zero")
	}

	stake := kelly.Stake
	if confidence.LessThan(m.confScaleKnee) {
		scale := confidence.Div(m.confScaleKnee)
		stake = stake.Mul(scale).Round(2)
		adjustments = append(adjustments, fmt.Sprintf("confidence scale %s", scale.Round(2)))
	}
	if action == ActionReduceSize {
		stake = stake.Mul(half).Round(2)
		adjustments = append(adjustments, "loss ladder: stake halved")
	}
	if stake.GreaterThan(view.Available) {
		stake = view.Available.Round(2)
	}
	if stake.LessThan(m.minStake) {
		return rejected(action, "stake %s below minimum %s", stake, m.minStake)
	}

	logger.Infof("risk approved $%s (kelly=%s%% risk=%s ev=$%s)",
		stake, kelly.AdjustedKelly.Mul(decimal.NewFromInt(100)).Round(2), kelly.RiskLevel, kelly.ExpectedValue)

	return Decision{
		Approved:    true,
		Stake:       stake,
		Reason:      fmt.Sprintf("approved: $%s (%s risk)", stake, kelly.RiskLevel),
		Adjustments: adjustments,
		Kelly:       kelly,
		LossAction:  action,
	}
}
