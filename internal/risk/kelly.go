package risk

import (
	"github.com/shopspring/decimal"

	"polyagent/internal/market"
)

var (
	one  = decimal.NewFromInt(1)
	half = decimal.RequireFromString("0.5")
)

// KellyResult carries the intermediate sizing numbers for logging and
// the notifier's trade summary.
type KellyResult struct {
	FullKelly     decimal.Decimal
	AdjustedKelly decimal.Decimal
	BetFraction   decimal.Decimal
	Stake         decimal.Decimal
	ExpectedValue decimal.Decimal
	RiskLevel     string
}

// KellyBet sizes a bet with fractional Kelly. For binary shares bought at
// price P the net odds are b = (1-P)/P, and f* = (p*b - q)/b with
// p the win probability. The stake is bankroll * min(f* * kellyFraction,
// maxPct), rounded to cents.
func KellyBet(bankroll, winProb, yesPrice decimal.Decimal, side market.Side, maxPct, kellyFraction decimal.Decimal) KellyResult {
	res := KellyResult{RiskLevel: "NONE"}

	p := winProb
	price := yesPrice
	if side == market.SideNo {
		price = one.Sub(yesPrice)
	}
	if side == market.SideSkip {
		return res
	}
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(one) {
		return res
	}
	if p.LessThanOrEqual(decimal.Zero) || p.GreaterThanOrEqual(one) {
		return res
	}

	b := one.Sub(price).Div(price)
	q := one.Sub(p)

	kelly := p.Mul(b).Sub(q).Div(b)
	if kelly.LessThanOrEqual(decimal.Zero) {
		return res
	}
	if kelly.GreaterThan(one) {
		kelly = one
	}

	res.FullKelly = kelly
	res.AdjustedKelly = kelly.Mul(kellyFraction)

	res.BetFraction = decimal.Min(res.AdjustedKelly, maxPct)
	res.Stake = bankroll.Mul(res.BetFraction).Round(2)
	if res.Stake.GreaterThan(bankroll) {
		res.Stake = bankroll
	}

	switch {
	case res.BetFraction.LessThan(decimal.RequireFromString("0.02")):
		res.RiskLevel = "LOW"
	case res.BetFraction.LessThan(decimal.RequireFromString("0.03")):
		res.RiskLevel = "MEDIUM"
	default:
		res.RiskLevel = "HIGH"
	}

	profitIfWin := res.Stake.Mul(b)
	res.ExpectedValue = p.Mul(profitIfWin).Sub(q.Mul(res.Stake)).Round(4)
	return res
}

// GrowthScale widens the position cap as the bankroll outgrows its starting
// point: every doubling of equity adds 50% to the cap, bounded at 80%.
func GrowthScale(maxPct, balance, initialBalance decimal.Decimal) decimal.Decimal {
	if initialBalance.LessThanOrEqual(decimal.Zero) || balance.LessThanOrEqual(initialBalance) {
		return maxPct
	}
	growth := balance.Div(initialBalance)
	factor := one.Add(growth.Sub(one).Mul(half))
	scaled := maxPct.Mul(factor)
	cap := decimal.RequireFromString("0.80")
	if scaled.GreaterThan(cap) {
		return cap
	}
	return scaled
}

// SurvivalAdjust tightens sizing inputs when the balance nears the kill
// threshold. Inside the buffer zone (kill threshold times bufferMultiple)
// both the Kelly fraction and the position cap shrink linearly, to at most
// half their normal values, with a 1% floor on the cap. Returns dead=true
// at or below the kill threshold.
func SurvivalAdjust(balance, killThreshold, bufferMultiple, kellyFraction, maxPct decimal.Decimal) (adjKF, adjMaxPct decimal.Decimal, dead bool) {
	if balance.LessThanOrEqual(killThreshold) {
		return decimal.Zero, decimal.Zero, true
	}
	buffer := killThreshold.Mul(bufferMultiple)
	if balance.GreaterThanOrEqual(buffer) {
		return kellyFraction, maxPct, false
	}

	ratio := balance.Sub(killThreshold).Div(buffer.Sub(killThreshold))
	scale := ratio.Mul(half)
	adjKF = kellyFraction.Mul(scale)
	adjMaxPct = maxPct.Mul(scale)
	if floor := decimal.RequireFromString("0.01"); adjMaxPct.LessThan(floor) {
		adjMaxPct = floor
	}
	return adjKF, adjMaxPct, false
}
