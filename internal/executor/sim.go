package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/config"
	"polyagent/internal/logger"
	"polyagent/internal/portfolio"
)

// Sim is the paper-trading executor. It models the frictions that make
// paper results honest: gas fees, slippage growing with order size and
// spread, market impact on large orders, random rejections and partial
// fills, and a platform fee on profitable closes. All randomness flows
// from one seeded source so tests can pin outcomes.
type Sim struct {
	cfg config.SimConfig

	gasMin        decimal.Decimal
	gasMax        decimal.Decimal
	platformFee   decimal.Decimal
	takerFee      decimal.Decimal
	baseSlippage  decimal.Decimal
	maxSlippage   decimal.Decimal
	sizePenalty   decimal.Decimal
	sizeThreshold decimal.Decimal
	minLiquidity  decimal.Decimal
	impactAt      decimal.Decimal
	impactPerUSD  decimal.Decimal

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSim(cfg config.SimConfig) *Sim {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:           cfg,
		gasMin:        decimal.NewFromFloat(cfg.GasFeeMin),
		gasMax:        decimal.NewFromFloat(cfg.GasFeeMax),
		platformFee:   decimal.NewFromFloat(cfg.PlatformFeePct),
		takerFee:      decimal.NewFromFloat(cfg.TakerFeePct),
		baseSlippage:  decimal.NewFromFloat(cfg.BaseSlippagePct),
		maxSlippage:   decimal.NewFromFloat(cfg.MaxSlippagePct),
		sizePenalty:   decimal.NewFromFloat(cfg.SizePenaltyPct),
		sizeThreshold: decimal.NewFromFloat(cfg.SizePenaltyThreshold),
		minLiquidity:  decimal.NewFromFloat(cfg.MinLiquidityVolume),
		impactAt:      decimal.NewFromFloat(cfg.ImpactThreshold),
		impactPerUSD:  decimal.NewFromFloat(cfg.ImpactPerDollarPct),
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (s *Sim) Name() string { return "sim" }

var (
	one      = decimal.NewFromInt(1)
	maxPrice = decimal.RequireFromString("0.99")
	minPrice = decimal.RequireFromString("0.01")
)

func (s *Sim) Open(ctx context.Context, intent Intent) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, newError(KindTimeout, "open", intent.MarketID, "context done", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stake := intent.Stake

	if s.cfg.FillsEnabled {
		roll := s.rng.Float64()
		if roll < s.cfg.RejectProbability {
			return Fill{}, newError(KindRejected, "open", intent.MarketID, "simulated venue rejection", nil)
		}
	}

	partial := false
	if s.cfg.FillsEnabled {
		partialProb := s.cfg.PartialFillProb
		if intent.Volume.IsPositive() && intent.Volume.LessThan(s.minLiquidity) {
			partialProb *= 2
		}
		if s.rng.Float64() < partialProb {
			// 50-90% of the requested size.
			pct := 0.50 + s.rng.Float64()*0.40
			stake = stake.Mul(decimal.NewFromFloat(pct)).Round(4)
			partial = true
		}
	}

	gas := decimal.Zero
	if s.cfg.FeesEnabled {
		gas = s.randomGas()
	}
	// Fees come out of the reserved stake so the fill never overspends.
	budget := stake
	stake = stake.Sub(gas)
	taker := decimal.Zero
	if s.cfg.FeesEnabled && s.takerFee.IsPositive() {
		stake = stake.Div(one.Add(s.takerFee)).Round(4)
		taker = stake.Mul(s.takerFee).Round(4)
		// Rounding both parts up can overshoot by a fraction of a cent.
		if over := stake.Add(taker).Add(gas).Sub(budget); over.IsPositive() {
			stake = stake.Sub(over)
		}
	}
	if stake.LessThanOrEqual(decimal.Zero) {
		return Fill{}, newError(KindLiquidity, "open", intent.MarketID, "stake too small to cover fees", nil)
	}

	adjustment := decimal.Zero
	if s.cfg.SlippageEnabled {
		adjustment = s.slippagePct(stake, intent.Spread)
	}
	if s.cfg.ImpactEnabled {
		adjustment = adjustment.Add(s.impactPct(stake))
	}
	// Buying is always the worse fill.
	price := intent.Price.Mul(one.Add(adjustment))
	if price.GreaterThan(maxPrice) {
		price = maxPrice
	}

	shares := stake.Div(price).Round(4)
	if partial {
		logger.Infof("sim partial fill: $%s of $%s on %s", stake, intent.Stake, intent.MarketID)
	}

	return Fill{
		RawPrice: intent.Price,
		Price:    price,
		Shares:   shares,
		Stake:    stake,
		Fees:     gas.Add(taker),
		Partial:  partial,
	}, nil
}

// Close always fills. Exits see slippage in the unfavorable direction and
// pay gas plus a platform fee on the profitable part.
func (s *Sim) Close(ctx context.Context, pos portfolio.Position, markPrice decimal.Decimal, reason portfolio.ExitReason) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, newError(KindTimeout, "close", pos.MarketID, "context done", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	price := markPrice
	if s.cfg.SlippageEnabled {
		// Book shape at exit is unknown, assume a 3% spread.
		slip := s.slippagePct(pos.Stake, decimal.RequireFromString("0.03"))
		price = markPrice.Mul(one.Sub(slip))
	}
	if price.LessThan(minPrice) {
		price = minPrice
	}

	gross := price.Sub(pos.EntryPrice).Mul(pos.Shares)

	fees := decimal.Zero
	if s.cfg.FeesEnabled {
		fees = s.randomGas()
		if s.takerFee.IsPositive() {
			fees = fees.Add(price.Mul(pos.Shares).Mul(s.takerFee).Round(4))
		}
		if gross.IsPositive() {
			fees = fees.Add(gross.Mul(s.platformFee).Round(4))
		}
	}

	return Fill{
		RawPrice: markPrice,
		Price:    price,
		Shares:   pos.Shares,
		Fees:     fees,
	}, nil
}

func (s *Sim) randomGas() decimal.Decimal {
	if s.gasMin.GreaterThanOrEqual(s.gasMax) {
		return s.gasMin
	}
	span := s.gasMax.Sub(s.gasMin)
	return s.gasMin.Add(span.Mul(decimal.NewFromFloat(s.rng.Float64()))).Round(4)
}

// slippagePct scales the base slippage by spread tightness and adds a
// penalty per dollar above the size threshold, capped at max_slippage_pct.
func (s *Sim) slippagePct(stake, spread decimal.Decimal) decimal.Decimal {
	spreadFactor := one
	if spread.IsPositive() {
		spreadFactor = decimal.Min(spread.Div(decimal.RequireFromString("0.05")), decimal.NewFromInt(3))
	}
	slip := s.baseSlippage.Mul(spreadFactor)
	if stake.GreaterThan(s.sizeThreshold) {
		slip = slip.Add(s.sizePenalty.Mul(stake.Sub(s.sizeThreshold)))
	}
	if s.maxSlippage.IsPositive() && slip.GreaterThan(s.maxSlippage) {
		slip = s.maxSlippage
	}
	return slip
}

func (s *Sim) impactPct(stake decimal.Decimal) decimal.Decimal {
	if stake.LessThanOrEqual(s.impactAt) {
		return decimal.Zero
	}
	return s.impactPerUSD.Mul(stake.Sub(s.impactAt))
}

var _ Executor = (*Sim)(nil)

// Frictionless returns a sim with every friction switched off, for tests
// and dry runs where exact arithmetic matters more than realism.
func Frictionless() *Sim {
	return NewSim(config.SimConfig{Seed: 1})
}
