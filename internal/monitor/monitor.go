package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/analysis"
	"polyagent/internal/executor"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

// Recorder persists position changes. Failures are logged, not fatal; the
// ledger stays authoritative.
type Recorder interface {
	RecordClose(ctx context.Context, pos portfolio.Position) error
	RecordUpdate(ctx context.Context, pos portfolio.Position) error
}

// Events receives close notifications for operator channels.
type Events interface {
	PositionClosed(pos portfolio.Position)
}

// Monitor re-checks every open position against its exit contract on each
// pass. A close that fails leaves the position open and is retried on the
// next pass, never dropped.
type Monitor struct {
	ledger  *portfolio.Ledger
	exec    executor.Executor
	prices  market.PriceSource
	analyst analysis.Provider // optional exit second opinion
	rec     Recorder          // optional
	events  Events            // optional

	askEvery time.Duration
	nowFn    func() time.Time

	mu      sync.Mutex
	lastAsk map[string]time.Time
}

func New(ledger *portfolio.Ledger, exec executor.Executor, prices market.PriceSource) *Monitor {
	return &Monitor{
		ledger:   ledger,
		exec:     exec,
		prices:   prices,
		askEvery: time.Hour,
		nowFn:    time.Now,
		lastAsk:  make(map[string]time.Time),
	}
}

func (m *Monitor) WithAnalyst(p analysis.Provider) *Monitor { m.analyst = p; return m }
func (m *Monitor) WithRecorder(r Recorder) *Monitor         { m.rec = r; return m }
func (m *Monitor) WithEvents(e Events) *Monitor             { m.events = e; return m }

var (
	resolvedHigh = decimal.RequireFromString("0.99")
	resolvedLow  = decimal.RequireFromString("0.01")
	captureRatio = decimal.RequireFromString("0.60")
	valveDraw    = decimal.RequireFromString("-0.30")
)

// CheckAll runs one monitoring pass over all open positions.
func (m *Monitor) CheckAll(ctx context.Context) {
	view := m.ledger.Snapshot()
	for _, pos := range view.OpenPositions {
		if ctx.Err() != nil {
			return
		}
		m.checkOne(ctx, pos)
	}
}

// CloseAll liquidates every open position at the current mark. It is the
// graceful-shutdown path for paper mode; a position whose price cannot be
// fetched is closed at its entry price.
func (m *Monitor) CloseAll(ctx context.Context, reason portfolio.ExitReason) {
	view := m.ledger.Snapshot()
	for _, pos := range view.OpenPositions {
		mark := pos.EntryPrice
		if quote, err := m.prices.MidPrice(ctx, pos.TokenID); err == nil {
			mark = quote.Mid
		}
		m.close(ctx, pos, mark, reason)
	}
}

func (m *Monitor) checkOne(ctx context.Context, pos portfolio.Position) {
	quote, err := m.prices.MidPrice(ctx, pos.TokenID)
	if err != nil {
		logger.Warnf("price check %s: %v", pos.MarketID, err)
		return
	}
	price := quote.Mid

	reason, ok := m.decide(ctx, pos, price)
	if !ok {
		return
	}
	m.close(ctx, pos, price, reason)
}

// decide applies the exit rules in a fixed order. The stop loss is checked
// before the take profit so that a gap crossing both levels between passes
// protects capital rather than booking the win.
func (m *Monitor) decide(ctx context.Context, pos portfolio.Position, price decimal.Decimal) (portfolio.ExitReason, bool) {
	now := m.nowFn()

	if price.GreaterThanOrEqual(resolvedHigh) || price.LessThanOrEqual(resolvedLow) {
		return portfolio.ExitResolved, true
	}
	if pos.StopLoss.IsPositive() && price.LessThanOrEqual(pos.StopLoss) {
		return portfolio.ExitStopLoss, true
	}
	if pos.TakeProfit.IsPositive() && price.GreaterThanOrEqual(pos.TakeProfit) {
		return portfolio.ExitTakeProfit, true
	}
	if pos.Mode == portfolio.ModeSwing && m.edgeCaptured(pos, price) {
		return portfolio.ExitEdgeCaptured, true
	}
	if !pos.Deadline.IsZero() && !now.Before(pos.Deadline) {
		return portfolio.ExitTimeLimit, true
	}
	if pos.Mode == portfolio.ModeConviction && m.valveTripped(pos, price) {
		return portfolio.ExitSafetyValve, true
	}
	if m.analyst != nil && m.shouldAsk(pos.ID, now) {
		rec, err := m.analyst.ExitOpinion(ctx, exitQuery(pos, price))
		if err != nil {
			logger.Warnf("exit opinion %s: %v", pos.MarketID, err)
		} else if rec.ShouldExit {
			logger.Infof("exit opinion on %s: %s", pos.MarketID, rec.Reasoning)
			return portfolio.ExitAIJudgment, true
		}
	}
	return "", false
}

// edgeCaptured fires once the price has travelled 60% of the way from the
// entry to the provider's fair value.
func (m *Monitor) edgeCaptured(pos portfolio.Position, price decimal.Decimal) bool {
	if pos.FairValue.IsZero() {
		return false
	}
	total := pos.FairValue.Sub(pos.EntryPrice)
	if total.IsZero() {
		return false
	}
	captured := price.Sub(pos.EntryPrice).Div(total)
	return captured.GreaterThanOrEqual(captureRatio)
}

// valveTripped bails out of a conviction hold that is both deep underwater
// and no longer believed in.
func (m *Monitor) valveTripped(pos portfolio.Position, price decimal.Decimal) bool {
	if pos.Stake.IsZero() {
		return false
	}
	unrealized := price.Sub(pos.EntryPrice).Mul(pos.Shares)
	drawPct := unrealized.Div(pos.Stake)
	return drawPct.LessThan(valveDraw) && pos.Confidence < 0.70
}

func (m *Monitor) shouldAsk(id string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastAsk[id]; ok && now.Sub(last) < m.askEvery {
		return false
	}
	m.lastAsk[id] = now
	return true
}

func (m *Monitor) close(ctx context.Context, pos portfolio.Position, mark decimal.Decimal, reason portfolio.ExitReason) {
	fill, err := m.exec.Close(ctx, pos, mark, reason)
	if err != nil {
		logger.Warnf("close %s (%s) failed, retrying next pass: %v", pos.MarketID, reason, err)
		return
	}

	sold := fill.Shares
	if sold.IsZero() || sold.GreaterThan(pos.Shares) {
		sold = pos.Shares
	}
	pnl := fill.Price.Sub(pos.EntryPrice).Mul(sold)

	// A live order can time out with only part of the size matched. Settle
	// the sold shares and leave the rest open for the next pass.
	if sold.LessThan(pos.Shares) {
		remaining, err := m.ledger.CommitReduce(pos.ID, sold, fill.Price, fill.Fees, pnl)
		if err != nil {
			logger.Errorf("commit partial close %s: %v", pos.ID, err)
			return
		}
		logger.Infof("partially closed %s [%s] %s sold=%s of %s shares, pnl=$%s",
			pos.MarketID, pos.Mode, reason, sold, pos.Shares, pnl.Round(2))
		if m.rec != nil {
			if err := m.rec.RecordUpdate(ctx, remaining); err != nil {
				logger.Warnf("persist position %s: %v", pos.ID, err)
			}
		}
		return
	}

	closed, err := m.ledger.CommitClose(pos.ID, fill.Price, fill.Fees, pnl, reason)
	if err != nil {
		logger.Errorf("commit close %s: %v", pos.ID, err)
		return
	}
	closed.RawExitPrice = fill.RawPrice

	logger.Infof("closed %s [%s] %s entry=%s exit=%s pnl=$%s",
		pos.MarketID, pos.Mode, reason, pos.EntryPrice, fill.Price, pnl.Round(2))

	m.mu.Lock()
	delete(m.lastAsk, pos.ID)
	m.mu.Unlock()

	if m.rec != nil {
		if err := m.rec.RecordClose(ctx, closed); err != nil {
			logger.Warnf("persist close %s: %v", pos.ID, err)
		}
	}
	if m.events != nil {
		m.events.PositionClosed(closed)
	}
}

func exitQuery(pos portfolio.Position, price decimal.Decimal) analysis.ExitQuery {
	return analysis.ExitQuery{
		MarketID:     pos.MarketID,
		Question:     pos.Question,
		Side:         pos.Side,
		Mode:         string(pos.Mode),
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: price,
		FairValue:    pos.FairValue,
		Confidence:   pos.Confidence,
		OpenedAt:     pos.OpenedAt,
		Deadline:     pos.Deadline,
	}
}
