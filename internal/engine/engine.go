package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/executor"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/notify"
	"polyagent/internal/planner"
	"polyagent/internal/portfolio"
	"polyagent/internal/risk"
	"polyagent/internal/store"
)

// researchParallelism bounds concurrent provider calls per cycle.
const researchParallelism = 4

// Engine runs the trade cycle: scan, research, admit, plan, execute,
// commit. Research fans out in parallel; everything that touches the
// ledger runs serially so admission checks see consistent state.
type Engine struct {
	cfg      config.Config
	ledger   *portfolio.Ledger
	riskMgr  *risk.Manager
	planner  *planner.Planner
	exec     executor.Executor
	provider analysis.Provider
	markets  market.Provider
	store    *store.Store // optional
	hub      *notify.Hub  // optional

	stopRequested func() bool
	nowFn         func() time.Time
}

func New(cfg config.Config, ledger *portfolio.Ledger, riskMgr *risk.Manager, pl *planner.Planner,
	exec executor.Executor, provider analysis.Provider, markets market.Provider) *Engine {
	return &Engine{
		cfg:           cfg,
		ledger:        ledger,
		riskMgr:       riskMgr,
		planner:       pl,
		exec:          exec,
		provider:      provider,
		markets:       markets,
		stopRequested: func() bool { return false },
		nowFn:         time.Now,
	}
}

func (e *Engine) WithStore(s *store.Store) *Engine     { e.store = s; return e }
func (e *Engine) WithHub(h *notify.Hub) *Engine        { e.hub = h; return e }
func (e *Engine) WithStopCheck(fn func() bool) *Engine { e.stopRequested = fn; return e }

type candidate struct {
	mkt     market.Market
	verdict analysis.Verdict
}

// RunCycle executes one full tick and returns its stats record.
func (e *Engine) RunCycle(ctx context.Context) store.CycleStats {
	stats := store.CycleStats{
		AgentID:   e.cfg.App.AgentID,
		StartedAt: e.nowFn(),
	}
	defer func() {
		stats.Duration = e.nowFn().Sub(stats.StartedAt)
		e.persistCycle(ctx, stats)
		logger.Infof("cycle done in %s: scanned=%d analyzed=%d traded=%d skipped=%d errors=%d",
			stats.Duration.Round(time.Millisecond), stats.Scanned, stats.Analyzed,
			stats.Traded, stats.Skipped, stats.Errors)
	}()

	markets, err := e.markets.Scan(ctx, e.cfg.Market.MaxMarketsScan)
	if err != nil {
		logger.Errorf("market scan: %v", err)
		stats.Errors++
		stats.Notes = fmt.Sprintf("scan failed: %v", err)
		return stats
	}
	stats.Scanned = len(markets)

	shortlist := e.shortlist(markets)
	verdicts := e.research(ctx, shortlist)
	stats.Analyzed = len(verdicts)

	for _, c := range verdicts {
		if ctx.Err() != nil || e.stopRequested() {
			stats.Notes = "stopped mid-cycle"
			break
		}
		outcome := e.admitAndExecute(ctx, c)
		switch outcome {
		case outcomeTraded:
			stats.Traded++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeError:
			stats.Errors++
		case outcomeHaltCycle:
			stats.Skipped += len(verdicts) - stats.Traded - stats.Skipped - stats.Errors
			e.afterCycle()
			return stats
		}
	}

	e.afterCycle()
	return stats
}

// shortlist drops markets the engine would never trade this tick: ones it
// already holds, ones missing outcome tokens, and dead books.
func (e *Engine) shortlist(markets []market.Market) []market.Market {
	held := make(map[string]bool)
	for _, p := range e.ledger.Snapshot().OpenPositions {
		held[p.MarketID] = true
	}

	max := e.cfg.Analysis.MaxCandidates
	out := make([]market.Market, 0, max)
	for _, m := range markets {
		if len(out) >= max {
			break
		}
		if held[m.ID] || len(m.Tokens) == 0 {
			continue
		}
		if m.YesPrice.LessThanOrEqual(priceFloor) || m.YesPrice.GreaterThanOrEqual(priceCeil) {
			continue
		}
		out = append(out, m)
	}
	return out
}

var (
	priceFloor = decimal.RequireFromString("0.03")
	priceCeil  = decimal.RequireFromString("0.97")
)

// research fans candidate analysis out with bounded parallelism. Provider
// failures skip the candidate; order is preserved for determinism.
func (e *Engine) research(ctx context.Context, markets []market.Market) []candidate {
	results := make([]*candidate, len(markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchParallelism)

	for i, m := range markets {
		g.Go(func() error {
			v, err := e.provider.Research(gctx, m)
			if err != nil {
				logger.Warnf("research %s: %v", m.ID, err)
				return nil
			}
			if v.Tradeable() {
				results[i] = &candidate{mkt: m, verdict: v}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]candidate, 0, len(markets))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

type outcome int

const (
	outcomeTraded outcome = iota
	outcomeSkipped
	outcomeError
	outcomeHaltCycle
)

func (e *Engine) admitAndExecute(ctx context.Context, c candidate) outcome {
	view := e.ledger.Snapshot()

	dec := e.riskMgr.Evaluate(c.verdict, c.mkt, view)
	if !dec.Approved {
		logger.Debugf("rejected %s: %s", c.mkt.ID, dec.Reason)
		if dec.LossAction == risk.ActionSkipCycle || dec.LossAction == risk.ActionPause || view.Paused {
			return outcomeHaltCycle
		}
		return outcomeSkipped
	}

	plan, err := e.planner.Plan(c.verdict, dec, c.mkt)
	if err != nil {
		logger.Debugf("no plan for %s: %v", c.mkt.ID, err)
		return outcomeSkipped
	}

	if err := e.execute(ctx, c, dec, plan); err != nil {
		if executor.KindOf(err) == executor.KindRejected || executor.KindOf(err) == executor.KindLiquidity {
			logger.Warnf("open %s not filled: %v", c.mkt.ID, err)
			return outcomeSkipped
		}
		logger.Errorf("execute %s: %v", c.mkt.ID, err)
		return outcomeError
	}
	return outcomeTraded
}

// execute runs the two-phase open: reserve, fill, commit. Any failure after
// the reserve releases the hold so no cash leaks.
func (e *Engine) execute(ctx context.Context, c candidate, dec risk.Decision, plan planner.Plan) error {
	token, ok := c.mkt.TokenFor(c.verdict.Side)
	if !ok {
		return fmt.Errorf("market %s has no %s token", c.mkt.ID, c.verdict.Side)
	}

	hold, err := e.ledger.Reserve(dec.Stake)
	if err != nil {
		return fmt.Errorf("reserve: %w", err)
	}

	fill, err := e.exec.Open(ctx, executor.Intent{
		MarketID: c.mkt.ID,
		Question: c.mkt.Question,
		TokenID:  token.TokenID,
		Side:     c.verdict.Side,
		Price:    c.mkt.PriceFor(c.verdict.Side),
		Stake:    dec.Stake,
		Volume:   c.mkt.Volume,
		Spread:   c.mkt.Spread(),
	})
	if err != nil {
		if relErr := e.ledger.Release(hold); relErr != nil {
			logger.Errorf("release hold after failed open: %v", relErr)
		}
		return err
	}

	tp, sl := plan.Levels(fill.Price)
	pos := portfolio.Position{
		OpenedAt:      e.nowFn(),
		MarketID:      c.mkt.ID,
		Question:      c.mkt.Question,
		TokenID:       token.TokenID,
		Side:          c.verdict.Side,
		Category:      c.verdict.Category,
		Mode:          plan.Mode,
		RawEntryPrice: fill.RawPrice,
		EntryPrice:    fill.Price,
		Stake:         fill.Stake,
		Shares:        fill.Shares,
		TakeProfit:    tp,
		StopLoss:      sl,
		Deadline:      plan.Deadline,
		FairValue:     c.verdict.FairValue,
		Confidence:    c.verdict.Confidence,
		FeesPaid:      fill.Fees,
	}

	if err := e.ledger.CommitOpen(hold, pos); err != nil {
		if relErr := e.ledger.Release(hold); relErr != nil {
			logger.Errorf("release hold after failed commit: %v", relErr)
		}
		return fmt.Errorf("commit open: %w", err)
	}

	opened := e.findOpened(c.mkt.ID)
	logger.Infof("opened %s [%s] %s @ %s stake=$%s tp=%s sl=%s",
		c.mkt.ID, plan.Mode, c.verdict.Side, fill.Price, fill.Stake, tp, sl)

	if e.store != nil {
		if err := e.store.SavePosition(ctx, opened); err != nil {
			logger.Warnf("persist open %s: %v", opened.ID, err)
		}
	}
	if e.hub != nil {
		e.hub.TradeOpened(opened)
	}
	return nil
}

// findOpened pulls the committed position back out for its assigned id.
func (e *Engine) findOpened(marketID string) portfolio.Position {
	for _, p := range e.ledger.Snapshot().OpenPositions {
		if p.MarketID == marketID {
			return p
		}
	}
	return portfolio.Position{MarketID: marketID}
}

// afterCycle persists a snapshot and fires balance alerts.
func (e *Engine) afterCycle() {
	view := e.ledger.Snapshot()
	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.SaveSnapshot(ctx, view); err != nil {
			logger.Warnf("persist snapshot: %v", err)
		}
	}
	if e.hub == nil {
		return
	}
	// Alert below 70% of the starting bankroll, well before the kill line.
	warn := view.InitialBalance.Mul(decimal.RequireFromString("0.70"))
	if view.Cash.LessThan(warn) {
		e.hub.LowBalanceAlert(view, decimal.NewFromFloat(e.cfg.Trading.KillThreshold).String())
	}
	if view.Paused {
		e.hub.PauseAlert(view)
	}
}

func (e *Engine) persistCycle(ctx context.Context, stats store.CycleStats) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveCycleStats(ctx, stats); err != nil {
		logger.Warnf("persist cycle stats: %v", err)
	}
}

// Report sends the periodic performance summary.
func (e *Engine) Report(ctx context.Context) {
	if e.hub == nil {
		return
	}
	var closed []portfolio.Position
	if e.store != nil {
		var err error
		closed, err = e.store.ClosedPositions(ctx, 10)
		if err != nil {
			logger.Warnf("load closed positions: %v", err)
		}
	}
	e.hub.Report(e.ledger.Snapshot(), closed)
}
