package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polyagent/internal/logger"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient available funds")
	ErrPositionLimit      = errors.New("open position limit reached")
	ErrUnknownHold        = errors.New("unknown or already consumed hold")
	ErrNotFound           = errors.New("position not found")
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// PauseThreshold is the consecutive-loss count that freezes new entries
// until an operator calls ResetPause.
const PauseThreshold = 5

// Hold is a capability token for reserved cash. It is consumed exactly once,
// by CommitOpen or Release.
type Hold struct {
	id     string
	Amount decimal.Decimal
}

// Ledger is the single source of truth for cash and positions. Every mutation
// goes through the two-phase reserve/commit protocol so that a crash between
// order placement and acknowledgement can never double-spend.
type Ledger struct {
	mu sync.Mutex

	cash       decimal.Decimal
	initial    decimal.Decimal
	reservePct decimal.Decimal
	maxOpen    int

	positions map[string]*Position
	holds     map[string]decimal.Decimal

	consecutiveLosses int
	wins              int
	losses            int
	paused            bool

	peak        decimal.Decimal
	maxDrawdown decimal.Decimal
	realized    decimal.Decimal

	corrupt bool
	nowFn   func() time.Time
}

func NewLedger(initialBalance, reservePct decimal.Decimal, maxOpen int) *Ledger {
	return &Ledger{
		cash:       initialBalance,
		initial:    initialBalance,
		reservePct: reservePct,
		maxOpen:    maxOpen,
		positions:  make(map[string]*Position),
		holds:      make(map[string]decimal.Decimal),
		peak:       initialBalance,
		nowFn:      time.Now,
	}
}

// Restore rehydrates state persisted by the store. Open positions re-enter
// monitoring, counters pick up where the previous run stopped.
func (l *Ledger) Restore(cash decimal.Decimal, open []Position, consecutiveLosses, wins, losses int, paused bool, peak, maxDrawdown, realized decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = cash
	for i := range open {
		p := open[i]
		l.positions[p.ID] = &p
	}
	l.consecutiveLosses = consecutiveLosses
	l.wins = wins
	l.losses = losses
	l.paused = paused
	if peak.GreaterThan(l.peak) {
		l.peak = peak
	}
	l.maxDrawdown = maxDrawdown
	l.realized = realized
}

// Reserve debits amount from cash and returns a hold for it. The strategic
// reserve (reservePct of total equity in cash terms) is never lent out.
func (l *Ledger) Reserve(amount decimal.Decimal) (Hold, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt {
		return Hold{}, ErrInvariantViolation
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return Hold{}, fmt.Errorf("reserve amount %s: %w", amount, ErrInsufficientFunds)
	}
	if len(l.positions)+len(l.holds) >= l.maxOpen {
		return Hold{}, ErrPositionLimit
	}
	if amount.GreaterThan(l.availableLocked()) {
		return Hold{}, fmt.Errorf("reserve %s exceeds available %s: %w", amount, l.availableLocked(), ErrInsufficientFunds)
	}

	h := Hold{id: uuid.NewString(), Amount: amount}
	l.cash = l.cash.Sub(amount)
	l.holds[h.id] = amount
	l.checkLocked()
	return h, nil
}

// Release returns a hold's funds to cash. Used when execution is rejected
// or fails before a position exists.
func (l *Ledger) Release(h Hold) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.holds[h.id]
	if !ok {
		return ErrUnknownHold
	}
	delete(l.holds, h.id)
	l.cash = l.cash.Add(amount)
	l.checkLocked()
	return nil
}

// CommitOpen converts a hold into an open position. The fill's total cost
// (stake plus fees) must fit within the hold; any remainder from a partial
// fill is credited back immediately. The hold is consumed either way.
func (l *Ledger) CommitOpen(h Hold, pos Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.holds[h.id]
	if !ok {
		return ErrUnknownHold
	}
	total := pos.Stake.Add(pos.FeesPaid)
	if total.GreaterThan(amount) {
		// Hold stays intact so the caller can Release it.
		return fmt.Errorf("fill cost %s exceeds reserved %s: %w", total, amount, ErrInsufficientFunds)
	}
	delete(l.holds, h.id)
	if refund := amount.Sub(total); refund.IsPositive() {
		l.cash = l.cash.Add(refund)
	}

	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = l.nowFn()
	}
	pos.Status = StatusOpen
	p := pos
	l.positions[p.ID] = &p
	l.checkLocked()
	return nil
}

// CommitClose settles an open position. Proceeds (stake + pnl - fees,
// floored at zero) return to cash and the loss ladder counters update.
// At PauseThreshold consecutive losses the ledger pauses new entries.
func (l *Ledger) CommitClose(id string, exitPrice, fees, pnl decimal.Decimal, reason ExitReason) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok || p.Status != StatusOpen {
		return Position{}, ErrNotFound
	}

	proceeds := p.Stake.Add(pnl).Sub(fees)
	if proceeds.IsNegative() {
		proceeds = decimal.Zero
	}
	l.cash = l.cash.Add(proceeds)

	p.Status = StatusClosed
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.PnL = pnl
	p.FeesPaid = p.FeesPaid.Add(fees)
	p.ClosedAt = l.nowFn()
	delete(l.positions, id)

	l.realized = l.realized.Add(pnl)
	if pnl.IsPositive() {
		l.wins++
		l.consecutiveLosses = 0
	} else {
		l.losses++
		l.consecutiveLosses++
		if l.consecutiveLosses >= PauseThreshold && !l.paused {
			l.paused = true
			logger.Warnf("portfolio paused after %d consecutive losses", l.consecutiveLosses)
		}
	}

	if l.cash.GreaterThan(l.peak) {
		l.peak = l.cash
	} else if l.peak.IsPositive() {
		dd := l.peak.Sub(l.cash).Div(l.peak)
		if dd.GreaterThan(l.maxDrawdown) {
			l.maxDrawdown = dd
		}
	}

	l.checkLocked()
	return *p, nil
}

// CommitReduce settles a partial close. soldShares leave the position at
// exitPrice and their share of the stake returns to cash with the pnl; the
// remainder stays open for the monitor to retry. Streak counters and
// drawdown only move on the final fill.
func (l *Ledger) CommitReduce(id string, soldShares, exitPrice, fees, pnl decimal.Decimal) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok || p.Status != StatusOpen {
		return Position{}, ErrNotFound
	}
	if soldShares.LessThanOrEqual(decimal.Zero) || soldShares.GreaterThanOrEqual(p.Shares) {
		return Position{}, fmt.Errorf("reduce by %s of %s shares: %w", soldShares, p.Shares, ErrInvariantViolation)
	}

	stakeSold := p.Stake.Mul(soldShares).Div(p.Shares).Round(4)
	proceeds := stakeSold.Add(pnl).Sub(fees)
	if proceeds.IsNegative() {
		proceeds = decimal.Zero
	}
	l.cash = l.cash.Add(proceeds)

	p.Shares = p.Shares.Sub(soldShares)
	p.Stake = p.Stake.Sub(stakeSold)
	p.FeesPaid = p.FeesPaid.Add(fees)
	l.realized = l.realized.Add(pnl)

	l.checkLocked()
	return *p, nil
}

// ResetPause clears the consecutive-loss pause. Operator action only.
func (l *Ledger) ResetPause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		logger.Infof("portfolio pause cleared (was %d consecutive losses)", l.consecutiveLosses)
	}
	l.paused = false
	l.consecutiveLosses = 0
}

// Snapshot returns a consistent copy of the portfolio.
func (l *Ledger) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		open = append(open, *p)
	}
	return View{
		Cash:              l.cash,
		Available:         l.availableLocked(),
		InitialBalance:    l.initial,
		PeakBalance:       l.peak,
		MaxDrawdown:       l.maxDrawdown,
		RealizedPnL:       l.realized,
		OpenPositions:     open,
		ConsecutiveLosses: l.consecutiveLosses,
		Wins:              l.wins,
		Losses:            l.losses,
		Paused:            l.paused,
	}
}

// Position returns a copy of one open position.
func (l *Ledger) Position(id string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (l *Ledger) Corrupt() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.corrupt
}

// availableLocked is cash minus the strategic reserve. The reserve is a
// fraction of total equity (cash + deployed capital), kept in cash.
func (l *Ledger) availableLocked() decimal.Decimal {
	deployed := decimal.Zero
	for _, p := range l.positions {
		deployed = deployed.Add(p.Stake)
	}
	for _, amt := range l.holds {
		deployed = deployed.Add(amt)
	}
	equity := l.cash.Add(deployed)
	avail := l.cash.Sub(equity.Mul(l.reservePct))
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

func (l *Ledger) checkLocked() {
	if l.cash.IsNegative() && !l.corrupt {
		l.corrupt = true
		logger.Errorf("ledger cash went negative (%s), freezing new trades", l.cash)
	}
}
