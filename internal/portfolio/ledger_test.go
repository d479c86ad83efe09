package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger() *Ledger {
	return NewLedger(d("30"), d("0.10"), 8)
}

func TestReserveRespectsStrategicReserve(t *testing.T) {
	l := newTestLedger()

	// 10% of $30 equity stays in cash, so at most $27 can be reserved.
	_, err := l.Reserve(d("27.01"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	h, err := l.Reserve(d("27"))
	require.NoError(t, err)
	assert.True(t, l.Snapshot().Available.IsZero())

	require.NoError(t, l.Release(h))
	assert.True(t, l.Snapshot().Cash.Equal(d("30")))
}

func TestHoldConsumedExactlyOnce(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("5"))
	require.NoError(t, err)

	pos := Position{MarketID: "m1", Stake: d("5")}
	require.NoError(t, l.CommitOpen(h, pos))

	// The hold is gone, neither path may fire again.
	assert.ErrorIs(t, l.CommitOpen(h, pos), ErrUnknownHold)
	assert.ErrorIs(t, l.Release(h), ErrUnknownHold)
}

func TestReleaseThenCommitRejected(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("5"))
	require.NoError(t, err)
	require.NoError(t, l.Release(h))
	assert.ErrorIs(t, l.CommitOpen(h, Position{Stake: d("5")}), ErrUnknownHold)
	assert.True(t, l.Snapshot().Cash.Equal(d("30")))
}

func TestConservationAcrossOpenAndClose(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("6"))
	require.NoError(t, err)

	require.NoError(t, l.CommitOpen(h, Position{
		ID:       "p1",
		MarketID: "m1",
		Stake:    d("5.90"),
		FeesPaid: d("0.10"),
	}))

	v := l.Snapshot()
	assert.True(t, v.Cash.Equal(d("24")), "cash %s", v.Cash)
	assert.Equal(t, 1, v.OpenCount())

	// Close at a $1.50 profit minus $0.12 platform fee.
	closed, err := l.CommitClose("p1", d("0.55"), d("0.12"), d("1.50"), ExitTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, ExitTakeProfit, closed.ExitReason)

	v = l.Snapshot()
	// 24 + (5.90 + 1.50 - 0.12)
	assert.True(t, v.Cash.Equal(d("31.28")), "cash %s", v.Cash)
	assert.Equal(t, 0, v.OpenCount())
	assert.Equal(t, 1, v.Wins)
}

func TestPartialFillRefundsRemainder(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("10"))
	require.NoError(t, err)

	// Only $4 of the $10 hold was filled.
	require.NoError(t, l.CommitOpen(h, Position{ID: "p1", Stake: d("3.95"), FeesPaid: d("0.05")}))

	v := l.Snapshot()
	assert.True(t, v.Cash.Equal(d("26")), "cash %s", v.Cash)
}

func TestCommitReduceLeavesRemainderOpen(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("6"))
	require.NoError(t, err)
	require.NoError(t, l.CommitOpen(h, Position{
		ID:         "p1",
		MarketID:   "m1",
		EntryPrice: d("0.50"),
		Stake:      d("6"),
		Shares:     d("12"),
	}))

	// Sold 9 of 12 shares at 0.55: pnl 0.45, stake share 4.50 back to cash.
	rem, err := l.CommitReduce("p1", d("9"), d("0.55"), d("0.05"), d("0.45"))
	require.NoError(t, err)
	assert.True(t, rem.Shares.Equal(d("3")), "shares %s", rem.Shares)
	assert.True(t, rem.Stake.Equal(d("1.5")), "stake %s", rem.Stake)
	assert.Equal(t, StatusOpen, rem.Status)

	v := l.Snapshot()
	// 24 + (4.50 + 0.45 - 0.05)
	assert.True(t, v.Cash.Equal(d("28.90")), "cash %s", v.Cash)
	assert.True(t, v.RealizedPnL.Equal(d("0.45")), "pnl %s", v.RealizedPnL)
	assert.Equal(t, 1, v.OpenCount())
	assert.Equal(t, 0, v.Wins)

	// Reducing by the full size or more is a close, not a reduce.
	_, err = l.CommitReduce("p1", d("3"), d("0.55"), decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// The final fill settles the rest and books the win once.
	_, err = l.CommitClose("p1", d("0.55"), decimal.Zero, d("0.15"), ExitTakeProfit)
	require.NoError(t, err)
	v = l.Snapshot()
	assert.True(t, v.Cash.Equal(d("30.55")), "cash %s", v.Cash)
	assert.Equal(t, 1, v.Wins)
	assert.Equal(t, 0, v.OpenCount())
}

func TestCommitOpenOverHoldKeepsHoldIntact(t *testing.T) {
	l := newTestLedger()

	h, err := l.Reserve(d("4"))
	require.NoError(t, err)

	err = l.CommitOpen(h, Position{Stake: d("4"), FeesPaid: d("0.10")})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// After the failure the caller can still release the funds.
	require.NoError(t, l.Release(h))
	assert.True(t, l.Snapshot().Cash.Equal(d("30")))
}

func TestHoldsCountTowardPositionLimit(t *testing.T) {
	l := NewLedger(d("100"), d("0"), 2)

	_, err := l.Reserve(d("1"))
	require.NoError(t, err)
	_, err = l.Reserve(d("1"))
	require.NoError(t, err)

	_, err = l.Reserve(d("1"))
	assert.ErrorIs(t, err, ErrPositionLimit)
}

func TestConsecutiveLossesPauseAndReset(t *testing.T) {
	l := NewLedger(d("100"), d("0"), 10)

	for i := 0; i < PauseThreshold; i++ {
		h, err := l.Reserve(d("2"))
		require.NoError(t, err)
		id := h.id
		require.NoError(t, l.CommitOpen(h, Position{ID: id, Stake: d("2")}))
		_, err = l.CommitClose(id, d("0.30"), decimal.Zero, d("-0.50"), ExitStopLoss)
		require.NoError(t, err)
	}

	v := l.Snapshot()
	assert.True(t, v.Paused)
	assert.Equal(t, PauseThreshold, v.ConsecutiveLosses)

	l.ResetPause()
	v = l.Snapshot()
	assert.False(t, v.Paused)
	assert.Equal(t, 0, v.ConsecutiveLosses)
}

func TestWinResetsLossStreak(t *testing.T) {
	l := NewLedger(d("100"), d("0"), 10)

	open := func(id string) {
		h, err := l.Reserve(d("2"))
		require.NoError(t, err)
		require.NoError(t, l.CommitOpen(h, Position{ID: id, Stake: d("2")}))
	}

	open("a")
	open("b")
	_, err := l.CommitClose("a", d("0.30"), decimal.Zero, d("-0.50"), ExitStopLoss)
	require.NoError(t, err)
	_, err = l.CommitClose("b", d("0.60"), decimal.Zero, d("0.80"), ExitTakeProfit)
	require.NoError(t, err)

	assert.Equal(t, 0, l.Snapshot().ConsecutiveLosses)
}

func TestProceedsFlooredAtZero(t *testing.T) {
	l := NewLedger(d("100"), d("0"), 10)

	h, err := l.Reserve(d("2"))
	require.NoError(t, err)
	require.NoError(t, l.CommitOpen(h, Position{ID: "p", Stake: d("2")}))

	// Total loss plus fees would go below zero without the floor.
	_, err = l.CommitClose("p", d("0.01"), d("0.05"), d("-2"), ExitStopLoss)
	require.NoError(t, err)
	assert.True(t, l.Snapshot().Cash.Equal(d("98")))
	assert.False(t, l.Corrupt())
}

func TestDrawdownTracking(t *testing.T) {
	l := NewLedger(d("100"), d("0"), 10)

	h, _ := l.Reserve(d("20"))
	require.NoError(t, l.CommitOpen(h, Position{ID: "p", Stake: d("20")}))
	_, err := l.CommitClose("p", d("0.10"), decimal.Zero, d("-20"), ExitStopLoss)
	require.NoError(t, err)

	v := l.Snapshot()
	assert.True(t, v.MaxDrawdown.Equal(d("0.2")), "drawdown %s", v.MaxDrawdown)
	assert.True(t, v.PeakBalance.Equal(d("100")))
}

func TestCloseUnknownPosition(t *testing.T) {
	l := newTestLedger()
	_, err := l.CommitClose("nope", d("0.5"), decimal.Zero, decimal.Zero, ExitAIJudgment)
	assert.ErrorIs(t, err, ErrNotFound)
}
