package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/market"
)

// Mode is the exit-strategy class assigned at planning time.
type Mode string

const (
	ModeScalp      Mode = "SCALP"
	ModeSwing      Mode = "SWING"
	ModeConviction Mode = "CONVICTION"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitAIJudgment   ExitReason = "ai_judgment"
	ExitEdgeCaptured ExitReason = "edge_captured"
	ExitSafetyValve  ExitReason = "safety_valve"
	ExitResolved     ExitReason = "market_resolved"
	ExitShutdown     ExitReason = "shutdown"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Position is one trade. It is created by the executor on open, owned by the
// monitoring flow while open, and mutated exactly once more on close.
type Position struct {
	ID       string
	OpenedAt time.Time

	MarketID string
	Question string
	TokenID  string
	Side     market.Side
	Category string
	Mode     Mode

	RawEntryPrice decimal.Decimal // mark before slippage
	EntryPrice    decimal.Decimal // filled price
	Stake         decimal.Decimal // capital at risk
	Shares        decimal.Decimal

	TakeProfit decimal.Decimal // zero = no TP
	StopLoss   decimal.Decimal // zero = no SL
	Deadline   time.Time       // zero = hold to resolution

	FairValue  decimal.Decimal // provider estimate at entry
	Confidence float64

	FeesPaid decimal.Decimal

	Status       Status
	ExitPrice    decimal.Decimal
	RawExitPrice decimal.Decimal // mark before exit slippage
	ExitReason   ExitReason
	PnL          decimal.Decimal
	ClosedAt     time.Time
}

// HoldingHours is the age of the position at t.
func (p Position) HoldingHours(t time.Time) float64 {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return t.Sub(p.OpenedAt).Hours()
}

// View is an immutable snapshot of portfolio state handed to the risk
// manager, the monitor and the status API.
type View struct {
	Cash              decimal.Decimal
	Available         decimal.Decimal // cash usable for new trades after reserve
	InitialBalance    decimal.Decimal
	PeakBalance       decimal.Decimal
	MaxDrawdown       decimal.Decimal
	RealizedPnL       decimal.Decimal
	OpenPositions     []Position
	ConsecutiveLosses int
	Wins              int
	Losses            int
	Paused            bool
}

func (v View) OpenCount() int {
	return len(v.OpenPositions)
}
