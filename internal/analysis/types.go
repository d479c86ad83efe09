package analysis

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/market"
)

// ErrUnavailable marks retryable provider failures (network, upstream
// overload). A candidate hitting it is skipped this cycle, never fatal.
var ErrUnavailable = errors.New("analysis unavailable")

// Verdict is the provider's trading opinion on one market. The engine never
// sees how it was produced; it only consumes this contract.
type Verdict struct {
	MarketID   string
	Side       market.Side
	FairValue  decimal.Decimal // estimated fair YES price, 0..1
	Confidence float64         // 0..1
	Edge       decimal.Decimal // |fair value - market YES price|
	Category   string
	Reasoning  string
	Model      string
}

// Tradeable reports whether the verdict proposes a position at all.
func (v Verdict) Tradeable() bool {
	return v.Side.Valid()
}

// ExitQuery describes an open position for a second opinion. It is a value
// type so the provider cannot reach into ledger state.
type ExitQuery struct {
	MarketID     string
	Question     string
	Side         market.Side
	Mode         string
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	FairValue    decimal.Decimal
	Confidence   float64
	OpenedAt     time.Time
	Deadline     time.Time
}

// ExitRecommendation is the provider's opinion on whether to close now.
type ExitRecommendation struct {
	ShouldExit bool
	Confidence float64
	Reasoning  string
}
