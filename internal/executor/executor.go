package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

// Intent is a sized, planned order the engine wants filled. Price is the
// quoted entry price for the chosen side; Stake caps the total spend
// including fees.
type Intent struct {
	MarketID string
	Question string
	TokenID  string
	Side     market.Side
	Price    decimal.Decimal
	Stake    decimal.Decimal
	Volume   decimal.Decimal
	Spread   decimal.Decimal
}

// Fill is the realized outcome of an open or close. For opens,
// Stake + Fees never exceeds the intent's stake; the difference on a
// partial fill is returned to the ledger. For closes, Price is the
// slippage-adjusted exit and Fees covers gas plus any profit fee.
type Fill struct {
	OrderID  string
	RawPrice decimal.Decimal // quoted mark before slippage
	Price    decimal.Decimal // filled price
	Shares   decimal.Decimal
	Stake    decimal.Decimal // capital committed, opens only
	Fees     decimal.Decimal
	Partial  bool
}

// Executor is the execution boundary. The engine is agnostic to whether
// fills are simulated or venue-backed; both sides honor the same contract:
// Open either returns a Fill or a typed *Error, and Close always reaches a
// terminal result or an error that leaves the position open for retry.
type Executor interface {
	Name() string
	Open(ctx context.Context, intent Intent) (Fill, error)
	Close(ctx context.Context, pos portfolio.Position, markPrice decimal.Decimal, reason portfolio.ExitReason) (Fill, error)
}
