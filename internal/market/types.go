package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome a position is long on.
type Side string

const (
	SideYes  Side = "YES"
	SideNo   Side = "NO"
	SideSkip Side = "SKIP"
)

func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// TokenInfo is one outcome token of a binary market.
type TokenInfo struct {
	TokenID string
	Outcome string
	Price   decimal.Decimal
}

// Market is a binary prediction market. Prices are probabilities in (0,1);
// YES and NO should sum to roughly 1, the residual being the spread.
type Market struct {
	ID          string
	Question    string
	Description string
	Category    string
	Slug        string
	EndDate     time.Time
	YesPrice    decimal.Decimal
	NoPrice     decimal.Decimal
	Volume      decimal.Decimal
	Liquidity   decimal.Decimal
	Tokens      []TokenInfo
	FetchedAt   time.Time
}

// PriceFor returns the effective entry price for holding the given side.
func (m Market) PriceFor(side Side) decimal.Decimal {
	switch side {
	case SideYes:
		return m.YesPrice
	case SideNo:
		return decimal.NewFromInt(1).Sub(m.YesPrice)
	default:
		return decimal.Zero
	}
}

// Spread is the deviation of yes+no from $1.
func (m Market) Spread() decimal.Decimal {
	one := decimal.NewFromInt(1)
	return m.YesPrice.Add(m.NoPrice).Sub(one).Abs()
}

// DaysToResolution returns whole days until the market resolves, floored
// at zero. Markets without an end date report a long horizon.
func (m Market) DaysToResolution(now time.Time) int {
	if m.EndDate.IsZero() {
		return 30
	}
	days := int(m.EndDate.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// TokenFor resolves the outcome token backing the given side.
func (m Market) TokenFor(side Side) (TokenInfo, bool) {
	want := "Yes"
	if side == SideNo {
		want = "No"
	}
	for _, t := range m.Tokens {
		if t.Outcome == want {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// Quote is a top-of-book snapshot for one token.
type Quote struct {
	TokenID string
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
	Mid     decimal.Decimal
}
