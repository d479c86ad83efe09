package market

import "context"

// Provider supplies scannable markets. Implemented by the Gamma client and
// by fixtures in tests.
type Provider interface {
	// Scan returns up to limit active markets, freshest prices included.
	Scan(ctx context.Context, limit int) ([]Market, error)
}

// PriceSource supplies current marks for open positions. The monitor depends
// on this narrow view rather than the whole client.
type PriceSource interface {
	// MidPrice returns the current mark for one outcome token.
	MidPrice(ctx context.Context, tokenID string) (Quote, error)
}
