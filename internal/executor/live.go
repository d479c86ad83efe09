package executor

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"polyagent/internal/config"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

// Live places real orders on the CLOB. Fills and fees come from the venue;
// slippage is observed, not modeled. Orders that do not fill within the
// configured window are cancelled and reported as liquidity failures.
type Live struct {
	client      *market.Client
	creds       market.Credentials
	fillTimeout time.Duration
	pollEvery   time.Duration
}

func NewLive(client *market.Client, cfg config.LiveConfig) *Live {
	timeout := time.Duration(cfg.FillTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Live{
		client: client,
		creds: market.Credentials{
			APIKey:     cfg.APIKey,
			Secret:     cfg.Secret,
			Passphrase: cfg.Passphrase,
			Wallet:     cfg.WalletAddress,
		},
		fillTimeout: timeout,
		pollEvery:   2 * time.Second,
	}
}

func (l *Live) Name() string { return "live" }

func (l *Live) Open(ctx context.Context, intent Intent) (Fill, error) {
	if intent.TokenID == "" {
		return Fill{}, newError(KindVenue, "open", intent.MarketID, "no token id for side", nil)
	}
	shares := intent.Stake.Div(intent.Price).Round(4)

	orderID, err := l.client.PlaceOrder(ctx, l.creds, market.OrderRequest{
		TokenID: intent.TokenID,
		Side:    "BUY",
		Price:   intent.Price,
		Size:    shares,
	})
	if err != nil {
		return Fill{}, classifyVenueErr("open", intent.MarketID, err)
	}

	matched, err := l.awaitFill(ctx, orderID, intent.MarketID, "open")
	if err != nil {
		return Fill{}, err
	}

	stake := matched.Mul(intent.Price).Round(4)
	return Fill{
		OrderID:  orderID,
		RawPrice: intent.Price,
		Price:    intent.Price,
		Shares:   matched,
		Stake:    stake,
		Fees:     decimal.Zero,
		Partial:  matched.LessThan(shares),
	}, nil
}

func (l *Live) Close(ctx context.Context, pos portfolio.Position, markPrice decimal.Decimal, reason portfolio.ExitReason) (Fill, error) {
	if pos.TokenID == "" {
		return Fill{}, newError(KindVenue, "close", pos.MarketID, "position has no token id", nil)
	}

	orderID, err := l.client.PlaceOrder(ctx, l.creds, market.OrderRequest{
		TokenID: pos.TokenID,
		Side:    "SELL",
		Price:   markPrice,
		Size:    pos.Shares,
	})
	if err != nil {
		return Fill{}, classifyVenueErr("close", pos.MarketID, err)
	}

	matched, err := l.awaitFill(ctx, orderID, pos.MarketID, "close")
	if err != nil {
		// Position stays open, the monitor retries next pass.
		return Fill{}, err
	}
	if matched.LessThan(pos.Shares) {
		logger.Warnf("close order %s matched %s of %s shares", orderID, matched, pos.Shares)
	}

	return Fill{
		OrderID:  orderID,
		RawPrice: markPrice,
		Price:    markPrice,
		Shares:   matched,
		Fees:     decimal.Zero,
	}, nil
}

// awaitFill polls order status until fully matched or the fill window
// closes, cancelling the remainder on timeout.
func (l *Live) awaitFill(ctx context.Context, orderID, marketID, op string) (decimal.Decimal, error) {
	deadline := time.Now().Add(l.fillTimeout)
	ticker := time.NewTicker(l.pollEvery)
	defer ticker.Stop()

	var matched decimal.Decimal
	for {
		status, filled, err := l.client.OrderStatus(ctx, l.creds, orderID)
		if err == nil {
			matched = filled
			switch status {
			case "FILLED", "MATCHED":
				return matched, nil
			case "CANCELLED", "REJECTED":
				return decimal.Zero, newError(KindRejected, op, marketID, "order "+strings.ToLower(status), nil)
			}
		}

		if time.Now().After(deadline) {
			if cancelErr := l.client.CancelOrder(ctx, l.creds, orderID); cancelErr != nil {
				logger.Warnf("cancel order %s: %v", orderID, cancelErr)
			}
			if matched.IsPositive() {
				// Keep what filled before the window closed.
				return matched, nil
			}
			return decimal.Zero, newError(KindLiquidity, op, marketID, "order unfilled within window", nil)
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, newError(KindTimeout, op, marketID, "context done", ctx.Err())
		case <-ticker.C:
		}
	}
}

func classifyVenueErr(op, marketID string, err error) *Error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "rejected"):
		return newError(KindRejected, op, marketID, "venue rejected order", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(strings.ToLower(msg), "unauthorized"):
		return newError(KindAuth, op, marketID, "venue auth failure", err)
	case strings.Contains(strings.ToLower(msg), "liquidity"):
		return newError(KindLiquidity, op, marketID, "insufficient liquidity", err)
	default:
		return newError(KindNetwork, op, marketID, "venue request failed", err)
	}
}

var _ Executor = (*Live)(nil)
