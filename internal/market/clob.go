package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Credentials authenticate order endpoints. Price/book endpoints are public.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
	Wallet     string
}

func (c Credentials) headers() map[string]string {
	return map[string]string{
		"POLY-API-KEY":    c.APIKey,
		"POLY-SECRET":     c.Secret,
		"POLY-PASSPHRASE": c.Passphrase,
		"POLY-ADDRESS":    c.Wallet,
	}
}

// OrderRequest is a limit order against one outcome token.
type OrderRequest struct {
	TokenID string
	Side    string // "BUY" | "SELL"
	Price   decimal.Decimal
	Size    decimal.Decimal // shares
}

// PlaceOrder submits a limit order and returns the venue order id.
func (c *Client) PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (string, error) {
	payload := map[string]any{
		"token_id": req.TokenID,
		"side":     req.Side,
		"price":    req.Price.String(),
		"size":     req.Size.String(),
		"type":     "GTC",
		"maker":    creds.Wallet,
	}
	raw, err := c.post(ctx, c.clobLimit, c.clobBase+"/order", payload, creds.headers())
	if err != nil {
		return "", err
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.Get("success").Bool() {
		return "", fmt.Errorf("order rejected: %s", parsed.Get("errorMsg").String())
	}
	orderID := parsed.Get("orderID").String()
	if orderID == "" {
		return "", fmt.Errorf("order response missing orderID")
	}
	return orderID, nil
}

// OrderStatus returns the venue-side status, normalized to upper case
// (LIVE, MATCHED, FILLED, CANCELLED...).
func (c *Client) OrderStatus(ctx context.Context, creds Credentials, orderID string) (string, decimal.Decimal, error) {
	raw, err := c.get(ctx, c.clobLimit, fmt.Sprintf("%s/order/%s", c.clobBase, orderID))
	if err != nil {
		return "", decimal.Zero, err
	}
	parsed := gjson.ParseBytes(raw)
	status := strings.ToUpper(parsed.Get("status").String())
	filled := decimalOrZero(parsed.Get("size_matched"))
	return status, filled, nil
}

// CancelOrder cancels one open order.
func (c *Client) CancelOrder(ctx context.Context, creds Credentials, orderID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.clobBase+"/order", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range creds.headers() {
		req.Header.Set(k, v)
	}
	q := req.URL.Query()
	q.Set("orderID", orderID)
	req.URL.RawQuery = q.Encode()

	if err := c.clobLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cancel %s: status %d", orderID, resp.StatusCode)
	}
	return nil
}
