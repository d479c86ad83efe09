package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"polyagent/internal/logger"
)

const (
	// Documented CLOB limits with headroom: 100 req/10s for Gamma-style
	// queries, higher for general CLOB endpoints.
	gammaRatePerSec = 8
	clobRatePerSec  = 40

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client talks to the Gamma market catalogue and the CLOB price endpoints
// with rate limiting and bounded retries.
type Client struct {
	http        *http.Client
	gammaBase   string
	clobBase    string
	gammaLimit  *rate.Limiter
	clobLimit   *rate.Limiter
	nowFn       func() time.Time
}

func NewClient(gammaBase, clobBase string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		gammaBase:  gammaBase,
		clobBase:   clobBase,
		gammaLimit: rate.NewLimiter(gammaRatePerSec, 10),
		clobLimit:  rate.NewLimiter(clobRatePerSec, 50),
		nowFn:      time.Now,
	}
}

// Scan fetches active markets from Gamma, newest close date first, mapped
// into domain Markets. Markets with unparsable prices are skipped.
func (c *Client) Scan(ctx context.Context, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 100
	}
	url := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d&order=volume&ascending=false",
		c.gammaBase, limit)

	raw, err := c.get(ctx, c.gammaLimit, url)
	if err != nil {
		return nil, fmt.Errorf("gamma scan: %w", err)
	}

	now := c.nowFn()
	var markets []Market
	gjson.ParseBytes(raw).ForEach(func(_, item gjson.Result) bool {
		m, ok := mapMarket(item, now)
		if ok {
			markets = append(markets, m)
		}
		return true
	})
	return markets, nil
}

// MidPrice returns the top-of-book mark for a token from the CLOB.
func (c *Client) MidPrice(ctx context.Context, tokenID string) (Quote, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.clobBase, tokenID)
	raw, err := c.get(ctx, c.clobLimit, url)
	if err != nil {
		return Quote{}, fmt.Errorf("clob book: %w", err)
	}

	parsed := gjson.ParseBytes(raw)
	bid := bestLevel(parsed.Get("bids"), true)
	ask := bestLevel(parsed.Get("asks"), false)
	q := Quote{TokenID: tokenID, BestBid: bid, BestAsk: ask}
	if bid.IsPositive() && ask.IsPositive() {
		q.Mid = bid.Add(ask).Div(decimal.NewFromInt(2))
	} else if ask.IsPositive() {
		q.Mid = ask
	} else {
		q.Mid = bid
	}
	if q.Mid.IsZero() {
		return Quote{}, fmt.Errorf("clob book: empty book for token %s", tokenID)
	}
	return q, nil
}

func bestLevel(levels gjson.Result, highest bool) decimal.Decimal {
	best := decimal.Zero
	levels.ForEach(func(_, lvl gjson.Result) bool {
		price, err := decimal.NewFromString(lvl.Get("price").String())
		if err != nil {
			return true
		}
		if best.IsZero() || (highest && price.GreaterThan(best)) || (!highest && price.LessThan(best)) {
			best = price
		}
		return true
	})
	return best
}

func mapMarket(item gjson.Result, now time.Time) (Market, bool) {
	yes, err := decimal.NewFromString(item.Get("outcomePrices.0").String())
	if err != nil {
		// Gamma sometimes returns outcomePrices as an encoded JSON string.
		inner := gjson.Parse(item.Get("outcomePrices").String())
		yes, err = decimal.NewFromString(inner.Get("0").String())
		if err != nil {
			return Market{}, false
		}
	}
	no := decimal.NewFromInt(1).Sub(yes)
	if noRaw := item.Get("outcomePrices.1").String(); noRaw != "" {
		if parsed, err := decimal.NewFromString(noRaw); err == nil {
			no = parsed
		}
	}
	if yes.LessThanOrEqual(decimal.Zero) || yes.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Market{}, false
	}

	m := Market{
		ID:          item.Get("id").String(),
		Question:    item.Get("question").String(),
		Description: item.Get("description").String(),
		Category:    item.Get("category").String(),
		Slug:        item.Get("slug").String(),
		YesPrice:    yes,
		NoPrice:     no,
		Volume:      decimalOrZero(item.Get("volume")),
		Liquidity:   decimalOrZero(item.Get("liquidity")),
		FetchedAt:   now,
	}
	if end, err := time.Parse(time.RFC3339, item.Get("endDate").String()); err == nil {
		m.EndDate = end
	}

	tokens := item.Get("clobTokenIds")
	if !tokens.Exists() || !tokens.IsArray() {
		tokens = gjson.Parse(tokens.String())
	}
	outcomes := []string{"Yes", "No"}
	prices := []decimal.Decimal{yes, no}
	idx := 0
	tokens.ForEach(func(_, id gjson.Result) bool {
		if idx < len(outcomes) {
			m.Tokens = append(m.Tokens, TokenInfo{
				TokenID: id.String(),
				Outcome: outcomes[idx],
				Price:   prices[idx],
			})
		}
		idx++
		return true
	})

	if m.ID == "" || m.Question == "" {
		return Market{}, false
	}
	return m, true
}

func decimalOrZero(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string) ([]byte, error) {
	return c.doWithRetry(ctx, limiter, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body any, headers map[string]string) ([]byte, error) {
	return c.doWithRetry(ctx, limiter, func() (*http.Request, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// doWithRetry runs the request with exponential backoff. 4xx responses are
// not retried; they indicate a caller bug or a venue-side rejection.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if !c.sleep(ctx, attempt) {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			logger.Warnf("market api %s: status=%d attempt=%d", req.URL.Path, resp.StatusCode, attempt+1)
			if !c.sleep(ctx, attempt) {
				return nil, ctx.Err()
			}
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		case readErr != nil:
			return nil, fmt.Errorf("read response: %w", readErr)
		default:
			return body, nil
		}
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) bool {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
