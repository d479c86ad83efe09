package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"polyagent/internal/logger"
	"polyagent/internal/market"
)

// LLMProvider calls an OpenAI-compatible chat completions endpoint and maps
// the model's JSON verdict onto the Verdict contract. The raw completion is
// schema-validated before any field is trusted.
type LLMProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	client *http.Client
}

func NewLLMProvider(baseURL, apiKey, model string, timeout time.Duration) *LLMProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

const researchSystemPrompt = `You are a prediction-market analyst. Given one market, estimate the fair probability of YES resolving true.
Respond with a single JSON object, nothing else:
{"side":"YES|NO|SKIP","fair_value":0.0-1.0,"confidence":0.0-1.0,"reasoning":"one short sentence"}`

const exitSystemPrompt = `You are reviewing an open prediction-market position. Decide whether it should be closed now.
Respond with a single JSON object, nothing else:
{"should_exit":true|false,"confidence":0.0-1.0,"reasoning":"one short sentence"}`

func (p *LLMProvider) Research(ctx context.Context, m market.Market) (Verdict, error) {
	user := fmt.Sprintf(
		"Market: %s\nCategory: %s\nCurrent YES price: %s\nResolves: %s\nDescription: %s",
		m.Question, m.Category, m.YesPrice.StringFixed(3),
		m.EndDate.Format(time.RFC3339), truncate(m.Description, 800),
	)
	raw, err := p.complete(ctx, researchSystemPrompt, user)
	if err != nil {
		return Verdict{}, err
	}
	return p.parseVerdict(m, raw)
}

func (p *LLMProvider) ExitOpinion(ctx context.Context, q ExitQuery) (ExitRecommendation, error) {
	user := fmt.Sprintf(
		"Position: %s %s\nMode: %s\nEntry: %s  Current: %s  Fair value at entry: %s\nHeld since: %s  Deadline: %s",
		q.Side, truncate(q.Question, 120), q.Mode,
		q.EntryPrice.StringFixed(3), q.CurrentPrice.StringFixed(3), q.FairValue.StringFixed(3),
		q.OpenedAt.Format(time.RFC3339), q.Deadline.Format(time.RFC3339),
	)
	raw, err := p.complete(ctx, exitSystemPrompt, user)
	if err != nil {
		return ExitRecommendation{}, err
	}

	raw = extractJSON(raw)
	if err := validateExitJSON(raw); err != nil {
		return ExitRecommendation{}, fmt.Errorf("exit opinion rejected: %w", err)
	}
	parsed := gjson.Parse(raw)
	return ExitRecommendation{
		ShouldExit: parsed.Get("should_exit").Bool(),
		Confidence: parsed.Get("confidence").Float(),
		Reasoning:  parsed.Get("reasoning").String(),
	}, nil
}

func (p *LLMProvider) parseVerdict(m market.Market, raw string) (Verdict, error) {
	raw = extractJSON(raw)
	if err := validateVerdictJSON(raw); err != nil {
		return Verdict{}, fmt.Errorf("verdict rejected: %w", err)
	}
	parsed := gjson.Parse(raw)

	side := market.Side(strings.ToUpper(parsed.Get("side").String()))
	if side != market.SideYes && side != market.SideNo && side != market.SideSkip {
		return Verdict{}, fmt.Errorf("verdict rejected: unknown side %q", side)
	}
	fair := decimal.NewFromFloat(parsed.Get("fair_value").Float())

	return Verdict{
		MarketID:   m.ID,
		Side:       side,
		FairValue:  fair,
		Confidence: parsed.Get("confidence").Float(),
		Edge:       fair.Sub(m.YesPrice).Abs(),
		Category:   m.Category,
		Reasoning:  parsed.Get("reasoning").String(),
		Model:      p.Model,
	}, nil
}

// complete posts one chat completion. Transport failures and upstream 429/5xx
// map to ErrUnavailable so the Resilient wrapper retries them.
func (p *LLMProvider) complete(ctx context.Context, system, user string) (string, error) {
	url := strings.TrimRight(p.BaseURL, "/")
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}

	body := map[string]any{
		"model": p.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm request failed: status %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrUnavailable, err)
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUnavailable)
	}
	logger.Debugf("llm completion: %s", truncate(r.Choices[0].Message.Content, 300))
	return r.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "{"); i >= 0 {
		if j := strings.LastIndex(raw, "}"); j > i {
			return raw[i : j+1]
		}
	}
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
