package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyagent/internal/market"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func scoutMarket(yes string) market.Market {
	return market.Market{
		ID:        "m1",
		Question:  "Will the event happen?",
		YesPrice:  d(yes),
		Liquidity: d("5000"),
	}
}

func TestScoutLongshotCorrection(t *testing.T) {
	s := NewScout(0.02)

	// A cheap market is treated as slightly underpriced.
	v, err := s.Research(context.Background(), scoutMarket("0.20"))
	require.NoError(t, err)
	assert.Equal(t, market.SideYes, v.Side)
	assert.True(t, v.FairValue.Equal(d("0.224")), "fair %s", v.FairValue)
	assert.True(t, v.Edge.Equal(d("0.024")), "edge %s", v.Edge)
	assert.Equal(t, 0.68, v.Confidence)

	// An expensive one is slightly overpriced, so the NO side carries the edge.
	v, err = s.Research(context.Background(), scoutMarket("0.80"))
	require.NoError(t, err)
	assert.Equal(t, market.SideNo, v.Side)
}

func TestScoutSkipsBelowMinEdge(t *testing.T) {
	s := NewScout(0.08)
	v, err := s.Research(context.Background(), scoutMarket("0.20"))
	require.NoError(t, err)
	assert.Equal(t, market.SideSkip, v.Side)
	assert.False(t, v.Tradeable())
}

func TestScoutExitOnConvergence(t *testing.T) {
	s := NewScout(0.02)

	rec, err := s.ExitOpinion(context.Background(), ExitQuery{
		FairValue:    d("0.60"),
		CurrentPrice: d("0.59"),
	})
	require.NoError(t, err)
	assert.True(t, rec.ShouldExit)

	rec, err = s.ExitOpinion(context.Background(), ExitQuery{
		FairValue:    d("0.60"),
		CurrentPrice: d("0.45"),
	})
	require.NoError(t, err)
	assert.False(t, rec.ShouldExit)
}

type failingProvider struct {
	calls int
	err   error
}

func (f *failingProvider) Research(_ context.Context, _ market.Market) (Verdict, error) {
	f.calls++
	return Verdict{}, f.err
}

func (f *failingProvider) ExitOpinion(_ context.Context, _ ExitQuery) (ExitRecommendation, error) {
	f.calls++
	return ExitRecommendation{}, f.err
}

func TestResilientBreakerOpens(t *testing.T) {
	inner := &failingProvider{err: errors.New("refused")} // non-retryable
	r := NewResilient(inner, 1, 2, time.Hour)

	for i := 0; i < 2; i++ {
		_, err := r.Research(context.Background(), scoutMarket("0.20"))
		require.Error(t, err)
	}
	assert.Equal(t, 2, inner.calls)

	// Threshold reached; further calls are shed without touching the inner
	// provider until the cooldown passes.
	_, err := r.Research(context.Background(), scoutMarket("0.20"))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls)
}

func TestResilientPassesVerdictThrough(t *testing.T) {
	s := NewScout(0.02)
	r := NewResilient(s, 3, 5, time.Minute)

	v, err := r.Research(context.Background(), scoutMarket("0.20"))
	require.NoError(t, err)
	assert.Equal(t, market.SideYes, v.Side)
}
