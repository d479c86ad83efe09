package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFormatOpened(t *testing.T) {
	text := formatOpened(portfolio.Position{
		Question:   "Will the bill pass before March?",
		Mode:       portfolio.ModeScalp,
		Side:       market.SideYes,
		EntryPrice: d("0.42"),
		Stake:      d("1.89"),
		Shares:     d("4.5"),
		TakeProfit: d("0.4704"),
		StopLoss:   d("0.3864"),
		Deadline:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, text, "[OPENED]")
	assert.Contains(t, text, "SCALP YES @ 0.42")
	assert.Contains(t, text, "TP 0.4704 / SL 0.3864")
	assert.Contains(t, text, "deadline 2026-03-01 12:00")
}

func TestFormatOpenedConvictionHoldsToResolution(t *testing.T) {
	text := formatOpened(portfolio.Position{
		Question:   "Q",
		Mode:       portfolio.ModeConviction,
		Side:       market.SideNo,
		EntryPrice: d("0.30"),
		Stake:      d("2"),
		Shares:     d("6.66"),
	})
	assert.Contains(t, text, "hold to resolution")
	assert.NotContains(t, text, "TP")
}

func TestFormatClosedTagsWinAndLoss(t *testing.T) {
	win := formatClosed(portfolio.Position{
		Question:   "Q",
		Mode:       portfolio.ModeSwing,
		Side:       market.SideYes,
		EntryPrice: d("0.50"),
		ExitPrice:  d("0.62"),
		Stake:      d("2"),
		PnL:        d("0.48"),
		ExitReason: portfolio.ExitTakeProfit,
	})
	assert.Contains(t, win, "[WIN TP]")

	loss := formatClosed(portfolio.Position{
		Question:   "Q",
		Mode:       portfolio.ModeSwing,
		Side:       market.SideYes,
		EntryPrice: d("0.50"),
		ExitPrice:  d("0.40"),
		Stake:      d("2"),
		PnL:        d("-0.40"),
		ExitReason: portfolio.ExitStopLoss,
	})
	assert.Contains(t, loss, "[LOSS SL]")
}

func TestFormatReportTable(t *testing.T) {
	view := portfolio.View{
		Cash:        d("31.28"),
		RealizedPnL: d("1.28"),
		PeakBalance: d("32.00"),
		MaxDrawdown: d("0.05"),
		Wins:        3,
		Losses:      1,
	}
	closed := []portfolio.Position{
		{Mode: portfolio.ModeSwing, Side: market.SideYes, ExitReason: portfolio.ExitEdgeCaptured,
			PnL: d("0.48"), Question: "Q1"},
		{Mode: portfolio.ModeScalp, Side: market.SideNo, ExitReason: portfolio.ExitStopLoss,
			PnL: d("-0.20"), Question: "Q2"},
	}

	text := FormatReport(view, closed)
	assert.Contains(t, text, "PERFORMANCE REPORT")
	assert.Contains(t, text, "cash $31.28")
	assert.Contains(t, text, "3W/1L")
	assert.Contains(t, text, "EDGE")
	assert.Contains(t, text, "$-0.2")
}

func TestTruncateLongQuestion(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := truncateQ(long)
	assert.Len(t, got, 60)
	assert.True(t, strings.HasSuffix(got, "..."))
}
