package notify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"polyagent/internal/portfolio"
)

func formatOpened(p portfolio.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[OPENED] %s\n", truncateQ(p.Question))
	fmt.Fprintf(&b, "%s %s @ %s, stake $%s (%s shares)\n",
		p.Mode, p.Side, p.EntryPrice.Round(4), p.Stake.Round(2), p.Shares)
	if p.TakeProfit.IsPositive() {
		fmt.Fprintf(&b, "TP %s / SL %s", p.TakeProfit.Round(4), p.StopLoss.Round(4))
	} else {
		b.WriteString("hold to resolution")
	}
	if !p.Deadline.IsZero() {
		fmt.Fprintf(&b, ", deadline %s", p.Deadline.UTC().Format("2006-01-02 15:04"))
	}
	return b.String()
}

func formatClosed(p portfolio.Position) string {
	tag := "LOSS"
	if p.PnL.IsPositive() {
		tag = "WIN"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s %s] %s\n", tag, exitTag(p.ExitReason), truncateQ(p.Question))
	fmt.Fprintf(&b, "%s %s entry %s -> exit %s\n",
		p.Mode, p.Side, p.EntryPrice.Round(4), p.ExitPrice.Round(4))
	fmt.Fprintf(&b, "PnL $%s on $%s stake, fees $%s",
		p.PnL.Round(2), p.Stake.Round(2), p.FeesPaid.Round(4))
	return b.String()
}

func formatLowBalance(v portfolio.View, killThreshold string) string {
	return fmt.Sprintf(
		"[LOW BALANCE] cash $%s approaching kill threshold $%s (peak $%s, drawdown %s%%)",
		v.Cash.Round(2), killThreshold, v.PeakBalance.Round(2),
		v.MaxDrawdown.Mul(decimal.NewFromInt(100)).Round(1))
}

func formatPause(v portfolio.View) string {
	return fmt.Sprintf(
		"[PAUSED] %d consecutive losses, trading halted until operator reset. Cash $%s, %d open.",
		v.ConsecutiveLosses, v.Cash.Round(2), v.OpenCount())
}

// FormatReport renders the periodic performance summary. The closed slice
// is newest first; only the top few rows make the table.
func FormatReport(v portfolio.View, closed []portfolio.Position) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "PERFORMANCE REPORT\n")
	fmt.Fprintf(&b, "cash $%s | realized $%s | peak $%s | max drawdown %s%%\n",
		v.Cash.Round(2), v.RealizedPnL.Round(2), v.PeakBalance.Round(2),
		v.MaxDrawdown.Mul(decimal.NewFromInt(100)).Round(1))
	fmt.Fprintf(&b, "record %dW/%dL | streak %d losses | open %d | paused %v\n\n",
		v.Wins, v.Losses, v.ConsecutiveLosses, v.OpenCount(), v.Paused)

	if len(closed) > 0 {
		table := tablewriter.NewWriter(&b)
		table.Header("MODE", "SIDE", "EXIT", "PNL", "QUESTION")
		for i, p := range closed {
			if i >= 10 {
				break
			}
			table.Append(string(p.Mode), string(p.Side), exitTag(p.ExitReason),
				"$"+p.PnL.Round(2).String(), truncateQ(p.Question))
		}
		table.Render()
	}
	return b.String()
}

func exitTag(r portfolio.ExitReason) string {
	switch r {
	case portfolio.ExitTakeProfit:
		return "TP"
	case portfolio.ExitStopLoss:
		return "SL"
	case portfolio.ExitTimeLimit:
		return "TIME"
	case portfolio.ExitAIJudgment:
		return "AI"
	case portfolio.ExitEdgeCaptured:
		return "EDGE"
	case portfolio.ExitSafetyValve:
		return "SAFETY"
	case portfolio.ExitResolved:
		return "RESOLVED"
	case portfolio.ExitShutdown:
		return "SHUTDOWN"
	default:
		return string(r)
	}
}

func truncateQ(q string) string {
	const max = 60
	if len(q) <= max {
		return q
	}
	return q[:max-3] + "..."
}
