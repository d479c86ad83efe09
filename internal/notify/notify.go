package notify

import (
	"context"
	"sync"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/portfolio"
)

// TextNotifier delivers one plain-text message to an operator channel.
type TextNotifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

// Hub fans messages out to every configured channel asynchronously. Sends
// are fire-and-forget: a dead channel is logged and never blocks trading.
type Hub struct {
	notifiers []TextNotifier
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewHub(notifiers ...TextNotifier) *Hub {
	return &Hub{notifiers: notifiers, timeout: 15 * time.Second}
}

func (h *Hub) Send(text string) {
	for _, n := range h.notifiers {
		h.wg.Add(1)
		go func(n TextNotifier) {
			defer h.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			defer cancel()
			if err := n.Notify(ctx, text); err != nil {
				logger.Warnf("notify via %s: %v", n.Name(), err)
			}
		}(n)
	}
}

// Drain waits for in-flight sends, used on shutdown.
func (h *Hub) Drain() {
	h.wg.Wait()
}

func (h *Hub) TradeOpened(pos portfolio.Position) {
	h.Send(formatOpened(pos))
}

// PositionClosed satisfies the monitor's Events interface.
func (h *Hub) PositionClosed(pos portfolio.Position) {
	h.Send(formatClosed(pos))
}

func (h *Hub) LowBalanceAlert(view portfolio.View, killThreshold string) {
	h.Send(formatLowBalance(view, killThreshold))
}

func (h *Hub) PauseAlert(view portfolio.View) {
	h.Send(formatPause(view))
}

func (h *Hub) Report(view portfolio.View, closed []portfolio.Position) {
	h.Send(FormatReport(view, closed))
}
