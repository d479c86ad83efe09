package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"polyagent/internal/logger"
	"polyagent/internal/portfolio"
	"polyagent/internal/store"
)

// Server exposes a read-only view of the running agent plus the two
// operator actions (pause reset, remote stop). It never places trades.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the server dependencies. Store, Stop and
// ResetPause are optional; the matching endpoints degrade gracefully.
type ServerConfig struct {
	Addr    string
	AgentID string
	Paper   bool

	Ledger     *portfolio.Ledger
	Store      *store.Store
	Stop       func(source string)
	ResetPause func()
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("status http server requires a ledger")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8780"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", handleStatus(cfg))
	api.GET("/positions", handlePositions(cfg.Ledger))
	api.GET("/positions/closed", handleClosed(cfg.Store))
	api.GET("/cycles", handleCycles(cfg.Store))
	api.POST("/control/reset-pause", handleResetPause(cfg))
	api.POST("/control/stop", handleStop(cfg.Stop))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Infof("status http listening on %s", s.addr)
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func handleStatus(cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := cfg.Ledger.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"agent_id":           cfg.AgentID,
			"paper":              cfg.Paper,
			"cash":               v.Cash.String(),
			"available":          v.Available.String(),
			"initial_balance":    v.InitialBalance.String(),
			"peak_balance":       v.PeakBalance.String(),
			"max_drawdown":       v.MaxDrawdown.String(),
			"realized_pnl":       v.RealizedPnL.String(),
			"open_positions":     v.OpenCount(),
			"wins":               v.Wins,
			"losses":             v.Losses,
			"consecutive_losses": v.ConsecutiveLosses,
			"paused":             v.Paused,
			"corrupt":            cfg.Ledger.Corrupt(),
		})
	}
}

func handlePositions(ledger *portfolio.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := ledger.Snapshot()
		out := make([]positionJSON, 0, len(v.OpenPositions))
		for _, p := range v.OpenPositions {
			out = append(out, toPositionJSON(p))
		}
		c.JSON(http.StatusOK, gin.H{"positions": out})
	}
}

func handleClosed(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
			return
		}
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		closed, err := st.ClosedPositions(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]positionJSON, 0, len(closed))
		for _, p := range closed {
			out = append(out, toPositionJSON(p))
		}
		c.JSON(http.StatusOK, gin.H{"positions": out})
	}
}

func handleCycles(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if st == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
			return
		}
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		cycles, err := st.RecentCycles(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cycles": cycles})
	}
}

func handleResetPause(cfg ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.ResetPause == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pause reset not wired"})
			return
		}
		logger.Infof("operator reset pause via http (ip=%s)", c.ClientIP())
		cfg.ResetPause()
		c.JSON(http.StatusOK, gin.H{"paused": cfg.Ledger.Snapshot().Paused})
	}
}

func handleStop(stop func(source string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stop == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote stop not wired"})
			return
		}
		stop("http " + c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"stopping": true})
	}
}

type positionJSON struct {
	ID         string `json:"id"`
	MarketID   string `json:"market_id"`
	Question   string `json:"question"`
	Side       string `json:"side"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
	EntryPrice string `json:"entry_price"`
	Stake      string `json:"stake"`
	Shares     string `json:"shares"`
	TakeProfit string `json:"take_profit,omitempty"`
	StopLoss   string `json:"stop_loss,omitempty"`
	Deadline   string `json:"deadline,omitempty"`
	ExitPrice  string `json:"exit_price,omitempty"`
	ExitReason string `json:"exit_reason,omitempty"`
	PnL        string `json:"pnl,omitempty"`
	OpenedAt   string `json:"opened_at"`
	ClosedAt   string `json:"closed_at,omitempty"`
}

func toPositionJSON(p portfolio.Position) positionJSON {
	out := positionJSON{
		ID:         p.ID,
		MarketID:   p.MarketID,
		Question:   p.Question,
		Side:       string(p.Side),
		Mode:       string(p.Mode),
		Status:     string(p.Status),
		EntryPrice: p.EntryPrice.String(),
		Stake:      p.Stake.String(),
		Shares:     p.Shares.String(),
		OpenedAt:   p.OpenedAt.Format(time.RFC3339),
	}
	if p.TakeProfit.IsPositive() {
		out.TakeProfit = p.TakeProfit.String()
	}
	if p.StopLoss.IsPositive() {
		out.StopLoss = p.StopLoss.String()
	}
	if !p.Deadline.IsZero() {
		out.Deadline = p.Deadline.Format(time.RFC3339)
	}
	if p.Status == portfolio.StatusClosed {
		out.ExitPrice = p.ExitPrice.String()
		out.ExitReason = string(p.ExitReason)
		out.PnL = p.PnL.String()
		if !p.ClosedAt.IsZero() {
			out.ClosedAt = p.ClosedAt.Format(time.RFC3339)
		}
	}
	return out
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
