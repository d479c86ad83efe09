package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"polyagent/internal/analysis"
	"polyagent/internal/config"
	"polyagent/internal/engine"
	"polyagent/internal/executor"
	"polyagent/internal/logger"
	"polyagent/internal/market"
	"polyagent/internal/monitor"
	"polyagent/internal/notify"
	"polyagent/internal/planner"
	"polyagent/internal/portfolio"
	"polyagent/internal/risk"
	"polyagent/internal/scheduler"
	"polyagent/internal/shutdown"
	"polyagent/internal/store"
	statushttp "polyagent/internal/transport/http/status"
)

// App owns the wiring: config in, running agent out. Construction is pure
// assembly; nothing talks to the network until Run.
type App struct {
	cfg *config.Config
	sig *shutdown.Signal

	store   *store.Store
	ledger  *portfolio.Ledger
	engine  *engine.Engine
	monitor *monitor.Monitor
	hub     *notify.Hub
	status  *statushttp.Server
}

// New builds the agent from configuration. The shutdown signal is armed
// immediately so a STOP file present at boot aborts before the first cycle.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	a := &App{cfg: cfg}
	a.sig = shutdown.New(ctx, cfg.App.StopFile)

	if cfg.Storage.DBPath != "" {
		st, err := store.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		a.store = st
	}

	a.ledger = portfolio.NewLedger(
		decimal.NewFromFloat(cfg.Trading.InitialBalance),
		decimal.NewFromFloat(cfg.Trading.ReservePct),
		cfg.Trading.MaxOpenPositions,
	)
	if a.store != nil {
		if err := a.restore(ctx); err != nil {
			return nil, err
		}
	}

	client := market.NewClient(cfg.Market.GammaAPI, cfg.Market.ClobAPI,
		time.Duration(cfg.Market.TimeoutSeconds)*time.Second)

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	exec, err := buildExecutor(cfg, client)
	if err != nil {
		return nil, err
	}
	logger.Infof("executor: %s", exec.Name())

	a.hub = buildHub(cfg.Notify)

	a.engine = engine.New(*cfg, a.ledger, risk.NewManager(cfg.Trading), planner.New(cfg.Trading),
		exec, provider, client).
		WithStopCheck(a.sig.Requested)
	a.monitor = monitor.New(a.ledger, exec, client).WithAnalyst(provider)

	if a.store != nil {
		a.engine.WithStore(a.store)
		a.monitor.WithRecorder(a.store)
	}
	if a.hub != nil {
		a.engine.WithHub(a.hub)
		a.monitor.WithEvents(a.hub)
	}

	if cfg.App.HTTPAddr != "" {
		srv, err := statushttp.NewServer(statushttp.ServerConfig{
			Addr:       cfg.App.HTTPAddr,
			AgentID:    cfg.App.AgentID,
			Paper:      cfg.Trading.Paper,
			Ledger:     a.ledger,
			Store:      a.store,
			Stop:       a.sig.Trigger,
			ResetPause: a.ledger.ResetPause,
		})
		if err != nil {
			return nil, err
		}
		a.status = srv
	}
	return a, nil
}

// restore replays the newest snapshot so a restart continues the same
// bankroll instead of resetting to the configured balance.
func (a *App) restore(ctx context.Context) error {
	state, err := a.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted state: %w", err)
	}
	if !state.Found {
		logger.Infof("fresh database, starting from $%.2f", a.cfg.Trading.InitialBalance)
		return nil
	}
	a.ledger.Restore(state.Cash, state.Open,
		state.ConsecutiveLosses, state.Wins, state.Losses, state.Paused,
		state.PeakBalance, state.MaxDrawdown, state.RealizedPnL)
	logger.Infof("restored portfolio: cash=$%s open=%d wins=%d losses=%d paused=%v",
		state.Cash.Round(2), len(state.Open), state.Wins, state.Losses, state.Paused)
	return nil
}

func buildProvider(cfg *config.Config) (analysis.Provider, error) {
	var inner analysis.Provider
	switch cfg.Analysis.Provider {
	case "scout":
		inner = analysis.NewScout(cfg.Trading.MinEdge)
	case "llm":
		if cfg.Analysis.APIKey == "" {
			return nil, fmt.Errorf("analysis provider llm requires api_key")
		}
		inner = analysis.NewLLMProvider(cfg.Analysis.APIURL, cfg.Analysis.APIKey, cfg.Analysis.Model,
			time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Analysis.Provider)
	}
	return analysis.NewResilient(inner, cfg.Analysis.MaxRetries, cfg.Analysis.BreakerThreshold,
		time.Duration(cfg.Analysis.BreakerCooldownSeconds)*time.Second), nil
}

func buildExecutor(cfg *config.Config, client *market.Client) (executor.Executor, error) {
	if cfg.Trading.Paper {
		return executor.NewSim(cfg.Sim), nil
	}
	if cfg.Live.APIKey == "" || cfg.Live.Secret == "" {
		return nil, fmt.Errorf("live trading requires api credentials")
	}
	return executor.NewLive(client, cfg.Live), nil
}

func buildHub(cfg config.NotifyConfig) *notify.Hub {
	var notifiers []notify.TextNotifier
	if cfg.Console.Enabled {
		notifiers = append(notifiers, notify.NewConsole())
	}
	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			logger.Warnf("telegram enabled but bot_token/chat_id missing, skipping")
		} else {
			notifiers = append(notifiers, notify.NewTelegram(cfg.Telegram))
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notify.NewHub(notifiers...)
}

// Run starts the scan loop, the position monitor, the report loop and the
// status API, and blocks until shutdown. Open positions are liquidated on
// the way out in paper mode; live positions are persisted and restored.
func (a *App) Run() error {
	ctx := a.sig.Context()

	if jitter := scheduler.Jitter(a.cfg.App.AgentID,
		time.Duration(a.cfg.Schedule.JitterMaxSecs)*time.Second); jitter > 0 {
		logger.Infof("start jitter %s", jitter.Truncate(time.Second))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return nil
		}
	}

	if a.hub != nil {
		v := a.ledger.Snapshot()
		a.hub.Send(fmt.Sprintf("agent %s started: cash=$%s open=%d paper=%v",
			a.cfg.App.AgentID, v.Cash.Round(2), v.OpenCount(), a.cfg.Trading.Paper))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scan := scheduler.NewIntervalScheduler(ctx, "scan",
			time.Duration(a.cfg.Schedule.ScanIntervalSecs)*time.Second)
		scan.RunImmediately = true
		scan.Start(func(ctx context.Context) {
			a.engine.RunCycle(ctx)
		})
		return nil
	})

	g.Go(func() error {
		check := scheduler.NewIntervalScheduler(ctx, "monitor",
			time.Duration(a.cfg.Schedule.PriceCheckSecs)*time.Second)
		check.Start(func(ctx context.Context) {
			a.monitor.CheckAll(ctx)
		})
		return nil
	})

	if a.cfg.Schedule.ReportIntervalHrs > 0 {
		g.Go(func() error {
			report := scheduler.NewIntervalScheduler(ctx, "report",
				time.Duration(a.cfg.Schedule.ReportIntervalHrs)*time.Hour)
			report.Start(func(ctx context.Context) {
				a.engine.Report(ctx)
			})
			return nil
		})
	}

	if a.status != nil {
		g.Go(func() error {
			return a.status.Start(ctx)
		})
	}

	err := g.Wait()
	a.finish()
	return err
}

// finish drains everything after the loops have stopped. It uses a fresh
// context: the shutdown one is already cancelled.
func (a *App) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.cfg.Trading.Paper {
		a.monitor.CloseAll(ctx, portfolio.ExitShutdown)
	}

	v := a.ledger.Snapshot()
	if a.store != nil {
		if err := a.store.SaveSnapshot(ctx, v); err != nil {
			logger.Warnf("final snapshot: %v", err)
		}
		if err := a.store.Close(); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}
	if a.hub != nil {
		a.hub.Send(fmt.Sprintf("agent %s stopped: cash=$%s realized=$%s wins=%d losses=%d",
			a.cfg.App.AgentID, v.Cash.Round(2), v.RealizedPnL.Round(2), v.Wins, v.Losses))
		a.hub.Drain()
	}
	logger.Infof("agent stopped: cash=$%s realized=$%s", v.Cash.Round(2), v.RealizedPnL.Round(2))
}
