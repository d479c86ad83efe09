package scheduler

import (
	"context"
	"time"

	"polyagent/internal/logger"
)

// IntervalScheduler runs a task on a fixed cadence until its context is
// cancelled. The task itself is run synchronously: a slow task delays the
// next tick rather than overlapping with it.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	InitialDelay   time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, name string, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks running the task loop. It returns when the context is done.
// The task receives the scheduler context so it can observe cancellation at
// its own checkpoints.
func (s *IntervalScheduler) Start(task func(ctx context.Context)) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler[%s]: started interval=%s initial_delay=%s run_immediately=%v",
		s.Name, s.Interval, s.InitialDelay.Truncate(time.Second), s.RunImmediately)

	if s.InitialDelay > 0 {
		if !s.sleep(s.InitialDelay) {
			return
		}
	}

	if s.RunImmediately {
		task(s.ctx)
	}

	for {
		if !s.sleep(s.Interval) {
			logger.Infof("scheduler[%s]: ctx done, exit", s.Name)
			return
		}
		task(s.ctx)
	}
}

func (s *IntervalScheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Jitter derives a deterministic start delay from an agent identifier so a
// fleet of agents sharing one API does not scan in lockstep. The delay is
// bounded by max.
func Jitter(agentID string, max time.Duration) time.Duration {
	if max <= 0 || agentID == "" {
		return 0
	}
	var hash uint64
	for _, b := range []byte(agentID) {
		hash = hash*31 + uint64(b)
	}
	return time.Duration(hash % uint64(max))
}
