package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"polyagent/internal/market"
	"polyagent/internal/portfolio"
)

// CycleStats summarizes one scan tick for the append-only cycle log.
type CycleStats struct {
	AgentID   string
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Analyzed  int
	Traded    int
	Skipped   int
	Errors    int
	Notes     string
}

// Store persists positions, cycle logs and portfolio snapshots in SQLite.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: db path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&positionModel{}, &cycleStatsModel{}, &snapshotModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for the status API reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SavePosition upserts by position id, so replays after a crash between
// fill and acknowledgement are idempotent.
func (s *Store) SavePosition(ctx context.Context, pos portfolio.Position) error {
	m := toModel(pos)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&m).Error
}

// RecordClose and RecordUpdate satisfy the monitor's Recorder.
func (s *Store) RecordClose(ctx context.Context, pos portfolio.Position) error {
	return s.SavePosition(ctx, pos)
}

func (s *Store) RecordUpdate(ctx context.Context, pos portfolio.Position) error {
	return s.SavePosition(ctx, pos)
}

// OpenPositions loads every position still marked open, for restore.
func (s *Store) OpenPositions(ctx context.Context) ([]portfolio.Position, error) {
	var rows []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(portfolio.StatusOpen)).
		Order("opened_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]portfolio.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromModel(r))
	}
	return out, nil
}

// ClosedPositions returns the most recent closed trades, newest first.
func (s *Store) ClosedPositions(ctx context.Context, limit int) ([]portfolio.Position, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(portfolio.StatusClosed)).
		Order("closed_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]portfolio.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromModel(r))
	}
	return out, nil
}

func (s *Store) SaveCycleStats(ctx context.Context, cs CycleStats) error {
	m := cycleStatsModel{
		AgentID:    cs.AgentID,
		StartedAt:  cs.StartedAt,
		DurationMs: cs.Duration.Milliseconds(),
		Scanned:    cs.Scanned,
		Analyzed:   cs.Analyzed,
		Traded:     cs.Traded,
		Skipped:    cs.Skipped,
		Errors:     cs.Errors,
		Notes:      cs.Notes,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RecentCycles returns the latest cycle records, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleStats, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []cycleStatsModel
	err := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]CycleStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, CycleStats{
			AgentID:   r.AgentID,
			StartedAt: r.StartedAt,
			Duration:  time.Duration(r.DurationMs) * time.Millisecond,
			Scanned:   r.Scanned,
			Analyzed:  r.Analyzed,
			Traded:    r.Traded,
			Skipped:   r.Skipped,
			Errors:    r.Errors,
			Notes:     r.Notes,
		})
	}
	return out, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, v portfolio.View) error {
	m := snapshotModel{
		CreatedAt:         time.Now(),
		Cash:              v.Cash.String(),
		RealizedPnL:       v.RealizedPnL.String(),
		PeakBalance:       v.PeakBalance.String(),
		MaxDrawdown:       v.MaxDrawdown.String(),
		Wins:              v.Wins,
		Losses:            v.Losses,
		ConsecutiveLosses: v.ConsecutiveLosses,
		Paused:            v.Paused,
		OpenCount:         v.OpenCount(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RestoredState is the persisted portfolio as of the latest snapshot.
type RestoredState struct {
	Found             bool
	Cash              decimal.Decimal
	RealizedPnL       decimal.Decimal
	PeakBalance       decimal.Decimal
	MaxDrawdown       decimal.Decimal
	Wins              int
	Losses            int
	ConsecutiveLosses int
	Paused            bool
	Open              []portfolio.Position
}

// LoadState reads the newest snapshot plus open positions. A fresh database
// returns Found=false and the caller starts from the configured balance.
func (s *Store) LoadState(ctx context.Context) (RestoredState, error) {
	var snap snapshotModel
	err := s.db.WithContext(ctx).Order("id desc").First(&snap).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return RestoredState{}, nil
		}
		return RestoredState{}, err
	}
	open, err := s.OpenPositions(ctx)
	if err != nil {
		return RestoredState{}, err
	}
	return RestoredState{
		Found:             true,
		Cash:              dec(snap.Cash),
		RealizedPnL:       dec(snap.RealizedPnL),
		PeakBalance:       dec(snap.PeakBalance),
		MaxDrawdown:       dec(snap.MaxDrawdown),
		Wins:              snap.Wins,
		Losses:            snap.Losses,
		ConsecutiveLosses: snap.ConsecutiveLosses,
		Paused:            snap.Paused,
		Open:              open,
	}, nil
}

func toModel(p portfolio.Position) positionModel {
	m := positionModel{
		ID:            p.ID,
		OpenedAt:      p.OpenedAt,
		MarketID:      p.MarketID,
		Question:      p.Question,
		TokenID:       p.TokenID,
		Side:          string(p.Side),
		Mode:          string(p.Mode),
		Category:      p.Category,
		RawEntryPrice: p.RawEntryPrice.String(),
		EntryPrice:    p.EntryPrice.String(),
		Stake:         p.Stake.String(),
		Shares:        p.Shares.String(),
		TakeProfit:    p.TakeProfit.String(),
		StopLoss:      p.StopLoss.String(),
		FairValue:     p.FairValue.String(),
		Confidence:    p.Confidence,
		FeesPaid:      p.FeesPaid.String(),
		Status:        string(p.Status),
		ExitPrice:     p.ExitPrice.String(),
		RawExitPrice:  p.RawExitPrice.String(),
		ExitReason:    string(p.ExitReason),
		PnL:           p.PnL.String(),
	}
	if !p.Deadline.IsZero() {
		d := p.Deadline
		m.Deadline = &d
	}
	if !p.ClosedAt.IsZero() {
		c := p.ClosedAt
		m.ClosedAt = &c
	}
	return m
}

func fromModel(m positionModel) portfolio.Position {
	p := portfolio.Position{
		ID:            m.ID,
		OpenedAt:      m.OpenedAt,
		MarketID:      m.MarketID,
		Question:      m.Question,
		TokenID:       m.TokenID,
		Side:          market.Side(m.Side),
		Mode:          portfolio.Mode(m.Mode),
		Category:      m.Category,
		RawEntryPrice: dec(m.RawEntryPrice),
		EntryPrice:    dec(m.EntryPrice),
		Stake:         dec(m.Stake),
		Shares:        dec(m.Shares),
		TakeProfit:    dec(m.TakeProfit),
		StopLoss:      dec(m.StopLoss),
		FairValue:     dec(m.FairValue),
		Confidence:    m.Confidence,
		FeesPaid:      dec(m.FeesPaid),
		Status:        portfolio.Status(m.Status),
		ExitPrice:     dec(m.ExitPrice),
		RawExitPrice:  dec(m.RawExitPrice),
		ExitReason:    portfolio.ExitReason(m.ExitReason),
		PnL:           dec(m.PnL),
	}
	if m.Deadline != nil {
		p.Deadline = *m.Deadline
	}
	if m.ClosedAt != nil {
		p.ClosedAt = *m.ClosedAt
	}
	return p
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
