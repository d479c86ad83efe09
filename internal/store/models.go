package store

import "time"

// positionModel maps to 'positions'. Money and price columns are stored as
// decimal strings so round-tripping never loses cents.
type positionModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	OpenedAt      time.Time  `gorm:"column:opened_at"`
	MarketID      string     `gorm:"column:market_id;index"`
	Question      string     `gorm:"column:question"`
	TokenID       string     `gorm:"column:token_id"`
	Side          string     `gorm:"column:side"`
	Mode          string     `gorm:"column:mode"`
	Category      string     `gorm:"column:category"`
	RawEntryPrice string     `gorm:"column:raw_entry_price"`
	EntryPrice    string     `gorm:"column:entry_price"`
	Stake         string     `gorm:"column:stake"`
	Shares        string     `gorm:"column:shares"`
	TakeProfit    string     `gorm:"column:take_profit"`
	StopLoss      string     `gorm:"column:stop_loss"`
	Deadline      *time.Time `gorm:"column:deadline"`
	FairValue     string     `gorm:"column:fair_value"`
	Confidence    float64    `gorm:"column:confidence"`
	FeesPaid      string     `gorm:"column:fees_paid"`
	Status        string     `gorm:"column:status;index"`
	ExitPrice     string     `gorm:"column:exit_price"`
	RawExitPrice  string     `gorm:"column:raw_exit_price"`
	ExitReason    string     `gorm:"column:exit_reason"`
	PnL           string     `gorm:"column:pnl"`
	ClosedAt      *time.Time `gorm:"column:closed_at"`
}

func (positionModel) TableName() string { return "positions" }

// cycleStatsModel maps to 'cycle_stats', one row per completed scan tick.
type cycleStatsModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AgentID    string    `gorm:"column:agent_id;index"`
	StartedAt  time.Time `gorm:"column:started_at"`
	DurationMs int64     `gorm:"column:duration_ms"`
	Scanned    int       `gorm:"column:scanned"`
	Analyzed   int       `gorm:"column:analyzed"`
	Traded     int       `gorm:"column:traded"`
	Skipped    int       `gorm:"column:skipped"`
	Errors     int       `gorm:"column:errors"`
	Notes      string    `gorm:"column:notes"`
}

func (cycleStatsModel) TableName() string { return "cycle_stats" }

// snapshotModel maps to 'portfolio_snapshots'. The newest row is the
// restore point after a restart.
type snapshotModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt         time.Time `gorm:"column:created_at;index"`
	Cash              string    `gorm:"column:cash"`
	RealizedPnL       string    `gorm:"column:realized_pnl"`
	PeakBalance       string    `gorm:"column:peak_balance"`
	MaxDrawdown       string    `gorm:"column:max_drawdown"`
	Wins              int       `gorm:"column:wins"`
	Losses            int       `gorm:"column:losses"`
	ConsecutiveLosses int       `gorm:"column:consecutive_losses"`
	Paused            bool      `gorm:"column:paused"`
	OpenCount         int       `gorm:"column:open_count"`
}

func (snapshotModel) TableName() string { return "portfolio_snapshots" }
