package config

// Config is the main configuration carrier. One immutable value is built at
// startup and passed explicitly into every component; there is no ambient
// global configuration state.
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Analysis AnalysisConfig `toml:"analysis"`
	Trading  TradingConfig  `toml:"trading"`
	Schedule ScheduleConfig `toml:"schedule"`
	Sim      SimConfig      `toml:"sim"`
	Live     LiveConfig     `toml:"live"`
	Storage  StorageConfig  `toml:"storage"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	AgentID  string `toml:"agent_id"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
	StopFile string `toml:"stop_file"`
}

type MarketConfig struct {
	GammaAPI       string `toml:"gamma_api"`
	ClobAPI        string `toml:"clob_api"`
	MaxMarketsScan int    `toml:"max_markets_scan"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AnalysisConfig describes the external analysis provider. The engine only
// consumes the verdict contract; which provider produces it is wiring.
type AnalysisConfig struct {
	Provider               string `toml:"provider"` // "scout" | "llm"
	APIURL                 string `toml:"api_url"`
	APIKey                 string `toml:"api_key"`
	Model                  string `toml:"model"`
	MaxCandidates          int    `toml:"max_candidates"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	MaxRetries             int    `toml:"max_retries"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

// TradingConfig holds the survival constraints and sizing parameters.
// Percentages are fractions in [0,1].
type TradingConfig struct {
	Paper            bool    `toml:"paper"`
	InitialBalance   float64 `toml:"initial_balance"`
	MaxPositionPct   float64 `toml:"max_position_pct"`
	MinEdge          float64 `toml:"min_edge"`
	MinConfidence    float64 `toml:"min_confidence"`
	KillThreshold    float64 `toml:"kill_threshold"`
	KellyFraction    float64 `toml:"kelly_fraction"`
	ReservePct       float64 `toml:"reserve_pct"`
	MaxOpenPositions int     `toml:"max_open_positions"`
	MaxSpread        float64 `toml:"max_spread"`
	MinStakeUSD      float64 `toml:"min_stake_usd"`
	MaxEdgeSanity    float64 `toml:"max_edge_sanity"`

	// Survival mode engages below kill_threshold * survival_buffer_mult.
	SurvivalBufferMult float64 `toml:"survival_buffer_mult"`

	// Nonzero values override the mode-derived exit thresholds uniformly.
	// Zero means "defer to mode rule", not "no exit".
	ExitTPPct float64 `toml:"exit_tp_pct"`
	ExitSLPct float64 `toml:"exit_sl_pct"`
}

type ScheduleConfig struct {
	ScanIntervalSecs  int `toml:"scan_interval_secs"`
	PriceCheckSecs    int `toml:"price_check_secs"`
	JitterMaxSecs     int `toml:"jitter_max_secs"`
	ReportIntervalHrs int `toml:"report_interval_hours"`
}

// SimConfig tunes the simulated executor. All randomness (gas jitter, fill
// simulation) flows from Seed so tests can pin it.
type SimConfig struct {
	FeesEnabled     bool    `toml:"fees_enabled"`
	SlippageEnabled bool    `toml:"slippage_enabled"`
	FillsEnabled    bool    `toml:"fills_enabled"`
	ImpactEnabled   bool    `toml:"impact_enabled"`

	GasFeeMin            float64 `toml:"gas_fee_min"`
	GasFeeMax            float64 `toml:"gas_fee_max"`
	PlatformFeePct       float64 `toml:"platform_fee_pct"`
	TakerFeePct          float64 `toml:"taker_fee_pct"`
	BaseSlippagePct      float64 `toml:"base_slippage_pct"`
	SizePenaltyPct       float64 `toml:"size_penalty_pct"`
	SizePenaltyThreshold float64 `toml:"size_penalty_threshold"`
	MaxSlippagePct       float64 `toml:"max_slippage_pct"`
	RejectProbability    float64 `toml:"reject_probability"`
	PartialFillProb      float64 `toml:"partial_fill_probability"`
	MinLiquidityVolume   float64 `toml:"min_liquidity_volume"`
	ImpactThreshold      float64 `toml:"impact_threshold"`
	ImpactPerDollarPct   float64 `toml:"impact_per_dollar_pct"`

	Seed int64 `toml:"seed"`
}

// LiveConfig carries venue credentials. Connection management belongs to the
// venue client, not the engine.
type LiveConfig struct {
	APIKey         string `toml:"api_key"`
	Secret         string `toml:"secret"`
	Passphrase     string `toml:"passphrase"`
	WalletAddress  string `toml:"wallet_address"`
	FillTimeoutSec int    `toml:"fill_timeout_seconds"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Console  ConsoleConfig  `toml:"console"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type ConsoleConfig struct {
	Enabled bool `toml:"enabled"`
}
