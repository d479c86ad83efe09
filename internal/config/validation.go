package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigInvalid marks configuration errors that must abort startup.
var ErrConfigInvalid = errors.New("config invalid")

func invalidf(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, v...))
}

func validate(c *Config) error {
	if err := validatePct("trading.max_position_pct", c.Trading.MaxPositionPct); err != nil {
		return err
	}
	if err := validatePct("trading.min_edge", c.Trading.MinEdge); err != nil {
		return err
	}
	if err := validatePct("trading.min_confidence", c.Trading.MinConfidence); err != nil {
		return err
	}
	if err := validatePct("trading.kelly_fraction", c.Trading.KellyFraction); err != nil {
		return err
	}
	if err := validatePct("trading.reserve_pct", c.Trading.ReservePct); err != nil {
		return err
	}
	if err := validatePct("trading.max_spread", c.Trading.MaxSpread); err != nil {
		return err
	}
	if c.Trading.ExitTPPct < 0 || c.Trading.ExitSLPct < 0 {
		return invalidf("trading.exit_tp_pct / exit_sl_pct must be >= 0")
	}
	if c.Trading.KillThreshold >= c.Trading.InitialBalance {
		return invalidf("trading.kill_threshold %.2f must be below initial_balance %.2f",
			c.Trading.KillThreshold, c.Trading.InitialBalance)
	}

	switch strings.ToLower(c.Analysis.Provider) {
	case "scout":
	case "llm":
		if c.Analysis.APIURL == "" || c.Analysis.APIKey == "" {
			return invalidf("analysis.api_url and api_key are required for provider=llm")
		}
	default:
		return invalidf("analysis.provider must be \"scout\" or \"llm\", got %q", c.Analysis.Provider)
	}

	if !c.Trading.Paper {
		if c.Live.APIKey == "" || c.Live.Secret == "" {
			return invalidf("live credentials (live.api_key, live.secret) are required when trading.paper=false")
		}
	}

	if c.Schedule.PriceCheckSecs > 0 && c.Schedule.PriceCheckSecs >= c.Schedule.ScanIntervalSecs {
		return invalidf("schedule.price_check_secs %d must be shorter than scan_interval_secs %d",
			c.Schedule.PriceCheckSecs, c.Schedule.ScanIntervalSecs)
	}

	if c.Sim.GasFeeMin > c.Sim.GasFeeMax {
		return invalidf("sim.gas_fee_min %.4f > sim.gas_fee_max %.4f", c.Sim.GasFeeMin, c.Sim.GasFeeMax)
	}
	return nil
}

func validatePct(key string, val float64) error {
	if val < 0 || val > 1 {
		return invalidf("%s must be within [0,1], got %v", key, val)
	}
	return nil
}
