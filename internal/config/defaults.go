package config

func (c *Config) applyDefaults() {
	if c.App.AgentID == "" {
		c.App.AgentID = "default"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.StopFile == "" {
		c.App.StopFile = "STOP"
	}

	if c.Market.GammaAPI == "" {
		c.Market.GammaAPI = "https://gamma-api.polymarket.com"
	}
	if c.Market.ClobAPI == "" {
		c.Market.ClobAPI = "https://clob.polymarket.com"
	}
	if c.Market.MaxMarketsScan <= 0 {
		c.Market.MaxMarketsScan = 700
	}
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = 10
	}

	if c.Analysis.Provider == "" {
		c.Analysis.Provider = "scout"
	}
	if c.Analysis.MaxCandidates <= 0 {
		c.Analysis.MaxCandidates = 20
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = 60
	}
	if c.Analysis.MaxRetries <= 0 {
		c.Analysis.MaxRetries = 3
	}
	if c.Analysis.BreakerThreshold <= 0 {
		c.Analysis.BreakerThreshold = 5
	}
	if c.Analysis.BreakerCooldownSeconds <= 0 {
		c.Analysis.BreakerCooldownSeconds = 300
	}

	if c.Trading.InitialBalance <= 0 {
		c.Trading.InitialBalance = 30.00
	}
	if c.Trading.MaxPositionPct <= 0 {
		c.Trading.MaxPositionPct = 0.08
	}
	if c.Trading.MinEdge <= 0 {
		c.Trading.MinEdge = 0.08
	}
	if c.Trading.MinConfidence <= 0 {
		c.Trading.MinConfidence = 0.60
	}
	if c.Trading.KillThreshold <= 0 {
		c.Trading.KillThreshold = 15.00
	}
	if c.Trading.KellyFraction <= 0 {
		c.Trading.KellyFraction = 0.40
	}
	if c.Trading.ReservePct < 0 {
		c.Trading.ReservePct = 0
	} else if c.Trading.ReservePct == 0 {
		c.Trading.ReservePct = 0.10
	}
	if c.Trading.MaxOpenPositions <= 0 {
		c.Trading.MaxOpenPositions = 8
	}
	if c.Trading.MaxSpread <= 0 {
		c.Trading.MaxSpread = 0.05
	}
	if c.Trading.MinStakeUSD <= 0 {
		c.Trading.MinStakeUSD = 0.10
	}
	if c.Trading.MaxEdgeSanity <= 0 {
		c.Trading.MaxEdgeSanity = 0.35
	}
	if c.Trading.SurvivalBufferMult <= 0 {
		c.Trading.SurvivalBufferMult = 2.0
	}

	if c.Schedule.ScanIntervalSecs <= 0 {
		c.Schedule.ScanIntervalSecs = 1800
	}
	if c.Schedule.PriceCheckSecs < 0 {
		c.Schedule.PriceCheckSecs = 0
	} else if c.Schedule.PriceCheckSecs == 0 {
		c.Schedule.PriceCheckSecs = 90
	}
	if c.Schedule.JitterMaxSecs < 0 {
		c.Schedule.JitterMaxSecs = 0
	} else if c.Schedule.JitterMaxSecs == 0 {
		c.Schedule.JitterMaxSecs = 300
	}
	if c.Schedule.ReportIntervalHrs <= 0 {
		c.Schedule.ReportIntervalHrs = 12
	}

	applySimDefaults(&c.Sim)

	if c.Live.FillTimeoutSec <= 0 {
		c.Live.FillTimeoutSec = 60
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/polyagent.db"
	}
}

func applySimDefaults(s *SimConfig) {
	if s.GasFeeMin <= 0 {
		s.GasFeeMin = 0.01
	}
	if s.GasFeeMax <= 0 {
		s.GasFeeMax = 0.05
	}
	if s.PlatformFeePct <= 0 {
		s.PlatformFeePct = 0.02
	}
	if s.BaseSlippagePct <= 0 {
		s.BaseSlippagePct = 0.001
	}
	if s.SizePenaltyPct <= 0 {
		s.SizePenaltyPct = 0.005
	}
	if s.SizePenaltyThreshold <= 0 {
		s.SizePenaltyThreshold = 1.00
	}
	if s.MaxSlippagePct <= 0 {
		s.MaxSlippagePct = 0.005
	}
	if s.RejectProbability <= 0 {
		s.RejectProbability = 0.05
	}
	if s.PartialFillProb <= 0 {
		s.PartialFillProb = 0.15
	}
	if s.MinLiquidityVolume <= 0 {
		s.MinLiquidityVolume = 10.00
	}
	if s.ImpactThreshold <= 0 {
		s.ImpactThreshold = 2.00
	}
	if s.ImpactPerDollarPct <= 0 {
		s.ImpactPerDollarPct = 0.003
	}
}
