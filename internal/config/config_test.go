package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  agent_id: agent-1
trading:
  initial_balance: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agent-1", cfg.App.AgentID)
	assert.True(t, cfg.Trading.Paper)
	assert.Equal(t, 30.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 15.0, cfg.Trading.KillThreshold)
	assert.Equal(t, 0.08, cfg.Trading.MaxPositionPct)
	assert.Equal(t, 0.10, cfg.Trading.ReservePct)
	assert.Equal(t, 8, cfg.Trading.MaxOpenPositions)
	assert.Equal(t, 2.0, cfg.Trading.SurvivalBufferMult)
	assert.Equal(t, "scout", cfg.Analysis.Provider)
	assert.Equal(t, 1800, cfg.Schedule.ScanIntervalSecs)
	assert.Equal(t, "data/polyagent.db", cfg.Storage.DBPath)
}

func TestEnvOverridesKeyAbsentFromFile(t *testing.T) {
	// Secrets typically arrive via .env with no placeholder in the YAML.
	t.Setenv("POLYAGENT_ANALYSIS_API_KEY", "sk-from-env")
	t.Setenv("POLYAGENT_TRADING_MIN_EDGE", "0.07")

	path := writeConfig(t, `
app:
  agent_id: agent-1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.Analysis.APIKey)
	assert.Equal(t, 0.07, cfg.Trading.MinEdge)
}

func TestEnvOverridesKeyPresentInFile(t *testing.T) {
	t.Setenv("POLYAGENT_TRADING_INITIAL_BALANCE", "50")

	path := writeConfig(t, `
trading:
  initial_balance: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Trading.InitialBalance)
}

func TestLoadRejectsKillAboveBalance(t *testing.T) {
	path := writeConfig(t, `
trading:
  initial_balance: 10
  kill_threshold: 12
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadRejectsBadPercent(t *testing.T) {
	path := writeConfig(t, `
trading:
  max_position_pct: 1.5
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLiveModeRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
trading:
  paper: false
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigInvalid)

	path = writeConfig(t, `
trading:
  paper: false
live:
  api_key: k
  secret: s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Trading.Paper)
}

func TestMonitorCadenceMustBeatScanCadence(t *testing.T) {
	path := writeConfig(t, `
schedule:
  scan_interval_secs: 60
  price_check_secs: 120
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrConfigInvalid)
}
