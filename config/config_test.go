package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: simulated
  seed: 42
symbols:
  critical: [BTCUSDT]
  tracked: [BTCUSDT, ETHUSDT]
engine:
  initial_cash: 500000
web:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Feed.Seed)
	assert.Equal(t, []string{"BTCUSDT"}, cfg.Symbols.Critical)
	assert.Equal(t, "500000", cfg.Engine.InitialCash.String())
	assert.Equal(t, ":9090", cfg.Web.Addr)
	// untouched sections keep defaults
	assert.True(t, cfg.Engine.BuyEnabled)
	assert.Equal(t, "portfolio", cfg.State.Name)
}

func TestLoadRejectsBinanceWithoutKeys(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: binance
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadRejectsUnknownFeedMode(t *testing.T) {
	path := writeConfig(t, `
feed:
  mode: carrier-pigeon
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveCash(t *testing.T) {
	path := writeConfig(t, `
engine:
  initial_cash: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_cash")
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
