package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBacktestProfileDefaults(t *testing.T) {
	profile, err := LoadBacktestProfile(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 10000.0, profile.InitialCapital)
	assert.Equal(t, 0.001, profile.FeeRate)
	assert.Equal(t, 0.0005, profile.SlippageRate)
	assert.Equal(t, 200, profile.Lookback)
	assert.Equal(t, 1000, profile.WindowSize)
	assert.Equal(t, 200, profile.StartFromIndex)
	assert.Equal(t, 0.10, profile.MLSizeFraction)
	assert.Equal(t, 0.05, profile.TechnicalSizeFraction)
	assert.Equal(t, "1h", profile.TimeFrame)
	require.NotNil(t, profile.AllInFallback)
	assert.True(t, *profile.AllInFallback)
}

func TestLoadBacktestProfileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	content := []byte(`
initial_capital: 5000
fee_rate: 0.002
lookback: 300
timeframe: 4h
all_in_fallback: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	profile, err := LoadBacktestProfile(path)

	require.NoError(t, err)
	assert.Equal(t, 5000.0, profile.InitialCapital)
	assert.Equal(t, 0.002, profile.FeeRate)
	assert.Equal(t, 300, profile.Lookback)
	assert.Equal(t, 300, profile.StartFromIndex) // follows lookback when unset
	assert.Equal(t, "4h", profile.TimeFrame)
	require.NotNil(t, profile.AllInFallback)
	assert.False(t, *profile.AllInFallback)
}

func TestLoadBacktestProfileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial_capital: [oops"), 0o644))

	_, err := LoadBacktestProfile(path)
	assert.Error(t, err)
}
