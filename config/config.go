package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func Load() (*config, error) {
	if err := godotenv.Load(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	return &config{
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		},
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     EnvtoInt(os.Getenv("DB_PORT")),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Symbols: getSymbols(),
	}, nil
}

// LoadBacktestProfile reads the simulation profile from a YAML file and
// fills in defaults for anything left unset. A missing file yields the
// pure default profile.
func LoadBacktestProfile(path string) (*BacktestProfile, error) {
	profile := &BacktestProfile{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, profile); err != nil {
			return nil, fmt.Errorf("error parsing backtest profile %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading backtest profile %s: %w", path, err)
	}

	applyProfileDefaults(profile)
	return profile, nil
}

func applyProfileDefaults(p *BacktestProfile) {
	if p.InitialCapital <= 0 {
		p.InitialCapital = 10000.0
	}
	if p.FeeRate <= 0 {
		p.FeeRate = 0.001
	}
	if p.SlippageRate <= 0 {
		p.SlippageRate = 0.0005
	}
	if p.Lookback <= 0 {
		p.Lookback = 200
	}
	if p.WindowSize <= 0 {
		p.WindowSize = 1000
	}
	if p.StartFromIndex <= 0 {
		p.StartFromIndex = p.Lookback
	}
	if p.MLSizeFraction <= 0 {
		p.MLSizeFraction = 0.10
	}
	if p.TechnicalSizeFraction <= 0 {
		p.TechnicalSizeFraction = 0.05
	}
	if p.StopLossPercent <= 0 {
		p.StopLossPercent = 0.02
	}
	if p.OversoldRSI <= 0 {
		p.OversoldRSI = 35
	}
	if p.OverboughtRSI <= 0 {
		p.OverboughtRSI = 65
	}
	if p.MinMLConfidence <= 0 {
		p.MinMLConfidence = 0.01
	}
	if p.FlipConfidence <= 0 {
		p.FlipConfidence = 0.8
	}
	if p.DailyLossPercent <= 0 {
		p.DailyLossPercent = 5.0
	}
	if p.AllInFallback == nil {
		allIn := true
		p.AllInFallback = &allIn
	}
	if p.TimeFrame == "" {
		p.TimeFrame = "1h"
	}
	if p.BackfillDays <= 0 {
		p.BackfillDays = 60
	}
}

// helper env(string) to int
func EnvtoInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// helper to get symbols
func getSymbols() []string {
	symbols := os.Getenv("TRADING_SYMBOLS")
	if symbols == "" {
		return []string{"BTCUSDT", "ETHUSDT"} // Default pairs if none specified
	}
	return strings.Split(symbols, ",")
}
