package config

type config struct {
	Exchange ExchangeConfig
	Database DatabaseConfig
	Symbols  []string
}

type ExchangeConfig struct {
	APIKey    string
	SecretKey string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// BacktestProfile is the YAML-configured simulation profile. Zero values
// fall back to the defaults applied in LoadBacktestProfile.
type BacktestProfile struct {
	InitialCapital float64 `yaml:"initial_capital"`
	FeeRate        float64 `yaml:"fee_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`

	// Lookback is the minimum candle history required before the first
	// decision step. Runs with fewer candles are refused.
	Lookback       int `yaml:"lookback"`
	WindowSize     int `yaml:"window_size"`
	StartFromIndex int `yaml:"start_from_index"`
	Limit          int `yaml:"limit"`

	MLSizeFraction        float64 `yaml:"ml_size_fraction"`
	TechnicalSizeFraction float64 `yaml:"technical_size_fraction"`
	StopLossPercent       float64 `yaml:"stop_loss_percent"`

	OversoldRSI      float64 `yaml:"oversold_rsi"`
	OverboughtRSI    float64 `yaml:"overbought_rsi"`
	MinMLConfidence  float64 `yaml:"min_ml_confidence"`
	FlipConfidence   float64 `yaml:"flip_confidence"`
	DailyLossPercent float64 `yaml:"daily_loss_percent"`

	// AllInFallback clamps an oversized entry to the remaining balance
	// instead of skipping it.
	AllInFallback *bool `yaml:"all_in_fallback"`

	TimeFrame    string `yaml:"timeframe"`
	BackfillDays int    `yaml:"backfill_days"`
}
