package backtest

import (
	"errors"
	"time"

	"CryptoBacktester/internal/models"
)

var (
	// ErrPositionNotFound signals a close against a symbol with no open
	// position. This is a bookkeeping bug in the caller, never swallowed.
	ErrPositionNotFound = errors.New("no open position for symbol")

	// ErrInsufficientHistory signals a run attempted with fewer candles
	// than the configured indicator lookback.
	ErrInsufficientHistory = errors.New("not enough candles for configured lookback")
)

// Position is one open simulated trade. At most one exists per symbol;
// it is created by OpenPosition and destroyed by ClosePosition, never
// mutated in between.
type Position struct {
	Symbol     string
	Side       string
	EntryPrice float64
	SizeUSD    float64 // gross notional locked as margin
	AmountCoin float64 // net units held after entry fee and slippage
	StopLoss   float64 // 0 means no stop
	OpenTime   time.Time
}

// EquityPoint is one point of the trade-close equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Balance   float64
}

// Stats are derived from closed trades only; open positions never count.
type Stats struct {
	TotalTrades  int
	WinRate      float64 // percent
	ProfitFactor float64 // +Inf when profitable with zero losing trades
	MaxDrawdown  float64 // percent, from the trade-close equity curve
	ROI          float64 // percent
	FinalBalance float64
	EquityCurve  []float64
}

// Report is the final output of one simulation run.
type Report struct {
	Symbol           string
	InitialCapital   float64
	CandlesProcessed int
	Stats            Stats
	Trades           []models.TradeResult
}

// CircuitBreakerState is the daily-loss breaker, owned by the caller and
// passed into the engine. Keeping it an explicit value avoids hidden
// coupling between runs.
type CircuitBreakerState struct {
	Tripped   bool
	LastCheck time.Time
}

// Config controls one simulation run.
type Config struct {
	InitialCapital float64
	FeeRate        float64
	SlippageRate   float64

	Lookback       int
	WindowSize     int
	StartFromIndex int
	Limit          int // 0 scans the full series

	MLSizeFraction        float64
	TechnicalSizeFraction float64
	StopLossPercent       float64

	OversoldRSI     float64
	OverboughtRSI   float64
	MinMLConfidence float64
	FlipConfidence  float64

	DailyLossPercent float64
	AllInFallback    bool
}

// NewConfig returns the default simulation config.
func NewConfig() Config {
	return Config{
		InitialCapital:        10000.0,
		FeeRate:               0.001,
		SlippageRate:          0.0005,
		Lookback:              200,
		WindowSize:            1000,
		StartFromIndex:        200,
		MLSizeFraction:        0.10,
		TechnicalSizeFraction: 0.05,
		StopLossPercent:       0.02,
		OversoldRSI:           35,
		OverboughtRSI:         65,
		MinMLConfidence:       0.01,
		FlipConfidence:        0.8,
		DailyLossPercent:      5.0,
		AllInFallback:         true,
	}
}
