package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/models"
	"CryptoBacktester/internal/services/indicators"
	"CryptoBacktester/internal/services/prediction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedIndicators always reports the same snapshot.
type fixedIndicators struct {
	rsi    float64
	ema200 float64
}

func (f fixedIndicators) Compute(symbol string, window []models.Price) *indicators.Snapshot {
	return &indicators.Snapshot{Symbol: symbol, RSI: f.rsi, EMA200: f.ema200}
}

// scriptedPredictor replays a fixed sequence of outcomes, then neutral.
type scriptedPredictor struct {
	outcomes []func() (*prediction.Prediction, error)
	calls    int
}

func (p *scriptedPredictor) Predict(ctx context.Context, symbol string, window []models.Price) (*prediction.Prediction, error) {
	i := p.calls
	p.calls++
	if i < len(p.outcomes) {
		return p.outcomes[i]()
	}
	return prediction.Neutral(), nil
}

func bullish(confidence float64) func() (*prediction.Prediction, error) {
	return func() (*prediction.Prediction, error) {
		return &prediction.Prediction{Signal: prediction.SignalBullish, Confidence: confidence}, nil
	}
}

func bearish(confidence float64) func() (*prediction.Prediction, error) {
	return func() (*prediction.Prediction, error) {
		return &prediction.Prediction{Signal: prediction.SignalBearish, Confidence: confidence}, nil
	}
}

func failing() (*prediction.Prediction, error) {
	return nil, errors.New("model unavailable")
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.InitialCapital = 10000
	cfg.Lookback = 2
	cfg.StartFromIndex = 2
	cfg.WindowSize = 10
	return cfg
}

// flatCandles builds a series with distinct opens and closes so fills at
// the wrong price are detectable.
func flatCandles(n int, base float64) []models.Price {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Price, n)
	for i := range candles {
		candles[i] = models.Price{
			Symbol:    "BTCUSDT",
			TimeFrame: models.PriceTimeFrame1h,
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      base + 1,
			High:      base + 3,
			Low:       base - 1,
			Close:     base,
			Volume:    10,
		}
	}
	return candles
}

func newTestEngine(cfg Config, ind IndicatorProvider, pred prediction.Predictor) *Engine {
	return NewEngine(cfg, ind, pred, nil, logger.NewNop())
}

func TestRunInsufficientHistory(t *testing.T) {
	engine := newTestEngine(testConfig(), fixedIndicators{}, &scriptedPredictor{})

	_, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(3, 100))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestRunStartIndexClampedToLookback(t *testing.T) {
	cfg := testConfig()
	cfg.StartFromIndex = 0

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, &scriptedPredictor{})
	report, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))

	require.NoError(t, err)
	// Steps begin at the lookback index, not at zero.
	assert.Equal(t, 3, report.CandlesProcessed)
}

func TestMLEntryFillsAtNextBarOpen(t *testing.T) {
	cfg := testConfig()
	candles := flatCandles(6, 100) // closes 100, opens 101
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.5),
	}}

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred)
	_, err := engine.Run(context.Background(), "BTCUSDT", candles)
	require.NoError(t, err)

	pos := engine.Portfolio().Position("BTCUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, models.PositionSideLong, pos.Side)

	fill := candles[3].Open
	assert.InDelta(t, fill*(1+cfg.SlippageRate), pos.EntryPrice, 1e-9)
	assert.NotEqual(t, candles[2].Close*(1+cfg.SlippageRate), pos.EntryPrice)

	// ML-confirmed entries commit 10% of balance with a 2% protective stop.
	assert.InDelta(t, 1000.0, pos.SizeUSD, 1e-9)
	assert.InDelta(t, fill*0.98, pos.StopLoss, 1e-9)
	assert.Equal(t, 9000.0, engine.Portfolio().Balance())
}

func TestMLEntryRequiresTrendAgreement(t *testing.T) {
	cfg := testConfig()
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.9), bullish(0.9), bullish(0.9),
	}}

	// Price below EMA200: bullish calls are ignored.
	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 150}, pred)
	report, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))

	require.NoError(t, err)
	assert.Nil(t, engine.Portfolio().Position("BTCUSDT"))
	assert.Equal(t, 0, report.Stats.TotalTrades)
}

func TestTechnicalFallbackEntry(t *testing.T) {
	cfg := testConfig()

	// Neutral predictor, bullish trend, oversold momentum.
	engine := newTestEngine(cfg, fixedIndicators{rsi: 30, ema200: 90}, &scriptedPredictor{})
	_, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))
	require.NoError(t, err)

	pos := engine.Portfolio().Position("BTCUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, models.PositionSideLong, pos.Side)
	// Technical entries are half-size.
	assert.InDelta(t, 500.0, pos.SizeUSD, 1e-9)
}

func TestTechnicalShortEntry(t *testing.T) {
	cfg := testConfig()

	engine := newTestEngine(cfg, fixedIndicators{rsi: 70, ema200: 150}, &scriptedPredictor{})
	_, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))
	require.NoError(t, err)

	pos := engine.Portfolio().Position("BTCUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, models.PositionSideShort, pos.Side)
}

func TestMLEntryTakesPriorityOverTechnical(t *testing.T) {
	cfg := testConfig()
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.5),
	}}

	// Oversold RSI would also fire the technical rule; the model entry
	// must win and use full sizing.
	engine := newTestEngine(cfg, fixedIndicators{rsi: 30, ema200: 90}, pred)
	_, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))
	require.NoError(t, err)

	pos := engine.Portfolio().Position("BTCUSDT")
	require.NotNil(t, pos)
	assert.InDelta(t, 1000.0, pos.SizeUSD, 1e-9)
}

func TestPredictorFailureDegradesToNeutral(t *testing.T) {
	cfg := testConfig()
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		failing, failing, failing,
	}}

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred)
	report, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(6, 100))

	require.NoError(t, err)
	assert.Equal(t, 3, report.CandlesProcessed)
	assert.Equal(t, 0, report.Stats.TotalTrades)
}

func TestStopLossClosesBeforeEntryLogic(t *testing.T) {
	cfg := testConfig()
	candles := flatCandles(7, 100)
	// The long opened off candle 2 fills at candles[3].Open=101 with a
	// stop near 98.98. Candle 5 dips through it.
	candles[5].Low = 95

	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.5),
	}}

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred)
	report, err := engine.Run(context.Background(), "BTCUSDT", candles)
	require.NoError(t, err)

	require.Equal(t, 1, report.Stats.TotalTrades)
	trade := report.Trades[0]
	assert.Equal(t, models.CloseReasonStopLoss, trade.Reason)
	assert.Equal(t, 95.0, trade.ExitPrice)
	assert.Equal(t, candles[5].OpenTime, trade.ExitTime)
	assert.Nil(t, engine.Portfolio().Position("BTCUSDT"))
}

func TestMLFlipClosesPosition(t *testing.T) {
	cfg := testConfig()
	candles := flatCandles(7, 100)
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.5), // step i=2: opens long at candles[3].Open
		bearish(0.9), // step i=3: flips against the long
	}}

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred)
	report, err := engine.Run(context.Background(), "BTCUSDT", candles)
	require.NoError(t, err)

	require.Equal(t, 1, report.Stats.TotalTrades)
	trade := report.Trades[0]
	assert.Equal(t, models.CloseReasonMLFlip, trade.Reason)
	assert.Equal(t, candles[4].Open, trade.ExitPrice)
}

func TestLowConfidenceFlipIgnored(t *testing.T) {
	cfg := testConfig()
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.5),
		bearish(0.5), // below the flip threshold
	}}

	engine := newTestEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred)
	report, err := engine.Run(context.Background(), "BTCUSDT", flatCandles(7, 100))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Stats.TotalTrades)
	assert.NotNil(t, engine.Portfolio().Position("BTCUSDT"))
}

func TestCircuitBreakerBlocksEntries(t *testing.T) {
	cfg := testConfig()
	candles := flatCandles(6, 100)
	pred := &scriptedPredictor{outcomes: []func() (*prediction.Prediction, error){
		bullish(0.9), bullish(0.9), bullish(0.9),
	}}

	breaker := &CircuitBreakerState{}
	engine := NewEngine(cfg, fixedIndicators{rsi: 50, ema200: 90}, pred, breaker, logger.NewNop())

	// Seed a fresh heavy loss so the daily limit is already breached.
	engine.Portfolio().balance = 9000
	engine.Portfolio().tradeHistory = append(engine.Portfolio().tradeHistory, models.TradeResult{
		PnLUSD:   -1000,
		ExitTime: candles[2].OpenTime.Add(-time.Hour),
	})

	report, err := engine.Run(context.Background(), "BTCUSDT", candles)
	require.NoError(t, err)

	assert.Nil(t, engine.Portfolio().Position("BTCUSDT"))
	assert.Equal(t, 1, report.Stats.TotalTrades) // only the seeded trade
	assert.True(t, breaker.Tripped)
	assert.Equal(t, candles[4].OpenTime, breaker.LastCheck)
}
