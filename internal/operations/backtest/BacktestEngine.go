package backtest

import (
	"context"
	"fmt"

	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/models"
	"CryptoBacktester/internal/services/indicators"
	"CryptoBacktester/internal/services/prediction"

	"go.uber.org/zap"
)

// IndicatorProvider computes an indicator snapshot over a candle window.
// Pure function of the window; short windows clamp instead of erroring.
type IndicatorProvider interface {
	Compute(symbol string, window []models.Price) *indicators.Snapshot
}

// Engine replays one symbol's candle history in a single deterministic
// pass and drives the portfolio. Decisions are made on candle i and
// filled at candle i+1's open, so the last index is reserved and no
// signal can see its own fill.
type Engine struct {
	config     Config
	portfolio  *VirtualPortfolio
	indicators IndicatorProvider
	predictor  prediction.Predictor
	breaker    *CircuitBreakerState
	log        *logger.Logger
}

func NewEngine(cfg Config, provider IndicatorProvider, predictor prediction.Predictor, breaker *CircuitBreakerState, log *logger.Logger) *Engine {
	if breaker == nil {
		breaker = &CircuitBreakerState{}
	}

	return &Engine{
		config:     cfg,
		portfolio:  NewVirtualPortfolio(cfg, log),
		indicators: provider,
		predictor:  predictor,
		breaker:    breaker,
		log:        log,
	}
}

// Portfolio exposes the ledger owned by this engine.
func (e *Engine) Portfolio() *VirtualPortfolio {
	return e.portfolio
}

// Run replays the candle series and produces the final report. The series
// must be strictly ascending by open time and hold at least the lookback
// plus one fill candle, otherwise the run is refused. A context passed
// here only bounds the predictor calls; the loop itself always runs to
// the end of the series.
func (e *Engine) Run(ctx context.Context, symbol string, candles []models.Price) (*Report, error) {
	start := e.config.StartFromIndex
	if start < e.config.Lookback {
		start = e.config.Lookback
	}

	// i+1 must stay valid, so the last candle is never a decision step.
	end := len(candles) - 1
	if e.config.Limit > 0 && start+e.config.Limit < end {
		end = start + e.config.Limit
	}

	if len(candles) < start+2 {
		return nil, fmt.Errorf("backtest %s: %w: have %d candles, need %d",
			symbol, ErrInsufficientHistory, len(candles), start+2)
	}

	e.log.Info("backtest started",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)),
		zap.Int("start_index", start),
	)

	steps := 0

	for i := start; i < end; i++ {
		decision := candles[i]
		next := candles[i+1]
		steps++

		// Stop enforcement runs against the fill candle's extremes before
		// any other logic; a stop-out consumes the whole step.
		if trade, err := e.enforceStop(symbol, next); err != nil {
			return nil, fmt.Errorf("backtest %s step %d: %w", symbol, i, err)
		} else if trade != nil {
			continue
		}

		window := e.window(candles, i)
		snapshot := e.indicators.Compute(symbol, window)
		pred := e.predict(ctx, symbol, window)

		price := decision.Close
		trendBullish := snapshot.EMA200 > 0 && price > snapshot.EMA200
		trendBearish := snapshot.EMA200 > 0 && price < snapshot.EMA200

		if pos := e.portfolio.Position(symbol); pos == nil {
			e.evaluateEntry(symbol, next, snapshot, pred, trendBullish, trendBearish, decision)
		} else if err := e.evaluateFlip(symbol, pos, pred, next); err != nil {
			return nil, fmt.Errorf("backtest %s step %d: %w", symbol, i, err)
		}
	}

	stats := e.portfolio.GetStats()

	e.log.Info("backtest finished",
		zap.String("symbol", symbol),
		zap.Int("steps", steps),
		zap.Int("trades", stats.TotalTrades),
		zap.Float64("final_balance", stats.FinalBalance),
	)

	return &Report{
		Symbol:           symbol,
		InitialCapital:   e.config.InitialCapital,
		CandlesProcessed: steps,
		Stats:            stats,
		Trades:           e.portfolio.TradeHistory(),
	}, nil
}

// enforceStop tests an open stop against the fill candle and closes at
// the breaching extreme.
func (e *Engine) enforceStop(symbol string, next models.Price) (*models.TradeResult, error) {
	pos := e.portfolio.Position(symbol)
	if pos == nil || pos.StopLoss <= 0 {
		return nil, nil
	}

	extreme := next.Low
	if pos.Side == models.PositionSideShort {
		extreme = next.High
	}

	return e.portfolio.CheckStops(symbol, extreme, next.OpenTime)
}

// window returns the trailing context window ending at index i, clamped
// near the start of the series.
func (e *Engine) window(candles []models.Price, i int) []models.Price {
	from := i + 1 - e.config.WindowSize
	if from < 0 {
		from = 0
	}
	return candles[from : i+1]
}

// predict wraps the predictor so a failure or empty result degrades to
// neutral. Prediction problems must never halt a backtest.
func (e *Engine) predict(ctx context.Context, symbol string, window []models.Price) *prediction.Prediction {
	pred, err := e.predictor.Predict(ctx, symbol, window)
	if err != nil {
		e.log.Warn("prediction failed, treating as neutral",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return prediction.Neutral()
	}
	if pred == nil {
		return prediction.Neutral()
	}
	return pred
}

// evaluateEntry applies the entry ladder: model-confirmed entries first,
// technical mean-reversion fallbacks second. First match wins. Entries
// are gated by the daily-loss circuit breaker and always fill at the
// next candle's open.
func (e *Engine) evaluateEntry(symbol string, next models.Price, snapshot *indicators.Snapshot, pred *prediction.Prediction, trendBullish, trendBearish bool, decision models.Price) {
	e.breaker.LastCheck = decision.OpenTime
	if e.portfolio.IsCircuitBreakerActive(e.config.DailyLossPercent, decision.OpenTime) {
		if !e.breaker.Tripped {
			e.breaker.Tripped = true
			e.log.Warn("daily loss circuit breaker tripped, entries suspended",
				zap.String("symbol", symbol),
				zap.Float64("daily_pnl_percent", e.portfolio.GetDailyPnL(decision.OpenTime)),
			)
		}
		return
	}
	e.breaker.Tripped = false

	fill := next.Open
	balance := e.portfolio.Balance()
	oversold := snapshot.RSI > 0 && snapshot.RSI < e.config.OversoldRSI
	overbought := snapshot.RSI > e.config.OverboughtRSI

	mlConfirmed := pred.Confidence > e.config.MinMLConfidence

	switch {
	case pred.Signal == prediction.SignalBullish && mlConfirmed && trendBullish:
		e.portfolio.OpenPosition(symbol, models.PositionSideLong, fill,
			balance*e.config.MLSizeFraction, fill*(1-e.config.StopLossPercent), next.OpenTime)
	case pred.Signal == prediction.SignalBearish && mlConfirmed && trendBearish:
		e.portfolio.OpenPosition(symbol, models.PositionSideShort, fill,
			balance*e.config.MLSizeFraction, fill*(1+e.config.StopLossPercent), next.OpenTime)
	case trendBullish && oversold:
		e.portfolio.OpenPosition(symbol, models.PositionSideLong, fill,
			balance*e.config.TechnicalSizeFraction, fill*(1-e.config.StopLossPercent), next.OpenTime)
	case trendBearish && overbought:
		e.portfolio.OpenPosition(symbol, models.PositionSideShort, fill,
			balance*e.config.TechnicalSizeFraction, fill*(1+e.config.StopLossPercent), next.OpenTime)
	}
}

// evaluateFlip closes the held position when the predictor reverses
// against it with high confidence.
func (e *Engine) evaluateFlip(symbol string, pos *Position, pred *prediction.Prediction, next models.Price) error {
	if pred.Confidence <= e.config.FlipConfidence {
		return nil
	}

	flipped := (pos.Side == models.PositionSideLong && pred.Signal == prediction.SignalBearish) ||
		(pos.Side == models.PositionSideShort && pred.Signal == prediction.SignalBullish)
	if !flipped {
		return nil
	}

	_, err := e.portfolio.ClosePosition(symbol, next.Open, models.CloseReasonMLFlip, next.OpenTime)
	return err
}
