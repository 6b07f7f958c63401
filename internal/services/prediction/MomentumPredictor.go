package prediction

import (
	"context"
	"math"

	"CryptoBacktester/internal/models"
	"CryptoBacktester/internal/services/indicators"
)

const (
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9

	trendPeriod = 50

	// Scoring weights
	macdWeight  = 0.40
	trendWeight = 0.35
	rsiWeight   = 0.25
)

// MomentumPredictor is the built-in statistical predictor. It scores the
// window on MACD histogram momentum, EMA trend slope, and RSI bias, and
// maps the combined score to a direction with a confidence.
type MomentumPredictor struct {
	ema  *indicators.EMAService
	rsi  *indicators.RSIService
	macd *indicators.MACDService
}

func NewMomentumPredictor() *MomentumPredictor {
	return &MomentumPredictor{
		ema:  indicators.NewEMAService(),
		rsi:  indicators.NewRSIService(),
		macd: indicators.NewMACDService(),
	}
}

// Predict implements Predictor. Returns nil when the window is too short
// to score.
func (p *MomentumPredictor) Predict(ctx context.Context, symbol string, window []models.Price) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minLength := macdSlowPeriod + macdSignalPeriod
	if len(window) < minLength {
		return nil, nil
	}

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}

	score := macdWeight*p.macdScore(closes) +
		trendWeight*p.trendScore(closes) +
		rsiWeight*p.rsiScore(closes)

	confidence := math.Min(math.Abs(score), 1.0)

	switch {
	case score > 0:
		return &Prediction{Signal: SignalBullish, Confidence: confidence}, nil
	case score < 0:
		return &Prediction{Signal: SignalBearish, Confidence: confidence}, nil
	default:
		return &Prediction{Signal: SignalNeutral, Confidence: 0}, nil
	}
}

// macdScore maps the latest histogram value, normalized by price, to [-1, 1].
func (p *MomentumPredictor) macdScore(closes []float64) float64 {
	result := p.macd.Calculate(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	if result == nil {
		return 0
	}

	last := len(closes) - 1
	histogram := result.Histogram[last]
	price := closes[last]
	if price == 0 {
		return 0
	}

	// 0.5% of price saturates the score
	return clamp(histogram/(price*0.005), -1, 1)
}

// trendScore measures the distance of price from its trend EMA.
func (p *MomentumPredictor) trendScore(closes []float64) float64 {
	trendEMA := p.ema.Latest(closes, trendPeriod)
	if trendEMA == 0 {
		return 0
	}

	price := closes[len(closes)-1]

	// 2% above/below the EMA saturates the score
	return clamp((price-trendEMA)/(trendEMA*0.02), -1, 1)
}

// rsiScore maps RSI distance from the neutral 50 line to [-1, 1].
func (p *MomentumPredictor) rsiScore(closes []float64) float64 {
	rsi := p.rsi.Latest(closes, indicators.RSIPeriod)
	if rsi == 0 {
		return 0
	}
	return clamp((rsi-50)/50, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
