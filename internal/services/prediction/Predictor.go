package prediction

import (
	"context"

	"CryptoBacktester/internal/models"
)

type Signal string

const (
	SignalBullish Signal = "BULLISH"
	SignalBearish Signal = "BEARISH"
	SignalNeutral Signal = "NEUTRAL"
)

// Prediction is a directional call over one candle window.
// Confidence is in [0, 1].
type Prediction struct {
	Signal     Signal
	Confidence float64
}

// Predictor turns a candle window into a directional prediction. A nil
// prediction means "no opinion". Implementations may fail; callers must
// treat both failure and nil as neutral rather than aborting.
type Predictor interface {
	Predict(ctx context.Context, symbol string, window []models.Price) (*Prediction, error)
}

// Neutral is the zero-confidence prediction used when a predictor fails
// or returns nothing.
func Neutral() *Prediction {
	return &Prediction{Signal: SignalNeutral, Confidence: 0}
}
