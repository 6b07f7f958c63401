package indicators

import (
	"CryptoBacktester/internal/models"
)

const (
	RSIPeriod   = 14
	EMALongTerm = 200
)

// Snapshot holds the indicator values computed over one candle window.
// Fields the window is too short for are left at zero; callers that need
// defined values must supply enough history.
type Snapshot struct {
	Symbol string
	RSI    float64
	EMA200 float64
}

// Service computes indicator snapshots over rolling candle windows.
// Stateless per call.
type Service struct {
	ema *EMAService
	rsi *RSIService
}

func NewService() *Service {
	return &Service{
		ema: NewEMAService(),
		rsi: NewRSIService(),
	}
}

// Compute derives a snapshot from the closes of the window. Short windows
// are clamped, never an error: whatever cannot be computed stays zero.
func (s *Service) Compute(symbol string, window []models.Price) *Snapshot {
	closes := make([]float64, len(window))
	for i, p := range window {
		closes[i] = p.Close
	}

	return &Snapshot{
		Symbol: symbol,
		RSI:    s.rsi.Latest(closes, RSIPeriod),
		EMA200: s.ema.Latest(closes, EMALongTerm),
	}
}
