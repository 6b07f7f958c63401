package indicators

import "math"

type RSIService struct {
	ema *EMAService
}

func NewRSIService() *RSIService {
	return &RSIService{
		ema: NewEMAService(),
	}
}

// Calculate computes the RSI series using smoothed averages of gains and
// losses. Values before the warmup index are zero.
func (s *RSIService) Calculate(prices []float64, period int) []float64 {
	if len(prices) < period+1 {
		return nil
	}

	rsi := make([]float64, len(prices))
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))

	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = math.Abs(change)
		}
	}

	avgGain := s.ema.Calculate(gains, period)
	avgLoss := s.ema.Calculate(losses, period)

	for i := period; i < len(prices); i++ {
		if avgLoss[i] == 0 {
			rsi[i] = 100
		} else {
			rs := avgGain[i] / avgLoss[i]
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}

	return rsi
}

// Latest returns the most recent RSI value, or 0 when the series is too
// short for the period.
func (s *RSIService) Latest(prices []float64, period int) float64 {
	rsi := s.Calculate(prices, period)
	if rsi == nil {
		return 0
	}
	return rsi[len(rsi)-1]
}
