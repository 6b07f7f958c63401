package indicators

// EMAService provides Exponential Moving Average calculations
type EMAService struct{}

// NewEMAService creates a new EMA service instance
func NewEMAService() *EMAService {
	return &EMAService{}
}

// Calculate computes the EMA series for the given period. Values before
// index period-1 are zero; the series is seeded with an SMA of the first
// period prices.
func (s *EMAService) Calculate(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 || len(prices) < period {
		return nil
	}

	ema := make([]float64, len(prices))
	ema[period-1] = s.calculateInitialSMA(prices, period)
	for i := period; i < len(prices); i++ {
		ema[i] = s.CalculateOne(prices[i], ema[i-1], period)
	}

	return ema
}

// Latest returns the most recent EMA value, or 0 when the series is too
// short for the period.
func (s *EMAService) Latest(prices []float64, period int) float64 {
	ema := s.Calculate(prices, period)
	if ema == nil {
		return 0
	}
	return ema[len(ema)-1]
}

// CalculateOne advances a single EMA point from its previous value.
func (s *EMAService) CalculateOne(price, prevEMA float64, period int) float64 {
	multiplier := 2.0 / float64(period+1)
	return (price-prevEMA)*multiplier + prevEMA
}

func (s *EMAService) calculateInitialSMA(prices []float64, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}
