package handlers

import (
	"context"
	"time"

	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/operations/price"
	"CryptoBacktester/internal/repositories"

	"go.uber.org/zap"
)

// PriceHandler backfills the candle store before a backtest run. It
// resumes from the latest stored candle per series so repeated runs only
// fetch the missing tail.
type PriceHandler struct {
	priceRepo    *repositories.PriceRepository
	priceFetcher *price.PriceFetcher
	symbols      []string
	log          *logger.Logger
}

func NewPriceHandler(fetcher *price.PriceFetcher, priceRepo *repositories.PriceRepository, symbols []string, log *logger.Logger) *PriceHandler {
	return &PriceHandler{
		priceRepo:    priceRepo,
		priceFetcher: fetcher,
		symbols:      symbols,
		log:          log,
	}
}

// Backfill ensures the store holds the last `days` of candles for every
// configured symbol in the given timeframe.
func (h *PriceHandler) Backfill(ctx context.Context, timeframe string, days int) error {
	end := time.Now()
	defaultStart := end.AddDate(0, 0, -days)

	for _, symbol := range h.symbols {
		start := defaultStart

		latest, err := h.priceRepo.GetLatestPriceByTimeFrame(symbol, timeframe)
		if err != nil {
			return err
		}
		if latest != nil && latest.OpenTime.After(start) {
			start = latest.OpenTime.Add(time.Millisecond)
		}

		if !start.Before(end) {
			h.log.Debug("series up to date",
				zap.String("symbol", symbol),
				zap.String("timeframe", timeframe),
			)
			continue
		}

		prices, err := h.priceFetcher.FetchHistory(ctx, symbol, timeframe, start, end)
		if err != nil {
			return err
		}

		if err := h.priceRepo.CreateBatch(prices); err != nil {
			return err
		}

		h.log.Info("backfill complete",
			zap.String("symbol", symbol),
			zap.String("timeframe", timeframe),
			zap.Int("stored", len(prices)),
		)
	}

	return nil
}
