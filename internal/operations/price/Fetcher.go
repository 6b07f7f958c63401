package price

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/models"
	"CryptoBacktester/internal/operations/binance"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Binance caps kline pages at 500 candles.
const klinePageLimit = 500

type PriceFetcher struct {
	client *binance.Client
	log    *logger.Logger
}

func NewPriceFetcher(client *binance.Client, log *logger.Logger) *PriceFetcher {
	return &PriceFetcher{
		client: client,
		log:    log,
	}
}

// FetchHistory downloads candles for one symbol/timeframe between start
// and end, paging in 500-candle chunks. Any fetch error is returned as
// is: backfill failures are fatal to a backtest run.
func (f *PriceFetcher) FetchHistory(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Price, error) {
	interval, ok := intervalDurations[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}

	chunkDuration := interval * klinePageLimit
	totalChunks := int(end.Sub(start)/chunkDuration) + 1
	bar := progressbar.New(totalChunks)

	var allPrices []models.Price

	currentStart := start
	for currentStart.Before(end) {
		currentEnd := currentStart.Add(chunkDuration)
		if currentEnd.After(end) {
			currentEnd = end
		}

		klines, err := f.client.GetKlines(ctx, symbol, timeframe,
			currentStart.UnixMilli(), currentEnd.UnixMilli(), klinePageLimit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %s klines from %s: %w",
				symbol, timeframe, currentStart.Format(time.RFC3339), err)
		}

		for _, k := range klines {
			allPrices = append(allPrices, klineToPrice(symbol, timeframe, k))
		}

		bar.Add(1)
		currentStart = currentEnd
	}

	f.log.Info("history fetched",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("candles", len(allPrices)),
	)

	return allPrices, nil
}

func klineToPrice(symbol, timeframe string, k *futures.Kline) models.Price {
	return models.Price{
		Symbol:     symbol,
		TimeFrame:  timeframe,
		OpenTime:   time.UnixMilli(k.OpenTime),
		CloseTime:  time.UnixMilli(k.CloseTime),
		Open:       parseFloat(k.Open),
		High:       parseFloat(k.High),
		Low:        parseFloat(k.Low),
		Close:      parseFloat(k.Close),
		Volume:     parseFloat(k.Volume),
		TradeCount: k.TradeNum,
	}
}

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
