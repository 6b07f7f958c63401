package binance

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

// Client wraps the Binance futures REST client with a rate limiter and
// retrying kline fetches. Historical backfill is the only concern here;
// order endpoints are never touched.
type Client struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
}

func NewClient(apiKey, secretKey string) *Client {
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	return &Client{
		client: futuresClient,
		// 10 requests per second with burst of 20
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// GetKlines fetches one page of klines with exponential-backoff retries.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]*futures.Kline, error) {
	const maxRetries = 3
	backoff := 100 * time.Millisecond

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startTime).
			EndTime(endTime).
			Limit(limit).
			Do(ctx)
		if err == nil {
			return klines, nil
		}
		lastErr = err

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return nil, lastErr
}
