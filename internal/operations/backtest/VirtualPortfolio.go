package backtest

import (
	"fmt"
	"math"
	"time"

	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VirtualPortfolio is the authoritative ledger for one simulated account.
// It holds cash, at most one open position per symbol, and the full
// closed-trade history. Not safe for concurrent use; each engine owns
// its own portfolio.
//
// Invariant: balance + sum of locked SizeUSD of open positions equals
// initialBalance + sum of PnLUSD of closed trades.
type VirtualPortfolio struct {
	balance        float64
	initialBalance float64
	feeRate        float64
	slippageRate   float64
	allInFallback  bool

	positions    map[string]*Position
	tradeHistory []models.TradeResult

	log *logger.Logger
}

func NewVirtualPortfolio(cfg Config, log *logger.Logger) *VirtualPortfolio {
	return &VirtualPortfolio{
		balance:        cfg.InitialCapital,
		initialBalance: cfg.InitialCapital,
		feeRate:        cfg.FeeRate,
		slippageRate:   cfg.SlippageRate,
		allInFallback:  cfg.AllInFallback,
		positions:      make(map[string]*Position),
		log:            log,
	}
}

// Balance returns the free cash balance (locked margin excluded).
func (p *VirtualPortfolio) Balance() float64 {
	return p.balance
}

// Position returns the open position for the symbol, or nil.
func (p *VirtualPortfolio) Position(symbol string) *Position {
	return p.positions[symbol]
}

// TradeHistory returns all closed trades in chronological order.
func (p *VirtualPortfolio) TradeHistory() []models.TradeResult {
	return p.tradeHistory
}

// OpenPosition opens a simulated trade. Opening while a position already
// exists for the symbol is a silent no-op (no pyramiding). An oversized
// entry is clamped to the remaining balance when the all-in fallback is
// enabled, otherwise skipped. The entry fee is deducted from the coin
// amount, not from cash a second time.
func (p *VirtualPortfolio) OpenPosition(symbol, side string, price, sizeUSD, stopLoss float64, openTime time.Time) {
	if _, exists := p.positions[symbol]; exists {
		p.log.Debug("open ignored, position exists", zap.String("symbol", symbol))
		return
	}

	if sizeUSD > p.balance {
		if !p.allInFallback {
			p.log.Debug("open skipped, size exceeds balance",
				zap.String("symbol", symbol),
				zap.Float64("size_usd", sizeUSD),
				zap.Float64("balance", p.balance),
			)
			return
		}
		sizeUSD = p.balance
	}

	if sizeUSD <= 0 || price <= 0 {
		return
	}

	fee := sizeUSD * p.feeRate

	// Fill is worse than the quoted price by the slippage rate.
	effectivePrice := price * (1 + p.slippageRate)
	if side == models.PositionSideShort {
		effectivePrice = price * (1 - p.slippageRate)
	}

	p.positions[symbol] = &Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: effectivePrice,
		SizeUSD:    sizeUSD,
		AmountCoin: (sizeUSD - fee) / effectivePrice,
		StopLoss:   stopLoss,
		OpenTime:   openTime,
	}
	p.balance -= sizeUSD

	p.log.Debug("position opened",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("entry_price", effectivePrice),
		zap.Float64("size_usd", sizeUSD),
		zap.Float64("stop_loss", stopLoss),
	)
}

// CheckStops closes the position at currentPrice with reason SL when the
// stop is breached (price at or below the stop for LONG, at or above for
// SHORT). Returns (nil, nil) when nothing triggers.
func (p *VirtualPortfolio) CheckStops(symbol string, currentPrice float64, currentTime time.Time) (*models.TradeResult, error) {
	pos, exists := p.positions[symbol]
	if !exists || pos.StopLoss <= 0 {
		return nil, nil
	}

	breached := (pos.Side == models.PositionSideLong && currentPrice <= pos.StopLoss) ||
		(pos.Side == models.PositionSideShort && currentPrice >= pos.StopLoss)
	if !breached {
		return nil, nil
	}

	return p.ClosePosition(symbol, currentPrice, models.CloseReasonStopLoss, currentTime)
}

// ClosePosition settles the open position at the given price, releases
// the locked margin plus net PnL back to cash, and appends the trade to
// history. Closing a symbol with no position is a hard error: it means
// the caller's bookkeeping is inconsistent.
func (p *VirtualPortfolio) ClosePosition(symbol string, price float64, reason string, currentTime time.Time) (*models.TradeResult, error) {
	pos, exists := p.positions[symbol]
	if !exists {
		return nil, fmt.Errorf("close %s: %w", symbol, ErrPositionNotFound)
	}

	rawPnlPercent := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == models.PositionSideShort {
		rawPnlPercent = (pos.EntryPrice - price) / pos.EntryPrice
	}

	positionValue := pos.SizeUSD * (1 + rawPnlPercent)
	exitFee := positionValue * p.feeRate
	netReturn := positionValue - exitFee
	entryFee := pos.SizeUSD * p.feeRate

	p.balance += netReturn
	pnlUSD := netReturn - pos.SizeUSD

	trade := models.TradeResult{
		TradeID:    uuid.NewString(),
		Symbol:     symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		EntryTime:  pos.OpenTime,
		ExitTime:   currentTime,
		SizeUSD:    pos.SizeUSD,
		PnLUSD:     pnlUSD,
		PnLPercent: (pnlUSD / pos.SizeUSD) * 100,
		FeeUSD:     entryFee + exitFee,
		Reason:     reason,
	}

	p.tradeHistory = append(p.tradeHistory, trade)
	delete(p.positions, symbol)

	p.log.Debug("position closed",
		zap.String("symbol", symbol),
		zap.String("side", trade.Side),
		zap.String("reason", reason),
		zap.Float64("exit_price", price),
		zap.Float64("pnl_usd", pnlUSD),
	)

	return &trade, nil
}

// GetStats derives performance statistics from the closed-trade history.
// A fresh portfolio yields all zeros, never NaN.
func (p *VirtualPortfolio) GetStats() Stats {
	stats := Stats{
		FinalBalance: p.balance,
		EquityCurve:  []float64{p.initialBalance},
	}

	if len(p.tradeHistory) == 0 {
		return stats
	}

	wins := 0
	grossProfit := 0.0
	grossLoss := 0.0

	equity := p.initialBalance
	peak := p.initialBalance
	maxDrawdown := 0.0

	for _, trade := range p.tradeHistory {
		if trade.PnLUSD > 0 {
			wins++
			grossProfit += trade.PnLUSD
		} else {
			grossLoss += math.Abs(trade.PnLUSD)
		}

		equity += trade.PnLUSD
		stats.EquityCurve = append(stats.EquityCurve, equity)

		if equity > peak {
			peak = equity
		}
		if drawdown := (peak - equity) / peak; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	stats.TotalTrades = len(p.tradeHistory)
	stats.WinRate = float64(wins) / float64(stats.TotalTrades) * 100
	stats.MaxDrawdown = maxDrawdown * 100
	stats.ROI = (p.balance - p.initialBalance) / p.initialBalance * 100

	switch {
	case grossLoss > 0:
		stats.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		stats.ProfitFactor = math.Inf(1)
	}

	return stats
}

// GetDailyPnL returns the summed PnL of trades closed within 24h of now,
// as a percentage of balance + 10% of initial capital. The denominator
// is an ad hoc guard against division by zero, not a principled return
// on capital; treat the value as approximate.
func (p *VirtualPortfolio) GetDailyPnL(now time.Time) float64 {
	cutoff := now.Add(-24 * time.Hour)

	dailyPnL := 0.0
	for _, trade := range p.tradeHistory {
		if trade.ExitTime.After(cutoff) && !trade.ExitTime.After(now) {
			dailyPnL += trade.PnLUSD
		}
	}

	denominator := p.balance + p.initialBalance*0.1
	if denominator == 0 {
		return 0
	}

	return dailyPnL / denominator * 100
}

// IsCircuitBreakerActive reports whether the last 24h of realized losses
// reach the limit. Pure check; it does not block trading by itself.
func (p *VirtualPortfolio) IsCircuitBreakerActive(limitPercent float64, now time.Time) bool {
	return p.GetDailyPnL(now) <= -limitPercent
}
