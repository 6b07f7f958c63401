package repositories

import (
	"errors"
	"time"

	"CryptoBacktester/internal/models"

	"gorm.io/gorm"
)

type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new instance of TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create adds a new TradeResult record to the database
func (r *TradeRepository) Create(trade *models.TradeResult) error {
	if trade == nil {
		return errors.New("trade cannot be nil")
	}
	return r.db.Create(trade).Error
}

// SaveRun persists all trades of one backtest run under a shared run id.
func (r *TradeRepository) SaveRun(runID string, trades []models.TradeResult) error {
	if len(trades) == 0 {
		return nil
	}
	for i := range trades {
		trades[i].RunID = runID
	}
	return r.db.CreateInBatches(trades, 500).Error
}

// FindByRun retrieves all trades of one run in close order.
func (r *TradeRepository) FindByRun(runID string) ([]models.TradeResult, error) {
	if runID == "" {
		return nil, errors.New("invalid run id")
	}
	var trades []models.TradeResult
	err := r.db.Where("run_id = ?", runID).
		Order("exit_time ASC").
		Find(&trades).Error
	return trades, err
}

// FindBySymbol retrieves all stored trades for a symbol.
func (r *TradeRepository) FindBySymbol(symbol string) ([]models.TradeResult, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var trades []models.TradeResult
	err := r.db.Where("symbol = ?", symbol).
		Order("exit_time ASC").
		Find(&trades).Error
	return trades, err
}

// GetTotalPnL sums the realized PnL of stored trades closed in the range.
func (r *TradeRepository) GetTotalPnL(start, end time.Time) (float64, error) {
	var totalPnL float64
	err := r.db.Model(&models.TradeResult{}).
		Where("exit_time BETWEEN ? AND ?", start, end).
		Select("COALESCE(SUM(pnl_usd), 0) as total_pnl").
		Scan(&totalPnL).Error
	return totalPnL, err
}
