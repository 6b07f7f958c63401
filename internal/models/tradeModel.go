package models

import "time"

// TradeResult is one closed simulated trade. Records are immutable once
// appended to a portfolio's history; the engine persists them after a run.
type TradeResult struct {
	ID      uint   `gorm:"primaryKey"`
	TradeID string `gorm:"index;not null"`
	RunID   string `gorm:"index"`

	Symbol string `gorm:"index;not null"`
	Side   string `gorm:"not null"`

	EntryPrice float64   `gorm:"type:decimal(20,8);not null"`
	ExitPrice  float64   `gorm:"type:decimal(20,8);not null"`
	EntryTime  time.Time `gorm:"index;not null"`
	ExitTime   time.Time `gorm:"index;not null"`

	SizeUSD    float64 `gorm:"column:size_usd;type:decimal(20,8);not null"`
	PnLUSD     float64 `gorm:"column:pnl_usd;type:decimal(20,8);not null"`
	PnLPercent float64 `gorm:"column:pnl_percent;type:decimal(20,8);not null"`
	FeeUSD     float64 `gorm:"column:fee_usd;type:decimal(20,8);not null"`

	Reason string `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

const (
	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"

	CloseReasonStopLoss = "SL"
	CloseReasonMLFlip   = "ML_FLIP"
	CloseReasonManual   = "MANUAL"
)

// TableName sets the table name for TradeResult model
func (TradeResult) TableName() string {
	return "trade_results"
}
