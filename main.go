package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"CryptoBacktester/config"
	"CryptoBacktester/internal/handlers"
	"CryptoBacktester/internal/logger"
	"CryptoBacktester/internal/models"
	"CryptoBacktester/internal/operations/backtest"
	"CryptoBacktester/internal/operations/binance"
	"CryptoBacktester/internal/operations/price"
	"CryptoBacktester/internal/repositories"
	"CryptoBacktester/internal/services/indicators"
	"CryptoBacktester/internal/services/prediction"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	profile, err := config.LoadBacktestProfile("backtest.yaml")
	if err != nil {
		log.Fatal("Failed to load backtest profile:", err)
	}

	appLog, err := logger.NewLogger()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer appLog.Sync()

	// Setup database
	db := setupDatabase(cfg.Database)

	priceRepo := repositories.NewPriceRepository(db)
	tradeRepo := repositories.NewTradeRepository(db)

	// Backfill candle history from Binance
	binanceClient := binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey)
	fetcher := price.NewPriceFetcher(binanceClient, appLog)
	priceHandler := handlers.NewPriceHandler(fetcher, priceRepo, cfg.Symbols, appLog)

	ctx := context.Background()
	if err := priceHandler.Backfill(ctx, profile.TimeFrame, profile.BackfillDays); err != nil {
		appLog.Fatal("Backfill failed", zap.Error(err))
	}

	// Run one engine + portfolio per symbol, strictly sequentially
	btConfig := backtestConfig(profile)
	indicatorService := indicators.NewService()
	predictor := prediction.NewMomentumPredictor()

	end := time.Now()
	start := end.AddDate(0, 0, -profile.BackfillDays)
	runID := uuid.NewString()

	for _, symbol := range cfg.Symbols {
		candles, err := priceRepo.GetPricesByTimeFrame(symbol, profile.TimeFrame, start, end)
		if err != nil {
			appLog.Fatal("Failed to load candles", zap.String("symbol", symbol), zap.Error(err))
		}

		breaker := &backtest.CircuitBreakerState{}
		engine := backtest.NewEngine(btConfig, indicatorService, predictor, breaker, appLog)

		report, err := engine.Run(ctx, symbol, candles)
		if err != nil {
			appLog.Fatal("Backtest failed", zap.String("symbol", symbol), zap.Error(err))
		}

		if err := tradeRepo.SaveRun(runID, report.Trades); err != nil {
			appLog.Fatal("Failed to persist trades", zap.String("symbol", symbol), zap.Error(err))
		}

		printReport(report)
	}
}

func backtestConfig(p *config.BacktestProfile) backtest.Config {
	return backtest.Config{
		InitialCapital:        p.InitialCapital,
		FeeRate:               p.FeeRate,
		SlippageRate:          p.SlippageRate,
		Lookback:              p.Lookback,
		WindowSize:            p.WindowSize,
		StartFromIndex:        p.StartFromIndex,
		Limit:                 p.Limit,
		MLSizeFraction:        p.MLSizeFraction,
		TechnicalSizeFraction: p.TechnicalSizeFraction,
		StopLossPercent:       p.StopLossPercent,
		OversoldRSI:           p.OversoldRSI,
		OverboughtRSI:         p.OverboughtRSI,
		MinMLConfidence:       p.MinMLConfidence,
		FlipConfidence:        p.FlipConfidence,
		DailyLossPercent:      p.DailyLossPercent,
		AllInFallback:         *p.AllInFallback,
	}
}

func printReport(report *backtest.Report) {
	stats := report.Stats

	fmt.Printf("\n=== Backtest Results: %s ===\n", report.Symbol)
	fmt.Printf("Initial Capital: $%.2f\n", report.InitialCapital)
	fmt.Printf("Final Balance: $%.2f\n", stats.FinalBalance)
	fmt.Printf("ROI: %.2f%%\n", stats.ROI)
	fmt.Printf("Total Trades: %d\n", stats.TotalTrades)
	fmt.Printf("Win Rate: %.2f%%\n", stats.WinRate)
	if math.IsInf(stats.ProfitFactor, 1) {
		fmt.Println("Profit Factor: inf (no losing trades)")
	} else {
		fmt.Printf("Profit Factor: %.2f\n", stats.ProfitFactor)
	}
	fmt.Printf("Max Drawdown: %.2f%%\n", stats.MaxDrawdown)
	fmt.Printf("Candles Processed: %d\n", report.CandlesProcessed)
}

func setupDatabase(dbConfig config.DatabaseConfig) *gorm.DB {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.DBName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&models.Price{}, &models.TradeResult{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	return db
}
