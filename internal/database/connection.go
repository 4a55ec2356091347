package database

import (
	"fmt"
	"time"

	"github.com/playarena/credit_engine/internal/config"
	"github.com/playarena/credit_engine/internal/models"
	"github.com/playarena/credit_engine/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.GetDSN()

	var logLevel gormlogger.LogLevel
	if cfg.AppEnv == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Balance mutations manage their own transactions; skip the
		// implicit per-write wrapping.
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	logger.Info("Database connected successfully")
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Account{},
		&models.HeadToHead{},
		&models.GameTemplate{},
		&models.CreditPack{},
		&models.Match{},
		&models.LedgerEntry{},
		&models.PaymentOrder{},
	)

	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// AutoMigrate cannot express a partial index. One pending order per
	// account is enforced in the schema as well as by the service-level
	// account lock.
	err = db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_orders_one_pending
		 ON payment_orders (account_id) WHERE status = 'pending'`,
	).Error
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// SeedCatalog inserts a starter catalog when the tables are empty so a
// fresh environment can start matches and sell packs right away.
func SeedCatalog(db *gorm.DB) error {
	var templateCount int64
	db.Model(&models.GameTemplate{}).Count(&templateCount)
	if templateCount == 0 {
		logger.Info("Seeding game templates...")
		templates := []models.GameTemplate{
			{Name: "quick-duel", MinWager: 0, MaxWager: 500, Active: true},
			{Name: "ranked-arena", MinWager: 10, MaxWager: 1000, Active: true},
			{Name: "practice", MinWager: 0, MaxWager: 0, Active: true},
		}
		if err := db.Create(&templates).Error; err != nil {
			return fmt.Errorf("failed to seed game templates: %w", err)
		}
	}

	var packCount int64
	db.Model(&models.CreditPack{}).Count(&packCount)
	if packCount == 0 {
		logger.Info("Seeding credit packs...")
		packs := []models.CreditPack{
			{Name: "starter", Credits: 100, Price: 199, Active: true},
			{Name: "regular", Credits: 550, Price: 899, Active: true},
			{Name: "big-spender", Credits: 1200, Price: 1699, Active: true},
		}
		if err := db.Create(&packs).Error; err != nil {
			return fmt.Errorf("failed to seed credit packs: %w", err)
		}
	}

	return nil
}
