package database

import (
	"fmt"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/config"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates all treasury tables. Also used by tests against
// sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Referral{},
		&model.UsdcTransaction{},
		&model.PaymentIntent{},
		&model.Payment{},
		&model.Commission{},
		&model.PayoutBatch{},
		&model.CryptoAuditLog{},
		&model.OutboxEvent{},
	); err != nil {
		return err
	}

	// Partial unique index: provisioned deposit addresses are unique, but
	// any number of users may be waiting with an empty one. A plain unique
	// index would reject the second unprovisioned row. Supported by both
	// postgres and the sqlite used in tests.
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_deposit_address " +
			"ON users(deposit_address) WHERE deposit_address <> ''",
	).Error
}
