package database

import (
	"fmt"
	"time"

	"checkout-service/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const maxConnectAttempts = 10

// Models lists every table the service owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Product{},
		&models.CartItem{},
		&models.ShippingAddress{},
		&models.Order{},
		&models.OrderShipping{},
		&models.OrderStripe{},
		&models.OrderItem{},
		&models.OrderItemStripe{},
		&models.OrderItemSubscription{},
		&models.SubscriptionPayment{},
	}
}

// Connect opens the pool, retrying while the database comes up, then migrates.
func Connect(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxConnectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			sqlDB, poolErr := db.DB()
			if poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}
			logger.Info("Connected to PostgreSQL successfully")

			if err := Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(time.Duration(i+1) * 2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// Migrate creates the tables plus the indexes AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	// Two concurrent webhooks for the same user may both see "no default";
	// only one insert wins.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_shipping_addresses_user_default
		ON shipping_addresses (user_id) WHERE is_default`).Error; err != nil {
		return fmt.Errorf("create default address index: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
