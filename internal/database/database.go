package database

import (
	"fmt"
	"time"

	"github.com/nvt/karmad/internal/config"
	"github.com/nvt/karmad/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database and runs migrations
func Connect(cfg config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		PrepareStmt:    true, // Prepare statement for better performance
		TranslateError: true, // surface unique violations as gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Migrate database schema
	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs schema migrations for all models. Exposed so tests can run
// it against an in-memory database.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.ActivityRecord{},
		&models.StakingRecord{},
		&models.ScrapedContent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Add composite indexes for common query patterns
	db.Exec("CREATE INDEX IF NOT EXISTS idx_activity_records_user_timestamp ON activity_records(user_id, timestamp)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_staking_records_user_active ON staking_records(user_id, is_active) WHERE is_active = true")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_karma_points ON users(karma_points DESC)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_scraped_contents_user_awarded ON scraped_contents(user_id, karma_awarded)")

	return nil
}
