package database

import (
	"fmt"
	"time"

	"playmatch/rooms/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// zerologWriter adapts zerolog to gorm's logger.Writer.
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}

// NewLogger builds the gorm logger used by every connection.
func NewLogger(log zerolog.Logger) logger.Interface {
	return logger.New(
		zerologWriter{log: log.With().Str("module", "database").Logger()},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Config returns the gorm configuration shared by production and test dialects.
func Config(log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:         NewLogger(log),
		TranslateError: true,
	}
}

// Connect opens the Postgres connection and runs migrations.
func Connect(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Str("module", "database").Msg("database connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Str("module", "database").Msg("database migrated successfully")
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Game{}, &models.Room{}, &models.User{}, &models.Profile{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
