package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chachabrian/quickmatch-backend/internal/config"
)

// InitDB opens the Postgres pool and applies the schema.
func InitDB(opts config.DatabaseOptions, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(opts.ConnectionString()), &gorm.Config{
		// Each store call controls its own transaction.
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(level),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database instance")
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := RunMigrations(db); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}
