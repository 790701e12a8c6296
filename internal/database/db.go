package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"user-directory/internal/logging"
	"user-directory/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateUserID = errors.New("duplicate user id")
	ErrInvalidRole     = errors.New("invalid role")
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Open connects to postgres, retrying while the server comes up, and migrates
// the schema. The returned handle has been pinged.
func Open(ctx context.Context, dsn string, log logging.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	for i := 1; i <= connectAttempts; i++ {
		log.Info(ctx, "connecting to database", "attempt", i, "max_attempts", connectAttempts)

		db, err = gorm.Open(postgres.Open(dsn), gormConfig())
		if err == nil {
			err = ping(ctx, db)
		}
		if err == nil {
			log.Info(ctx, "connected to database")
			break
		}

		log.Warn(ctx, "database connection failed", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to db after %d attempts: %w", connectAttempts, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
