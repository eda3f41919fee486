// Package database handles database connections and migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rentonmap/internal/config"
	"rentonmap/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// DB is the process-wide connection, set by the first successful Connect.
	DB *gorm.DB

	connectMu sync.Mutex
)

// slowQuery is the latency above which a statement is logged at warn.
const slowQuery = 200 * time.Millisecond

// queryLogger routes gorm's statement log through slog so query records
// carry the request and user ids of the calling handler.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
}

func newQueryLogger(l *slog.Logger) logger.Interface {
	return queryLogger{log: l, level: logger.Warn}
}

func (q queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	q.level = level
	return q
}

func (q queryLogger) printf(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, args []interface{}) {
	if q.level >= at {
		q.log.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

func (q queryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (q queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (q queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	q.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

// Trace reports failed statements, slow statements, and at Info level everything.
func (q queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	var lvl slog.Level
	switch {
	case failed && q.level >= logger.Error:
		lvl = slog.LevelError
	case took > slowQuery && q.level >= logger.Warn:
		lvl = slog.LevelWarn
	case q.level >= logger.Info:
		lvl = slog.LevelInfo
	default:
		return
	}

	stmt, rows := fc()
	attrs := []any{slog.String("sql", stmt), slog.Int64("rows", rows), slog.Duration("took", took)}
	if failed {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	q.log.Log(ctx, lvl, "sql statement", attrs...)
}

// GormConfig is shared by the Postgres connection and the sqlite test
// databases. Foreign keys come from the SQL migrations, not AutoMigrate, so
// conversations may outlive the listing they reference.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   newQueryLogger(middleware.Logger),
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// DSN builds the PostgreSQL connection string.
func DSN(cfg *config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sslMode)
}

// Connect returns the shared connection, opening it on first use. Concurrent
// callers wait for the same attempt; a failed attempt is not cached.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	connectMu.Lock()
	defer connectMu.Unlock()

	if DB != nil {
		return DB, nil
	}

	conn, err := gorm.Open(postgres.Open(DSN(cfg)), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres %s/%s: %w", cfg.DBHost, cfg.DBName, err)
	}
	if err := configurePool(conn, cfg); err != nil {
		return nil, err
	}
	middleware.Logger.Info("listings database connected",
		slog.String("host", cfg.DBHost), slog.String("name", cfg.DBName))

	DB = conn
	return DB, nil
}

// Close releases the shared connection so a later Connect opens a new one.
func Close() error {
	connectMu.Lock()
	defer connectMu.Unlock()

	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	DB = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql.DB: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMinutes) * time.Minute)
	}
	return nil
}
