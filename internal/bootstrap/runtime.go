// Package bootstrap wires the process-wide runtime shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"rentonmap/internal/cache"
	"rentonmap/internal/config"
	"rentonmap/internal/database"
	"rentonmap/internal/middleware"
	"rentonmap/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	ApplySchema bool
	// SeedDemoData seeds an empty development database.
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis, applies the schema policy and
// optionally seeds demo data.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.ApplySchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	if opts.SeedDemoData {
		if err := seedIfEmpty(ctx, cfg, db); err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	return db, r, nil
}

func seedIfEmpty(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg.IsProduction() {
		return nil
	}
	var users int64
	if err := db.WithContext(ctx).Table("users").Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		middleware.Logger.Info("skipping demo seed, database not empty", slog.Int64("users", users))
		return nil
	}
	_, err := seed.Seed(ctx, db, seed.Options{NumUsers: 20, ListingsPerUser: 2, NumConversations: 15})
	return err
}
