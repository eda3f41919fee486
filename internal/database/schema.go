package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"rentonmap/internal/config"
	"rentonmap/internal/middleware"

	"gorm.io/gorm"
)

// Values accepted by DB_SCHEMA_MODE. An empty value means hybrid.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaStatus is the dry-run view of ApplySchema printed by cmd/migrate.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

var protectedEnvs = []string{"production", "prod", "staging", "stage"}

func schemaMode(cfg *config.Config) string {
	if m := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)); m != "" {
		return m
	}
	return SchemaModeHybrid
}

// schemaPolicy picks the schema steps for cfg. SQL migrations are the source
// of truth; AutoMigrate only tops up tables in disposable environments unless
// explicitly forced.
func schemaPolicy(cfg *config.Config) (runSQL, runAuto bool, err error) {
	protected := slices.Contains(protectedEnvs, strings.ToLower(strings.TrimSpace(cfg.Env)))

	switch mode := schemaMode(cfg); mode {
	case SchemaModeHybrid:
		return true, !protected, nil
	case SchemaModeSQL:
		return true, false, nil
	case SchemaModeAuto:
		if protected && !cfg.DBAutoMigrateAllowDestructive {
			return false, false, fmt.Errorf("DB_SCHEMA_MODE=auto is blocked in %q; set DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true to override", cfg.Env)
		}
		return false, true, nil
	default:
		return false, false, fmt.Errorf("unknown DB_SCHEMA_MODE %q", mode)
	}
}

// AutoMigrate syncs the listings, users, conversations and messages tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return err
	}
	if runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	}
	if !runAuto {
		return nil
	}
	middleware.Logger.InfoContext(ctx, "automigrating models",
		slog.String("mode", schemaMode(cfg)), slog.String("env", cfg.Env))
	if err := AutoMigrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports what ApplySchema would run and which embedded
// migrations the database has not seen yet.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return nil, err
	}
	st := &SchemaStatus{
		Mode:               schemaMode(cfg),
		Environment:        cfg.Env,
		WillRunSQL:         runSQL,
		WillRunAutoMigrate: runAuto,
	}
	if !runSQL {
		return st, nil
	}

	if st.AppliedVersions, err = appliedVersions(ctx, db); err != nil {
		return nil, err
	}
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if !slices.Contains(st.AppliedVersions, m.Version) {
			st.PendingMigrations = append(st.PendingMigrations, m)
		}
	}
	return st, nil
}
