package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"rentonmap/internal/middleware"

	"gorm.io/gorm"
)

// Migration is one versioned pair of SQL scripts.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	return LoadMigrations(migrationFS, "migrations")
}

// LoadMigrations reads <version>_<name>.up.sql files and their .down.sql
// counterparts from dir.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".up.sql")
		versionPart, label, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(versionPart)
		if !ok || err != nil {
			middleware.Logger.Warn("Skipping migration with invalid naming", slog.String("file", name))
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		seen[version] = name

		up, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read up migration %s: %w", name, err)
		}
		down, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("failed to read down migration for %s: %w", name, err)
		}

		out = append(out, Migration{
			Version:    version,
			Name:       label,
			UpScript:   string(up),
			DownScript: string(down),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// MigrationLog represents a record of an applied migration in the database.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

const ensureMigrationLogTableSQL = `CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

func appliedVersions(ctx context.Context, db *gorm.DB) ([]int, error) {
	var versions []int
	if err := db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isMissingTableError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return versions, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// RunMigrations applies every embedded migration that is not yet recorded.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return applyMigrations(ctx, db, ms)
}

func applyMigrations(ctx context.Context, db *gorm.DB, ms []Migration) error {
	if err := db.WithContext(ctx).Exec(ensureMigrationLogTableSQL).Error; err != nil {
		return fmt.Errorf("failed to ensure migration logs table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, ms); err != nil {
		return err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range ms {
		if done[m.Version] {
			continue
		}
		middleware.Logger.Info("Applying migration", slog.String("migration", m.String()))
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.UpScript).Error; err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", m.String(), err)
			}
			return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func validateAppliedVersions(applied []int, registered []Migration) error {
	known := make(map[int]struct{}, len(registered))
	for _, m := range registered {
		known[m.Version] = struct{}{}
	}

	var unknown []string
	for _, version := range applied {
		if _, ok := known[version]; !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("migration_logs contains unknown versions not present in code: %s",
		strings.Join(unknown, ", "))
}

// RollbackMigration reverts a specific applied migration by version number.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return rollback(ctx, db, ms, version)
}

func rollback(ctx context.Context, db *gorm.DB, ms []Migration, version int) error {
	var target *Migration
	for i := range ms {
		if ms[i].Version == version {
			target = &ms[i]
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	found := false
	for _, v := range applied {
		found = found || v == version
	}
	if !found {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	middleware.Logger.Info("Rolling back migration", slog.String("migration", target.String()))
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(target.DownScript).Error; err != nil {
			return fmt.Errorf("failed to run rollback SQL for migration %s: %w", target.String(), err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
}
