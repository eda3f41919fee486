// Command migrate manages the listings database schema outside the server.
//
//	migrate up            apply pending SQL migrations
//	migrate auto          run gorm AutoMigrate for every model
//	migrate status        print applied and pending versions
//	migrate down VERSION  roll back one migration
//	migrate reindex       copy every listing into the MongoDB geo index
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"rentonmap/internal/config"
	"rentonmap/internal/database"
	"rentonmap/internal/geoindex"
	"rentonmap/internal/repository"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type command func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"up":      migrateUp,
	"auto":    migrateAuto,
	"status":  migrateStatus,
	"down":    migrateDown,
	"reindex": reindexGeo,
}

var errUsage = errors.New("usage: migrate <up|auto|status|down VERSION|reindex>")

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, errUsage) }
	flag.Parse()
	if err := run(context.Background(), flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(args[0]))]
	if !ok {
		return errUsage
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	return cmd(ctx, db, cfg, args[1:])
}

func migrateUp(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Println("migrations up to date")
	return nil
}

func migrateAuto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	log.Println("models automigrated")
	return nil
}

func migrateStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	st, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}
	fmt.Printf("mode:      %s (%s)\n", st.Mode, st.Environment)
	fmt.Printf("sql:       %t\n", st.WillRunSQL)
	fmt.Printf("auto:      %t\n", st.WillRunAutoMigrate)
	fmt.Printf("applied:   %d\n", len(st.AppliedVersions))
	for _, m := range st.PendingMigrations {
		fmt.Printf("pending:   %06d_%s\n", m.Version, m.Name)
	}
	return nil
}

func migrateDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("migration version %q: %w", args[0], err)
	}
	if err := database.RollbackMigration(ctx, db, v); err != nil {
		return fmt.Errorf("roll back %d: %w", v, err)
	}
	log.Printf("rolled back migration %06d", v)
	return nil
}

func reindexGeo(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	if cfg.MongoURI == "" {
		return errors.New("reindex needs MONGO_URI")
	}
	idx, err := geoindex.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close(context.Background()) }()

	n, err := geoindex.Reindex(ctx, idx, repository.NewListingRepository(db), geoindex.DefaultReindexBatch)
	if err != nil {
		return err
	}
	log.Printf("mirrored %d listings into %s.%s", n, cfg.MongoDatabase, geoindex.CollectionName)
	return nil
}
