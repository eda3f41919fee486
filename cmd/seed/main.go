// Command main runs the database seeder for Rent On Map.
package main

import (
	"context"
	"flag"
	"log"

	"rentonmap/internal/bootstrap"
	"rentonmap/internal/config"
	"rentonmap/internal/geoindex"
	"rentonmap/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	perUser := flag.Int("listings", 3, "Listings per user")
	numConversations := flag.Int("conversations", 40, "Conversations to open between users")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	randomSeed := flag.Int64("random-seed", 0, "Seed for reproducible data (0 = time based)")
	flag.Parse()

	_ = godotenv.Load()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d listings each, %d conversations, clean=%v\n",
		*numUsers, *perUser, *numConversations, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	db, _, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	opts := seed.Options{
		NumUsers:         *numUsers,
		ListingsPerUser:  *perUser,
		NumConversations: *numConversations,
		ShouldClean:      *shouldClean,
		DryRun:           *dryRun,
		RandomSeed:       *randomSeed,
	}
	if cfg.MongoURI != "" && !*dryRun {
		idx, err := geoindex.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to connect geo index: %v", err)
		}
		defer func() { _ = idx.Close(context.Background()) }()
		opts.Geo = idx
	}

	res, err := seed.Seed(ctx, db, opts)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d users, %d listings, %d conversations.", len(res.Users), len(res.Listings), res.Conversations)
}
