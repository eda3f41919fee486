package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"rentonmap/internal/geoindex"
	"rentonmap/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	ListingsPerUser int
	// NumConversations is spread over random viewer/listing pairs.
	NumConversations int
	Cities           []City
	ShouldClean      bool
	DryRun           bool
	RandomSeed       int64
	// Geo, when set, receives every seeded listing so map searches see them.
	Geo geoindex.Index
}

func (o Options) withDefaults() Options {
	if o.NumUsers <= 0 {
		o.NumUsers = 20
	}
	if o.ListingsPerUser <= 0 {
		o.ListingsPerUser = 2
	}
	if len(o.Cities) == 0 {
		o.Cities = Cities
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	return o
}

// Result counts what a Seed run created.
type Result struct {
	Users         []*models.User
	Listings      []*models.Listing
	Conversations int
}

// Seed populates the database with demo users, listings and conversations.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log.Printf("🌱 Seeding %d users with %d listings each...", opts.NumUsers, opts.ListingsPerUser)

	if opts.ShouldClean && !opts.DryRun {
		if err := ClearAll(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	f := NewFactory(db, opts)
	res := &Result{}

	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		res.Users = append(res.Users, user)
	}
	log.Printf("✓ %d users created", len(res.Users))

	for i, owner := range res.Users {
		for j := 0; j < opts.ListingsPerUser; j++ {
			city := opts.Cities[(i+j)%len(opts.Cities)]
			listing, err := f.CreateListing(ctx, owner, city)
			if err != nil {
				return nil, fmt.Errorf("failed to create listing: %w", err)
			}
			res.Listings = append(res.Listings, listing)
		}
	}
	log.Printf("✓ %d listings created", len(res.Listings))

	if len(res.Users) > 1 {
		for i := 0; i < opts.NumConversations; i++ {
			listing := res.Listings[f.rng.Intn(len(res.Listings))]
			viewer := res.Users[f.rng.Intn(len(res.Users))]
			if viewer.ID == listing.OwnerID {
				continue
			}
			if _, err := f.CreateConversation(ctx, viewer, listing); err != nil {
				return nil, fmt.Errorf("failed to create conversation: %w", err)
			}
			res.Conversations++
		}
	}
	log.Printf("✓ %d conversations created", res.Conversations)

	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}

// ClearAll removes every row the seeder can create.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.WithContext(ctx).Exec(`TRUNCATE TABLE message_reads, messages, conversation_participants, conversations,
			saved_listings, listing_features, listings, users RESTART IDENTITY CASCADE`).Error
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.MessageRead{}, &models.Message{}, &models.ConversationParticipant{}, &models.Conversation{},
			&models.SavedListing{}, &models.ListingFeature{}, &models.Listing{}, &models.User{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
