// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"rentonmap/internal/models"
	"rentonmap/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// City is a seeding hotspot. Listings are scattered within Spread degrees
// of its center.
type City struct {
	Name       string
	PostalCode string
	Lat, Lng   float64
	Spread     float64
}

// Cities are the default hotspots.
var Cities = []City{
	{Name: "New Delhi", PostalCode: "110001", Lat: 28.6139, Lng: 77.2090, Spread: 0.08},
	{Name: "Mumbai", PostalCode: "400001", Lat: 19.0760, Lng: 72.8777, Spread: 0.06},
	{Name: "Bengaluru", PostalCode: "560001", Lat: 12.9716, Lng: 77.5946, Spread: 0.08},
	{Name: "Pune", PostalCode: "411001", Lat: 18.5204, Lng: 73.8567, Spread: 0.05},
	{Name: "Hyderabad", PostalCode: "500001", Lat: 17.3850, Lng: 78.4867, Spread: 0.07},
}

// Monthly rent bands per category, in rupees.
var priceBands = map[models.ListingType][2]int{
	models.ListingTypeFlat:  {12000, 65000},
	models.ListingTypeHouse: {25000, 150000},
	models.ListingTypePG:    {5000, 18000},
	models.ListingTypeShop:  {15000, 90000},
	models.ListingTypeLand:  {8000, 60000},
}

var (
	furnishingTags = []string{models.FeatureFullyFurnished, models.FeatureSemiFurnished, models.FeatureUnfurnished}
	tenantTags     = []string{models.TenantFamily, models.TenantBachelors}
	amenityTags    = []string{"Lift", "Power Backup", "Gated Society", "Gym", "Near Metro", "Pet Friendly", "Covered Parking"}
)

// Factory builds domain entities and persists them through the repositories.
type Factory struct {
	db       *gorm.DB
	listings repository.ListingRepository
	chats    repository.ChatRepository
	opts     Options
	rng      *rand.Rand
	faker    *gofakeit.Faker
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB. db may be
// nil in DryRun mode.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	opts = opts.withDefaults()
	f := &Factory{
		db:     db,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.RandomSeed)), //nolint:gosec // seeding only
		faker:  gofakeit.New(opts.RandomSeed),
		nextID: 1000,
	}
	if db != nil {
		f.listings = repository.NewListingRepository(db)
		f.chats = repository.NewChatRepository(db)
	}
	return f
}

// BuildUser returns an unsaved user with a unique example.com address.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	handle := strings.ToLower(fmt.Sprintf("%s.%s.%d", first, last, f.faker.Number(1000, 9999)))
	user := &models.User{
		Name:               first + " " + last,
		Email:              handle + "@example.com",
		Image:              fmt.Sprintf("https://i.pravatar.cc/150?u=%s", handle),
		VerificationStatus: models.VerificationUnverified,
	}
	if f.rng.Float64() < 0.2 {
		user.VerificationStatus = models.VerificationVerified
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser persists a generated user.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		return user, nil
	}
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildListing returns an unsaved listing near city owned by owner.
func (f *Factory) BuildListing(owner *models.User, city City, overrides ...func(*models.Listing)) *models.Listing {
	kind := models.ListingTypes[f.rng.Intn(len(models.ListingTypes))]
	band := priceBands[kind]
	price := float64(band[0] + f.rng.Intn(band[1]-band[0]+1)/500*500)

	features := []string{
		furnishingTags[f.rng.Intn(len(furnishingTags))],
		tenantTags[f.rng.Intn(len(tenantTags))],
	}
	for _, i := range f.rng.Perm(len(amenityTags))[:f.rng.Intn(3)] {
		features = append(features, amenityTags[i])
	}

	images := make([]string, 1+f.rng.Intn(3))
	for i := range images {
		images[i] = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())
	}

	listing := &models.Listing{
		Title:       fmt.Sprintf("%s in %s", listingNoun(kind, f.rng), city.Name),
		Description: f.faker.Paragraph(1, 3, 12, " "),
		Price:       price,
		Type:        kind,
		Features:    features,
		Images:      images,
		Address:     f.faker.Street(),
		City:        city.Name,
		PostalCode:  city.PostalCode,
		Location: models.GeoPoint{
			Lat: city.Lat + (f.rng.Float64()*2-1)*city.Spread,
			Lng: city.Lng + (f.rng.Float64()*2-1)*city.Spread,
		},
		ContactNumber: fmt.Sprintf("+91 9%09d", f.rng.Intn(1_000_000_000)),
		IsVisible:     true,
		OwnerID:       owner.ID,
	}
	if kind == models.ListingTypeFlat || kind == models.ListingTypeHouse {
		bedrooms := 1 + f.rng.Intn(4)
		bathrooms := 1 + f.rng.Intn(bedrooms)
		area := 400 + bedrooms*f.rng.Intn(450)
		listing.Bedrooms, listing.Bathrooms, listing.Area = &bedrooms, &bathrooms, &area
	}
	for _, override := range overrides {
		override(listing)
	}
	return listing
}

func listingNoun(kind models.ListingType, rng *rand.Rand) string {
	switch kind {
	case models.ListingTypeFlat:
		return fmt.Sprintf("%dBHK flat", 1+rng.Intn(3))
	case models.ListingTypeHouse:
		return "Independent house"
	case models.ListingTypePG:
		return "PG accommodation"
	case models.ListingTypeShop:
		return "Shop space"
	default:
		return "Open plot"
	}
}

// CreateListing persists a generated listing with its feature rows.
func (f *Factory) CreateListing(ctx context.Context, owner *models.User, city City, overrides ...func(*models.Listing)) (*models.Listing, error) {
	listing := f.BuildListing(owner, city, overrides...)
	if f.opts.DryRun {
		f.nextID++
		listing.ID = f.nextID
		return listing, nil
	}
	if err := f.listings.Create(ctx, listing); err != nil {
		return nil, err
	}
	if f.opts.Geo != nil {
		if err := f.opts.Geo.Upsert(ctx, listing); err != nil {
			return nil, fmt.Errorf("mirror listing %d: %w", listing.ID, err)
		}
	}
	return listing, nil
}

// CreateConversation opens the viewer's conversation about listing and
// exchanges a few messages.
func (f *Factory) CreateConversation(ctx context.Context, viewer *models.User, listing *models.Listing) (*models.Conversation, error) {
	if f.opts.DryRun {
		f.nextID++
		log.Printf("[dry-run] conversation viewer=%d listing=%d", viewer.ID, listing.ID)
		return &models.Conversation{ID: f.nextID, ListingID: listing.ID}, nil
	}

	conv, _, err := f.chats.FindOrCreateConversation(ctx, listing.ID, viewer.ID, listing.OwnerID)
	if err != nil {
		return nil, err
	}
	senders := []uint{viewer.ID, listing.OwnerID}
	exchanges := 1 + f.rng.Intn(4)
	for i := 0; i < exchanges; i++ {
		msg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       senders[i%2],
			Content:        f.faker.Sentence(4 + f.rng.Intn(10)),
		}
		if _, err := f.chats.AppendMessage(ctx, msg); err != nil {
			return nil, err
		}
	}
	return conv, nil
}
