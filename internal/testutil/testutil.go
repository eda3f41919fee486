// Package testutil provides shared test fixtures for backend tests.
package testutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"rentonmap/internal/database"
	"rentonmap/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens a private in-memory sqlite database with the full schema.
// A single connection keeps every query, transactions included, on the same
// in-memory database.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=0", name)
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with a unique email derived from name.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Name:               name,
		Email:              strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		VerificationStatus: models.VerificationUnverified,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// ListingOption customises a fixture listing.
type ListingOption func(*models.Listing)

// WithFeatures sets the listing's feature tags.
func WithFeatures(tags ...string) ListingOption {
	return func(l *models.Listing) { l.Features = tags }
}

// WithType sets the listing category.
func WithType(t models.ListingType) ListingOption {
	return func(l *models.Listing) { l.Type = t }
}

// CreateListing inserts a visible listing with matching listing_features rows.
func CreateListing(t testing.TB, db *gorm.DB, ownerID uint, lat, lng, price float64, opts ...ListingOption) *models.Listing {
	t.Helper()
	l := &models.Listing{
		Title:       fmt.Sprintf("Listing at %.4f,%.4f", lat, lng),
		Description: "Test listing",
		Price:       price,
		Type:        models.ListingTypeFlat,
		Features:    []string{},
		Images:      []string{},
		Location:    models.GeoPoint{Lat: lat, Lng: lng},
		IsVisible:   true,
		OwnerID:     ownerID,
	}
	for _, opt := range opts {
		opt(l)
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Owner", "FeatureTags").Create(l).Error; err != nil {
			return err
		}
		for i, tag := range l.Features {
			row := models.ListingFeature{ListingID: l.ID, Position: i, Tag: tag}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

// TinyPNG returns an encoded w x h PNG.
func TinyPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// PNGDataURI wraps TinyPNG in a data: URI as sent by the listing form.
func PNGDataURI(t testing.TB, w, h int) string {
	t.Helper()
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(TinyPNG(t, w, h))
}
