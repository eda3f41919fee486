package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ListingType is the closed set of listing categories.
type ListingType string

const (
	ListingTypeFlat  ListingType = "Flat"
	ListingTypeHouse ListingType = "House"
	ListingTypePG    ListingType = "PG"
	ListingTypeShop  ListingType = "Shop"
	ListingTypeLand  ListingType = "Land"
)

// ListingTypes lists every valid category in display order.
var ListingTypes = []ListingType{
	ListingTypeFlat,
	ListingTypeHouse,
	ListingTypePG,
	ListingTypeShop,
	ListingTypeLand,
}

// Valid reports whether t is a known category.
func (t ListingType) Valid() bool {
	for _, known := range ListingTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Furnishing codes sent by the client and the feature tags they map to.
const (
	FurnishingFull = "Full"
	FurnishingSemi = "Semi"
	FurnishingNone = "None"

	FeatureFullyFurnished = "Fully Furnished"
	FeatureSemiFurnished  = "Semi Furnished"
	FeatureUnfurnished    = "Unfurnished"
)

// FurnishingFeature translates a furnishing code into its feature tag.
func FurnishingFeature(code string) (string, bool) {
	switch code {
	case FurnishingFull:
		return FeatureFullyFurnished, true
	case FurnishingSemi:
		return FeatureSemiFurnished, true
	case FurnishingNone:
		return FeatureUnfurnished, true
	}
	return "", false
}

// Tenant preferences. TenantAny is the sentinel that never filters.
const (
	TenantAny       = "Any"
	TenantFamily    = "Family"
	TenantBachelors = "Bachelors"
)

// GeoPoint is a longitude/latitude pair stored as two columns and
// serialized as a GeoJSON point.
type GeoPoint struct {
	Lng float64 `gorm:"column:lng;not null"`
	Lat float64 `gorm:"column:lat;not null"`
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// MarshalJSON renders {"type":"Point","coordinates":[lng,lat]}.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: [2]float64{p.Lng, p.Lat}})
}

// UnmarshalJSON accepts the GeoJSON point form.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "" && g.Type != "Point" {
		return errors.New("location must be a GeoJSON Point")
	}
	p.Lng, p.Lat = g.Coordinates[0], g.Coordinates[1]
	return nil
}

// RoomDetails is the optional per-room breakdown of a listing.
type RoomDetails struct {
	Bedrooms   int  `json:"bedrooms"`
	Bathrooms  int  `json:"bathrooms"`
	Kitchen    int  `json:"kitchen"`
	LivingRoom int  `json:"livingRoom"`
	DiningRoom int  `json:"diningRoom"`
	Balconies  int  `json:"balconies"`
	Parking    bool `json:"parking"`
	Garden     bool `json:"garden"`
}

// Listing is a rentable unit placed on the map.
type Listing struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	Title          string       `gorm:"not null" json:"title"`
	Description    string       `gorm:"type:text;not null" json:"description"`
	Price          float64      `gorm:"not null;index" json:"price"`
	Type           ListingType  `gorm:"size:16;not null;index" json:"type"`
	Features       []string     `gorm:"serializer:json;type:text" json:"features"`
	Images         []string     `gorm:"serializer:json;type:text" json:"images"`
	Bedrooms       *int         `json:"bedrooms,omitempty"`
	Bathrooms      *int         `json:"bathrooms,omitempty"`
	Area           *int         `json:"area,omitempty"`
	ContactNumber  string       `json:"contactNumber,omitempty"`
	Address        string       `json:"address,omitempty"`
	City           string       `json:"city,omitempty"`
	PostalCode     string       `json:"postalCode,omitempty"`
	Rooms          *RoomDetails `gorm:"serializer:json;type:text" json:"rooms,omitempty"`
	Location       GeoPoint     `gorm:"embedded" json:"location"`
	IsFeatured     bool         `gorm:"default:false" json:"isFeatured"`
	FeaturedExpiry *time.Time   `json:"featuredExpiry,omitempty"`
	IsVisible      bool         `gorm:"default:true;index" json:"isVisible"`
	IsVerified     bool         `gorm:"default:false" json:"isVerified"`
	OwnerID        uint         `gorm:"not null;index" json:"ownerId"`
	Owner          *UserSummary `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	// FeatureTags mirrors Features row-per-tag for containment queries.
	FeatureTags []ListingFeature `gorm:"foreignKey:ListingID" json:"-"`
	CreatedAt   time.Time        `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// AfterFind keeps list fields as JSON arrays rather than null.
func (l *Listing) AfterFind(*gorm.DB) error {
	if l.Features == nil {
		l.Features = []string{}
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	return nil
}

// FeaturedAt reports whether the listing is promoted at the given instant.
func (l *Listing) FeaturedAt(now time.Time) bool {
	if !l.IsFeatured {
		return false
	}
	return l.FeaturedExpiry == nil || l.FeaturedExpiry.After(now)
}

// ListingFeature is one feature tag of a listing.
type ListingFeature struct {
	ListingID uint   `gorm:"primaryKey;autoIncrement:false"`
	Position  int    `gorm:"primaryKey;autoIncrement:false"`
	Tag       string `gorm:"size:128;not null;index"`
}

// ListingSummary is the listing projection shown alongside conversations.
type ListingSummary struct {
	ID       uint     `gorm:"primaryKey" json:"id"`
	Title    string   `json:"title"`
	Price    float64  `json:"price"`
	Images   []string `gorm:"serializer:json" json:"images"`
	Location GeoPoint `gorm:"embedded" json:"location"`
}

// TableName maps the projection onto the listings table.
func (ListingSummary) TableName() string {
	return "listings"
}
