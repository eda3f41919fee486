// Package models contains data structures for the application's domain models.
package models

import "time"

// VerificationStatus is the tri-state profile verification flag.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// Valid reports whether the status is one of the known values.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationUnverified, VerificationPending, VerificationVerified:
		return true
	}
	return false
}

// User is an account linked 1:1 to an external identity by email.
type User struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	Name               string             `gorm:"not null" json:"name"`
	Email              string             `gorm:"uniqueIndex;not null" json:"email"`
	Image              string             `json:"image,omitempty"`
	IsVerified         bool               `gorm:"default:false" json:"isVerified"`
	VerificationStatus VerificationStatus `gorm:"size:16;not null;default:'unverified'" json:"verificationStatus"`
	// SavedListingIDs is filled by the repository from saved_listings.
	SavedListingIDs []uint    `gorm:"-" json:"savedProperties"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UserSummary is the lightweight owner/sender projection joined at read time.
type UserSummary struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Image      string `json:"image,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

// TableName maps the projection onto the users table.
func (UserSummary) TableName() string {
	return "users"
}

// SavedListing is one entry of a user's saved-listing membership set.
type SavedListing struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	ListingID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"listingId"`
	CreatedAt time.Time `json:"createdAt"`
}
