package server

import (
	"rentonmap/internal/models"
	"rentonmap/internal/service"
)

// CreateListingRequest is the body of POST /api/listings.
type CreateListingRequest struct {
	Title         string              `json:"title" validate:"required,max=200"`
	Description   string              `json:"description" validate:"required,max=10000"`
	Price         float64             `json:"price" validate:"required,gt=0"`
	Type          string              `json:"type" validate:"required,oneof=Flat House PG Shop Land"`
	Lat           *float64            `json:"lat" validate:"required,latitude"`
	Lng           *float64            `json:"lng" validate:"required,longitude"`
	Features      []string            `json:"features" validate:"omitempty,max=50,dive,required,max=128"`
	Images        []string            `json:"images" validate:"omitempty,max=20,dive,required"`
	Bedrooms      *int                `json:"bedrooms" validate:"omitempty,min=0"`
	Bathrooms     *int                `json:"bathrooms" validate:"omitempty,min=0"`
	Area          *int                `json:"area" validate:"omitempty,min=0"`
	ContactNumber string              `json:"contactNumber" validate:"max=32"`
	Address       string              `json:"address" validate:"max=500"`
	City          string              `json:"city" validate:"max=100"`
	PostalCode    string              `json:"postalCode" validate:"max=16"`
	Rooms         *models.RoomDetails `json:"rooms"`
}

func (r CreateListingRequest) input(ownerID uint) service.CreateListingInput {
	return service.CreateListingInput{
		OwnerID:       ownerID,
		Title:         r.Title,
		Description:   r.Description,
		Price:         r.Price,
		Type:          models.ListingType(r.Type),
		Features:      r.Features,
		Images:        r.Images,
		Bedrooms:      r.Bedrooms,
		Bathrooms:     r.Bathrooms,
		Area:          r.Area,
		ContactNumber: r.ContactNumber,
		Address:       r.Address,
		City:          r.City,
		PostalCode:    r.PostalCode,
		Rooms:         r.Rooms,
		Lat:           *r.Lat,
		Lng:           *r.Lng,
	}
}

// UpdateListingRequest is the body of PUT /api/listings/:id. Absent fields
// are left unchanged; lat and lng are only applied together.
type UpdateListingRequest struct {
	Title         *string             `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string             `json:"description" validate:"omitempty,min=1,max=10000"`
	Price         *float64            `json:"price" validate:"omitempty,gt=0"`
	Type          *string             `json:"type" validate:"omitempty,oneof=Flat House PG Shop Land"`
	Lat           *float64            `json:"lat" validate:"required_with=Lng,omitempty,latitude"`
	Lng           *float64            `json:"lng" validate:"required_with=Lat,omitempty,longitude"`
	Features      []string            `json:"features" validate:"omitempty,max=50,dive,required,max=128"`
	Images        []string            `json:"images" validate:"omitempty,max=20,dive,required"`
	Bedrooms      *int                `json:"bedrooms" validate:"omitempty,min=0"`
	Bathrooms     *int                `json:"bathrooms" validate:"omitempty,min=0"`
	Area          *int                `json:"area" validate:"omitempty,min=0"`
	ContactNumber *string             `json:"contactNumber" validate:"omitempty,max=32"`
	Address       *string             `json:"address" validate:"omitempty,max=500"`
	City          *string             `json:"city" validate:"omitempty,max=100"`
	PostalCode    *string             `json:"postalCode" validate:"omitempty,max=16"`
	Rooms         *models.RoomDetails `json:"rooms"`
}

func (r UpdateListingRequest) input(id, userID uint) service.UpdateListingInput {
	in := service.UpdateListingInput{
		ID:            id,
		UserID:        userID,
		Title:         r.Title,
		Description:   r.Description,
		Price:         r.Price,
		Features:      r.Features,
		Images:        r.Images,
		Bedrooms:      r.Bedrooms,
		Bathrooms:     r.Bathrooms,
		Area:          r.Area,
		ContactNumber: r.ContactNumber,
		Address:       r.Address,
		City:          r.City,
		PostalCode:    r.PostalCode,
		Rooms:         r.Rooms,
		Lat:           r.Lat,
		Lng:           r.Lng,
	}
	if r.Type != nil {
		t := models.ListingType(*r.Type)
		in.Type = &t
	}
	return in
}

// PromoteRequest is the body of POST /api/listings/promote.
type PromoteRequest struct {
	PropertyID uint   `json:"propertyId" validate:"required"`
	Plan       string `json:"plan" validate:"required,oneof=1_week 1_month"`
}

// VisibilityRequest is the body of PATCH /api/listings/:id/visibility.
type VisibilityRequest struct {
	IsVisible *bool `json:"isVisible" validate:"required"`
}

// ToggleSavedRequest is the body of POST /api/user/saved.
type ToggleSavedRequest struct {
	PropertyID uint `json:"propertyId" validate:"required"`
}

// StartConversationRequest is the body of POST /api/chat/conversations.
type StartConversationRequest struct {
	PropertyID uint `json:"propertyId" validate:"required"`
	OwnerID    uint `json:"ownerId" validate:"required"`
}

// SendMessageRequest is the body of POST /api/chat/messages.
type SendMessageRequest struct {
	ConversationID uint   `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required,max=40000"`
}
