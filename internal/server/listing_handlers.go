package server

import (
	"rentonmap/internal/models"
	"rentonmap/internal/search"

	"github.com/gofiber/fiber/v2"
)

// SearchListings handles GET /api/listings
// @Summary Search listings
// @Description Listings inside the bounding box and filters. Without a complete box the first 100 visible listings by id are returned unfiltered.
// @Tags listings
// @Produce json
// @Param minLat query number false "South edge"
// @Param maxLat query number false "North edge"
// @Param minLng query number false "West edge"
// @Param maxLng query number false "East edge"
// @Param minPrice query number false "Minimum price"
// @Param maxPrice query number false "Maximum price"
// @Param type query string false "Category" Enums(all, Flat, House, PG, Shop, Land)
// @Param furnishing query string false "Furnishing" Enums(all, Full, Semi, None)
// @Param tenantPreference query string false "Tenant preference" Enums(all, Any, Family, Bachelors)
// @Success 200 {object} object{properties=[]models.Listing}
// @Failure 400 {object} models.ErrorResponse
// @Router /listings [get]
func (s *Server) SearchListings(c *fiber.Ctx) error {
	var params search.Params
	if err := c.QueryParser(&params); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid query parameters"))
	}

	listings, err := s.listingService.Search(c.UserContext(), params)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"properties": listings})
}

// GetListing handles GET /api/listings/:id
// @Summary Get a listing
// @Description Hidden listings are only returned to their owner.
// @Tags listings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Success 200 {object} object{property=models.Listing}
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id} [get]
func (s *Server) GetListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	viewerID, _ := s.optionalUserID(c)
	listing, err := s.listingService.Get(c.UserContext(), id, viewerID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"property": listing})
}

// CreateListing handles POST /api/listings
// @Summary Create a listing
// @Description Images may be URLs or data:image base64 payloads, which are uploaded.
// @Tags listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateListingRequest true "Listing"
// @Success 201 {object} object{property=models.Listing}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /listings [post]
func (s *Server) CreateListing(c *fiber.Ctx) error {
	var req CreateListingRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	listing, err := s.listingService.Create(c.UserContext(), req.input(currentUserID(c)))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"property": listing})
}

// UpdateListing handles PUT /api/listings/:id
// @Summary Update a listing
// @Tags listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Param request body UpdateListingRequest true "Changed fields"
// @Success 200 {object} object{property=models.Listing}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id} [put]
func (s *Server) UpdateListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req UpdateListingRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	listing, err := s.listingService.Update(c.UserContext(), req.input(id, currentUserID(c)))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"property": listing})
}

// DeleteListing handles DELETE /api/listings/:id
// @Summary Delete a listing
// @Tags listings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id} [delete]
func (s *Server) DeleteListing(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.listingService.Delete(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Property deleted successfully"})
}

// PromoteListing handles POST /api/listings/promote
// @Summary Feature a listing
// @Tags listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PromoteRequest true "Plan"
// @Success 200 {object} object{success=bool,message=string,isFeatured=bool,featuredExpiry=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/promote [post]
func (s *Server) PromoteListing(c *fiber.Ctx) error {
	var req PromoteRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	listing, err := s.listingService.Promote(c.UserContext(), currentUserID(c), req.PropertyID, req.Plan)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"message":        "Property promoted successfully",
		"isFeatured":     listing.IsFeatured,
		"featuredExpiry": listing.FeaturedExpiry,
	})
}

// SetListingVisibility handles PATCH /api/listings/:id/visibility
// @Summary Show or hide a listing
// @Tags listings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Listing ID"
// @Param request body VisibilityRequest true "Visibility"
// @Success 200 {object} object{property=models.Listing}
// @Failure 404 {object} models.ErrorResponse
// @Router /listings/{id}/visibility [patch]
func (s *Server) SetListingVisibility(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req VisibilityRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	listing, err := s.listingService.SetVisibility(c.UserContext(), currentUserID(c), id, *req.IsVisible)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"property": listing})
}

// GetMyListings handles GET /api/user/listings
// @Summary The caller's listings, hidden ones included
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{properties=[]models.Listing}
// @Router /user/listings [get]
func (s *Server) GetMyListings(c *fiber.Ctx) error {
	listings, err := s.listingService.ListOwn(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"properties": listings})
}
