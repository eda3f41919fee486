package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetProfile handles GET /api/user/profile
// @Summary The caller's profile
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /user/profile [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// RequestVerification handles PATCH /api/user/profile
// @Summary Request profile verification
// @Description Moves the caller to "pending" unless already verified.
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Router /user/profile [patch]
func (s *Server) RequestVerification(c *fiber.Ctx) error {
	user, err := s.userService.RequestVerification(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// ToggleSavedListing handles POST /api/user/saved
// @Summary Save or unsave a listing
// @Tags user
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ToggleSavedRequest true "Listing"
// @Success 200 {object} object{isSaved=bool,savedProperties=[]int}
// @Failure 404 {object} models.ErrorResponse
// @Router /user/saved [post]
func (s *Server) ToggleSavedListing(c *fiber.Ctx) error {
	var req ToggleSavedRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	saved, ids, err := s.userService.ToggleSaved(c.UserContext(), currentUserID(c), req.PropertyID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"isSaved": saved, "savedProperties": ids})
}

// GetSavedListings handles GET /api/user/saved
// @Summary The caller's saved listings
// @Tags user
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{savedProperties=[]models.Listing}
// @Router /user/saved [get]
func (s *Server) GetSavedListings(c *fiber.Ctx) error {
	listings, err := s.userService.ListSaved(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"savedProperties": listings})
}
