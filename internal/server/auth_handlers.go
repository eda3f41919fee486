package server

import (
	"net/url"
	"time"

	"rentonmap/internal/identity"
	"rentonmap/internal/middleware"
	"rentonmap/internal/models"

	"github.com/gofiber/fiber/v2"
)

const stateCookie = "rentonmap_oauth_state"

// GoogleSignIn handles GET /api/auth/google
// @Summary Start Google sign-in
// @Description Redirects to the Google consent page.
// @Tags auth
// @Success 302
// @Failure 503 {object} models.ErrorResponse
// @Router /auth/google [get]
func (s *Server) GoogleSignIn(c *fiber.Ctx) error {
	if s.oauth == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Sign-in is not configured",
		})
	}

	state, err := s.tokens.IssueState()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth",
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(s.oauth.AuthCodeURL(state), fiber.StatusFound)
}

// GoogleCallback handles GET /api/auth/google/callback
// @Summary Finish Google sign-in
// @Description Links the Google account to a user by email and issues an access token.
// @Tags auth
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "State from the sign-in redirect"
// @Success 200 {object} object{token=string,user=models.User}
// @Success 302
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/google/callback [get]
func (s *Server) GoogleCallback(c *fiber.Ctx) error {
	if s.oauth == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Sign-in is not configured",
		})
	}

	state := c.Query("state")
	if state == "" || state != c.Cookies(stateCookie) || s.tokens.VerifyState(state) != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid sign-in state"))
	}
	c.ClearCookie(stateCookie)

	code := c.Query("code")
	if code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Missing authorization code", "code"))
	}

	profile, err := s.oauth.Exchange(c.UserContext(), code)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "oauth exchange failed", "error", err)
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Sign-in failed"))
	}

	user, err := s.userService.SignIn(c.UserContext(), *profile)
	if err != nil {
		return respondServiceError(c, err)
	}

	token, _, err := s.tokens.Issue(user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	if s.config.FrontendURL != "" {
		return c.Redirect(s.config.FrontendURL+"/auth/callback#token="+url.QueryEscape(token), fiber.StatusFound)
	}
	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// GetSession handles GET /api/auth/session
// @Summary The signed-in user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user=models.User}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/session [get]
func (s *Server) GetSession(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

// Logout handles POST /api/auth/logout
// @Summary Revoke the current access token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals(middleware.LocalClaims).(*identity.Claims)
	if err := s.revoker.Revoke(c.UserContext(), claims); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"success": true})
}
