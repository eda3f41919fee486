// Package middleware provides authentication, logging, rate limiting and
// metrics middleware for the HTTP API.
package middleware

import (
	"context"
	"strings"

	"rentonmap/internal/identity"
	"rentonmap/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals populated by AuthRequired.
const (
	LocalUserID = "userID"
	LocalClaims = "claims"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired rejects requests without a valid, unrevoked bearer token and
// stores the caller's user id in c.Locals("userID") and the user context.
// Revocation lookups that fail are treated as not revoked.
func AuthRequired(verifier TokenVerifier, revocations RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c)
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if revocations != nil && claims.JTI != "" {
			revoked, err := revocations.IsRevoked(c.UserContext(), claims.JTI)
			if err == nil && revoked {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalClaims, claims)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), UserIDKey, claims.UserID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// UserID returns the authenticated user id set by AuthRequired.
func UserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok && id != 0
}
