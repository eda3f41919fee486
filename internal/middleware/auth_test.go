package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentonmap/internal/identity"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revocationStub struct {
	revoked map[string]bool
	err     error
}

func (r revocationStub) IsRevoked(_ context.Context, jti string) (bool, error) {
	return r.revoked[jti], r.err
}

func TestAuthRequired(t *testing.T) {
	issuer := identity.NewTokenIssuer("test-secret-key-12345678901234567890123456789012", time.Hour)

	valid, _, err := issuer.Issue(123)
	require.NoError(t, err)
	revokedToken, revokedClaims, err := issuer.Issue(7)
	require.NoError(t, err)

	expired := identity.NewTokenIssuer("test-secret-key-12345678901234567890123456789012", time.Nanosecond)
	expiredToken, _, err := expired.Issue(5)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	tests := []struct {
		name           string
		authHeader     string
		revocations    RevocationChecker
		expectedStatus int
		expectedUserID uint
	}{
		{name: "Happy Path", authHeader: "Bearer " + valid, expectedStatus: http.StatusOK, expectedUserID: 123},
		{name: "Missing Header", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid Format", authHeader: "Basic dXNlcjpwYXNz", expectedStatus: http.StatusUnauthorized},
		{name: "Garbage Token", authHeader: "Bearer abc.def.ghi", expectedStatus: http.StatusUnauthorized},
		{name: "Expired Token", authHeader: "Bearer " + expiredToken, expectedStatus: http.StatusUnauthorized},
		{
			name:           "Revoked Token",
			authHeader:     "Bearer " + revokedToken,
			revocations:    revocationStub{revoked: map[string]bool{revokedClaims.JTI: true}},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Revocation Store Down Fails Open",
			authHeader:     "Bearer " + valid,
			revocations:    revocationStub{err: errors.New("redis down")},
			expectedStatus: http.StatusOK,
			expectedUserID: 123,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/test", AuthRequired(issuer, tt.revocations), func(c *fiber.Ctx) error {
				userID, _ := UserID(c)
				ctxUserID, _ := c.UserContext().Value(UserIDKey).(uint)
				return c.JSON(fiber.Map{"userID": userID, "ctxUserID": ctxUserID})
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]uint
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.expectedUserID, body["userID"])
				assert.Equal(t, tt.expectedUserID, body["ctxUserID"])
			}
		})
	}
}
