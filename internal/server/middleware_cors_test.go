package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frontendOrigin = "http://localhost:3000"

// exhaustGlobalLimiter spends the per-IP budget of the app-wide limiter.
func exhaustGlobalLimiter(t *testing.T, app *fiber.App, method, path string) {
	t.Helper()
	for i := 0; i < globalRequestsPerMinute; i++ {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(fiber.HeaderOrigin, frontendOrigin)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.NotEqual(t, fiber.StatusTooManyRequests, resp.StatusCode, "request %d", i+1)
		_ = resp.Body.Close()
	}
}

func TestGlobalLimiter_KeepsCORSHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	exhaustGlobalLimiter(t, env.app, http.MethodGet, "/api/feature-flags")

	req := httptest.NewRequest(http.MethodGet, "/api/feature-flags", nil)
	req.Header.Set(fiber.HeaderOrigin, frontendOrigin)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, frontendOrigin, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestGlobalLimiter_PreflightStillAnswered(t *testing.T) {
	env := newTestEnv(t, nil)
	exhaustGlobalLimiter(t, env.app, http.MethodPost, "/api/chat/messages")

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/messages", nil)
	req.Header.Set(fiber.HeaderOrigin, frontendOrigin)
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(fiber.HeaderAccessControlRequestHeaders, "authorization,content-type")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, frontendOrigin, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowMethods), http.MethodPost)
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowHeaders), "Authorization")
}
