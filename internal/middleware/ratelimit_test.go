package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimitAllow_DevelopmentBypass(t *testing.T) {
	for _, env := range []string{"", "test", "development"} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			remaining, allowed, err := SearchLimit.Allow(context.Background(), nil, "ip:1.2.3.4")
			assert.NoError(t, err)
			assert.True(t, allowed)
			assert.Equal(t, SearchLimit.Max, remaining)
		})
	}
}

func TestLimitAllow_NilRedis(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, allowed, err := SearchLimit.Allow(context.Background(), nil, "ip:1.2.3.4")
	assert.ErrorIs(t, err, errNoRedis)
	assert.False(t, allowed)
}

func TestLimitAllow_CountsWithinWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	limit := Limit{Name: "send_message", Max: 2, Window: time.Minute}

	remaining, allowed, err := limit.Allow(ctx, rdb, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	_, allowed, err = limit.Allow(ctx, rdb, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)

	remaining, allowed, err = limit.Allow(ctx, rdb, "user:1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	_, allowed, err = limit.Allow(ctx, rdb, "user:2")
	require.NoError(t, err)
	assert.True(t, allowed, "other callers keep their own counter")

	ttl := mr.TTL("rl:send_message:user:1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "window set once, got %v", ttl)

	mr.FastForward(time.Minute + time.Second)
	_, allowed, err = limit.Allow(ctx, rdb, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

	t.Run("fail open without redis", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		app.Get("/listings", RateLimit(nil, SearchLimit), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/listings", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("fail closed without redis", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		app := fiber.New()
		app.Get("/auth/google", RateLimit(nil, SignInLimit), ok)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/google", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("limit exceeded returns 429", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		_, rdb := newTestRedis(t)
		app := fiber.New()
		app.Post("/messages", RateLimit(rdb, Limit{Name: "send_message", Max: 1, Window: time.Minute}), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusCreated)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/messages", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
		_ = resp.Body.Close()

		resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/messages", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
		_ = resp.Body.Close()
	})
}
