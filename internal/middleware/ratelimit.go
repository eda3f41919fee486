package middleware

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// Limit is a fixed-window budget for one named resource.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
	Policy FailPolicy
}

// Budgets for the abuse-prone routes.
var (
	SearchLimit        = Limit{Name: "search", Max: 120, Window: time.Minute}
	SignInLimit        = Limit{Name: "signin", Max: 20, Window: time.Minute, Policy: FailClosed}
	CreateListingLimit = Limit{Name: "create_listing", Max: 10, Window: 10 * time.Minute}
	SendMessageLimit   = Limit{Name: "send_message", Max: 30, Window: time.Minute}
)

var errNoRedis = errors.New("rate limit store unavailable")

// hitScript increments the window counter and starts the window on the
// first hit, atomically.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "development", "test":
		return true
	}
	return false
}

// Allow counts one hit against limit for the caller id and reports how many
// hits remain in the current window. Outside production-like environments
// every hit is allowed.
func (l Limit) Allow(ctx context.Context, rdb *redis.Client, id string) (remaining int, allowed bool, err error) {
	if rateLimitBypassed() {
		return l.Max, true, nil
	}
	if rdb == nil {
		return 0, false, errNoRedis
	}

	key := "rl:" + l.Name + ":" + id
	count, err := hitScript.Run(ctx, rdb, []string{key}, l.Window.Milliseconds()).Int()
	if err != nil {
		RedisErrors.WithLabelValues("rate_limit").Inc()
		return 0, false, err
	}

	remaining = l.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, count <= l.Max, nil
}

// RateLimit enforces limit per signed-in user, or per client IP for
// anonymous callers.
func RateLimit(rdb *redis.Client, limit Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid, ok := UserID(c); ok {
			id = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		remaining, allowed, err := limit.Allow(c.UserContext(), rdb, id)
		if err != nil {
			if limit.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit store unavailable, rejecting",
					"limit", limit.Name, "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Please try again shortly",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(limit.Window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		}
		return c.Next()
	}
}
