package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	statusHealthy     = "healthy"
	statusUnhealthy   = "unhealthy"
	statusUnavailable = "unavailable"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func pingStatus(ctx context.Context, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

// LivenessCheck answers as long as the process can serve requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now().UTC()})
}

// ReadinessCheck pings the listings database and the optional backends.
// Only the database gates readiness; a missing or failing Redis or geo
// index leaves the API serving uncached, unlimited, SQL-only search.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{
		"database": pingStatus(ctx, func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"redis":    statusUnavailable,
		"geoIndex": statusUnavailable,
		"media":    s.mediaStore.Driver(),
	}
	if s.redis != nil {
		checks["redis"] = pingStatus(ctx, func(ctx context.Context) error { return s.redis.Ping(ctx).Err() })
	}
	if p, ok := s.geo.(pinger); ok {
		checks["geoIndex"] = pingStatus(ctx, p.Ping)
	}

	code, overall := fiber.StatusOK, statusHealthy
	switch {
	case checks["database"] != statusHealthy:
		code, overall = fiber.StatusServiceUnavailable, statusUnhealthy
	case checks["redis"] != statusHealthy:
		overall = "degraded"
	}
	return c.Status(code).JSON(fiber.Map{"status": overall, "checks": checks, "time": time.Now().UTC()})
}
