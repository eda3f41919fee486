package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisErrors counts failed Redis commands by command name.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rentonmap_redis_errors_total",
	Help: "Total number of failed Redis commands",
}, []string{"command"})

var (
	promOnce sync.Once
	promHTTP *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the Prometheus HTTP middleware registered on the
// default registry. The first caller's service name wins.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promHTTP = fiberprometheus.NewWithRegistry(prometheus.DefaultRegisterer, serviceName, "rentonmap", "http", nil)
	})
	return promHTTP
}

// MetricsMiddleware records request counts and latencies. The /metrics
// endpoint itself is registered by the server.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
