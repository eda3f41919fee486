package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Records written with a
// request context carry request, user and trace identifiers.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// Locals populated by the fiber requestid and tracing middleware.
const (
	localRequestID = "requestid"
	localTraceID   = "traceID"
)

type requestAttrHandler struct {
	slog.Handler
}

func (h requestAttrHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range []contextKey{RequestIDKey, TraceIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok && uid != 0 {
		r.AddAttrs(slog.Uint64(string(UserIDKey), uint64(uid)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestAttrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestAttrHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestAttrHandler) WithGroup(name string) slog.Handler {
	return requestAttrHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds the request-aware logger. Production emits JSON, every
// other environment emits logfmt-style text.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(requestAttrHandler{base})
}

func init() {
	Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextMiddleware copies request-scoped identifiers from fiber locals into
// the user context so service-layer logging can see them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals(localRequestID).(string); ok {
			ctx = context.WithValue(ctx, RequestIDKey, rid)
		}
		if tid, ok := c.Locals(localTraceID).(string); ok {
			ctx = context.WithValue(ctx, TraceIDKey, tid)
		}
		// Protected groups set the user id again in AuthRequired.
		if uid, ok := c.Locals(LocalUserID).(uint); ok {
			ctx = context.WithValue(ctx, UserIDKey, uid)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger writes one access record per request.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		began := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(began)),
			slog.String("ip", c.IP()),
		}
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			attrs = append(attrs, slog.String("user_agent", ua))
		}

		ctx := c.UserContext()
		switch {
		case err != nil:
			Logger.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", err.Error()))...)
		case status >= fiber.StatusInternalServerError:
			Logger.ErrorContext(ctx, "request completed", attrs...)
		case status >= fiber.StatusBadRequest:
			Logger.WarnContext(ctx, "request completed", attrs...)
		default:
			Logger.InfoContext(ctx, "request completed", attrs...)
		}
		return err
	}
}
