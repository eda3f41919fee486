// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "rentonmap/docs" // swagger docs
	"rentonmap/internal/cache"
	"rentonmap/internal/config"
	"rentonmap/internal/database"
	"rentonmap/internal/featureflags"
	"rentonmap/internal/geoindex"
	"rentonmap/internal/identity"
	"rentonmap/internal/media"
	"rentonmap/internal/middleware"
	"rentonmap/internal/models"
	"rentonmap/internal/notifications"
	"rentonmap/internal/repository"
	"rentonmap/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// bodyLimit leaves room for several base64 photos in one listing request.
const bodyLimit = 50 * 1024 * 1024

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	listingRepo repository.ListingRepository
	chatRepo    repository.ChatRepository

	geo          geoindex.Index
	mediaStore   media.Store
	uploader     *media.Uploader
	events       notifications.Publisher
	notifier     *notifications.Notifier
	tokens       *identity.TokenIssuer
	revoker      *identity.Revoker
	oauth        identity.Provider
	featureFlags *featureflags.Manager

	listingService *service.ListingService
	userService    *service.UserService
	chatService    *service.ChatService

	closers []func(context.Context) error
}

// Option overrides a dependency that NewServerWithDeps would otherwise build
// from configuration.
type Option func(*Server)

// WithGeoIndex mirrors listing locations into idx and serves bounded searches from it.
func WithGeoIndex(idx geoindex.Index) Option {
	return func(s *Server) { s.geo = idx }
}

// WithMediaStore sets the object store used for uploaded listing photos.
func WithMediaStore(store media.Store) Option {
	return func(s *Server) { s.mediaStore = store }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p notifications.Publisher) Option {
	return func(s *Server) { s.events = p }
}

// WithIdentityProvider sets the OAuth sign-in provider.
func WithIdentityProvider(p identity.Provider) Option {
	return func(s *Server) { s.oauth = p }
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	redisClient := cache.InitRedis(cfg.RedisURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var opts []Option
	var closers []func(context.Context) error

	if cfg.MongoURI != "" {
		idx, err := geoindex.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("geo index connection failed: %w", err)
		}
		opts = append(opts, WithGeoIndex(idx))
		closers = append(closers, idx.Close)
	}

	store, err := media.NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	opts = append(opts, WithMediaStore(store))

	publisher, err := notifications.NewPublisher(cfg, redisClient)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}
	opts = append(opts, WithPublisher(publisher))

	if cfg.GoogleClientID != "" {
		opts = append(opts, WithIdentityProvider(
			identity.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)))
	}

	srv, err := NewServerWithDeps(cfg, db, redisClient, opts...)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closers...)
	return srv, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg.IsProduction() {
		models.ExposeInternalDetails = false
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("rentonmap-api"),
		userRepo:       repository.NewUserRepository(db),
		listingRepo:    repository.NewListingRepository(db),
		chatRepo:       repository.NewChatRepository(db),
		tokens:         identity.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour),
		revoker:        identity.NewRevoker(redisClient),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.events == nil {
		s.events = notifications.NewNotifier(redisClient)
	}
	if n, ok := s.events.(*notifications.Notifier); ok && redisClient != nil {
		s.notifier = n
	}
	if s.mediaStore == nil {
		base := cfg.MediaPublicBaseURL
		if base == "" {
			base = "/media"
		}
		s.mediaStore = media.NewLocalStore(cfg.MediaLocalDir, base)
	}

	folder := cfg.MediaS3Folder
	if folder == "" {
		folder = media.DefaultFolder
	}
	s.uploader = media.NewUploader(s.mediaStore, media.Options{
		Folder:      folder,
		MaxUploadMB: cfg.MediaMaxUploadMB,
		Normalizer: media.Normalizer{
			MaxDimension: media.DefaultMaxDimension,
			WebP:         s.featureFlags.On(featureflags.WebPImages),
		},
	})

	s.listingService = service.NewListingService(service.ListingServiceDeps{
		Listings:       s.listingRepo,
		Geo:            s.geo,
		Media:          s.uploader,
		Events:         s.events,
		Flags:          s.featureFlags,
		SearchCacheTTL: time.Duration(cfg.SearchCacheTTLSeconds) * time.Second,
	})
	s.userService = service.NewUserService(s.userRepo)
	s.chatService = service.NewChatService(s.chatRepo, s.listingRepo, s.events)

	return s, nil
}

// globalRequestsPerMinute is the per-IP ceiling applied to every route.
const globalRequestsPerMinute = 100

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())

	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	// Needs the request and trace ids set above.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Photos may be served from the same origin as the API.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so 429s still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        globalRequestsPerMinute,
		Expiration: time.Minute,
		// Preflight is answered by CORS above.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api.Get("/swagger/*", swagger.HandlerDefault)

	if local, ok := s.mediaStore.(*media.LocalStore); ok && strings.HasPrefix(local.BaseURL, "/") {
		app.Static(local.BaseURL, local.Dir, fiber.Static{MaxAge: 86400})
	}

	authRequired := middleware.AuthRequired(s.tokens, s.revoker)

	api.Get("/feature-flags", s.GetFeatureFlags)

	auth := api.Group("/auth")
	auth.Get("/google", middleware.RateLimit(s.redis, middleware.SignInLimit), s.GoogleSignIn)
	auth.Get("/google/callback", s.GoogleCallback)
	auth.Get("/session", authRequired, s.GetSession)
	auth.Post("/logout", authRequired, s.Logout)

	listings := api.Group("/listings")
	listings.Get("/", middleware.RateLimit(s.redis, middleware.SearchLimit), s.SearchListings)
	// Static segments before /:id
	listings.Post("/promote", authRequired, s.PromoteListing)
	listings.Post("/", authRequired, middleware.RateLimit(s.redis, middleware.CreateListingLimit), s.CreateListing)
	listings.Get("/:id", s.GetListing)
	listings.Put("/:id", authRequired, s.UpdateListing)
	listings.Delete("/:id", authRequired, s.DeleteListing)
	listings.Patch("/:id/visibility", authRequired, s.SetListingVisibility)

	user := api.Group("/user", authRequired)
	user.Get("/listings", s.GetMyListings)
	user.Get("/saved", s.GetSavedListings)
	user.Post("/saved", s.ToggleSavedListing)
	user.Get("/profile", s.GetProfile)
	user.Patch("/profile", s.RequestVerification)

	chat := api.Group("/chat", authRequired)
	chat.Get("/conversations", s.GetConversations)
	chat.Post("/conversations", s.StartConversation)
	chat.Post("/conversations/:id/read", s.MarkConversationRead)
	chat.Get("/messages", s.GetMessages)
	chat.Post("/messages", middleware.RateLimit(s.redis, middleware.SendMessageLimit), s.SendMessage)
}

// GetFeatureFlags handles GET /api/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID, _ := s.optionalUserID(c)
	return c.JSON(fiber.Map{"flags": s.featureFlags.Snapshot(userID)})
}

// optionalUserID reads the bearer token when present without enforcing it.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	token := middleware.BearerToken(c)
	if token == "" {
		return 0, false
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// App returns a fully configured fiber app for this server.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Rent On Map API",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start serves HTTP on the configured port and runs the featured-listing
// sweeper, geo index sync and event subscriber until Shutdown.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.App()

	s.listingService.StartFeaturedSweeper(s.shutdownCtx,
		time.Duration(s.config.FeaturedSweepMinutes)*time.Minute)
	s.listingService.StartGeoSync(s.shutdownCtx, service.DefaultGeoSyncRetry)
	if s.notifier != nil {
		go s.relayEvents(s.shutdownCtx)
	}

	middleware.Logger.Info("rent on map api listening", "port", s.config.Port, "env", s.config.Env)
	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) relayEvents(ctx context.Context) {
	err := s.notifier.Subscribe(ctx, func(channel string, e notifications.Event) {
		middleware.Logger.DebugContext(ctx, "event delivered",
			"channel", channel, "type", e.Type, "conversation_id", e.ConversationID)
	})
	if err != nil && ctx.Err() == nil {
		middleware.Logger.Error("event subscriber stopped", "error", err)
	}
}

// Shutdown stops background work, drains HTTP, then closes every backing
// client. Close failures are logged and returned together.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	record := func(what string, err error) {
		if err != nil {
			middleware.Logger.Error("shutdown step failed", "step", what, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}
	if s.app != nil {
		record("http", s.app.ShutdownWithContext(ctx))
	}
	if s.events != nil {
		record("events", s.events.Close())
	}
	for _, closeFn := range s.closers {
		record("dependency", closeFn(ctx))
	}
	record("postgres", database.Close())
	if s.redis != nil {
		record("redis", s.redis.Close())
	}

	middleware.Logger.Info("rent on map api stopped")
	return errors.Join(errs...)
}
