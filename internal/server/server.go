// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "thirtyday/docs" // swagger docs
	"thirtyday/internal/bootstrap"
	"thirtyday/internal/config"
	"thirtyday/internal/featureflags"
	"thirtyday/internal/middleware"
	"thirtyday/internal/models"
	"thirtyday/internal/notifications"
	"thirtyday/internal/service"

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

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	runtime        *bootstrap.Runtime
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager

	userService      *service.UserService
	connections      *service.FriendConnectionStore
	watcher          *service.ConnectionWatcher
	challengeService *service.ChallengeService
	apiKeyService    *service.APIKeyService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	rt, err := bootstrap.NewRuntime(cfg, db, redisClient)
	if err != nil {
		return nil, fmt.Errorf("build runtime: %w", err)
	}
	return NewServerWithRuntime(rt), nil
}

// NewServerWithRuntime creates a Server over a prepared runtime.
func NewServerWithRuntime(rt *bootstrap.Runtime) *Server {
	s := &Server{
		config:           rt.Config,
		db:               rt.DB,
		redis:            rt.Redis,
		promMiddleware:   middleware.InitMetrics("thirtyday-api"),
		runtime:          rt,
		featureFlags:     featureflags.NewManager(rt.Config.FeatureFlags),
		userService:      rt.Users,
		connections:      rt.Connections,
		watcher:          rt.Watcher,
		challengeService: rt.Challenges,
		apiKeyService:    rt.APIKeys,
	}
	s.hub = notifications.NewHub(s.watchConnections)
	middleware.InitMiddleware(rt.Config, rt.APIKeys)
	return s
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before anything that can short-circuit so error
	// responses still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Websocket routes authenticate on their own and must be registered
	// before the protected group.
	ws := api.Group("/ws", middleware.WebSocketAuthRequired,
		s.featureRequired(featureflags.ConnectionsLive), websocketUpgradeRequired)
	ws.Get("/connections", s.ConnectionsWebSocketHandler())

	protected := api.Group("", middleware.AuthRequired, middleware.RequireScopes)

	protected.Get("/feature-flags", s.GetFeatureFlags)

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)

	connections := protected.Group("/connections")
	connections.Get("/", s.ListConnections)
	connections.Post("/invite", middleware.RateLimit(
		s.redis, 20, 10*time.Minute, "connection_invite"), s.InviteConnection)
	connections.Post("/:id/accept", s.AcceptConnection)
	connections.Post("/:id/reject", s.RejectConnection)

	challenges := protected.Group("/challenges")
	challenges.Get("/", s.ListChallenges)
	challenges.Post("/", s.CreateChallenge)
	challenges.Get("/:id", s.GetChallenge)
	challenges.Delete("/:id", s.DeleteChallenge)

	apiKeys := protected.Group("/settings/api-keys",
		middleware.RequireSession, s.featureRequired(featureflags.APIKeys))
	apiKeys.Get("/", s.ListAPIKeys)
	apiKeys.Post("/", middleware.RateLimit(
		s.redis, 5, time.Hour, "api_key_create"), s.CreateAPIKey)
	apiKeys.Delete("/:id", s.RevokeAPIKey)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: a
// missing client degrades the change feed to this process but does not fail
// the probe, a failing one does.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database":    dbStatus,
			"redis":       redisStatus,
			"change_feed": s.runtime.Feed,
		},
		"time": time.Now(),
	})
}

// featureRequired hides a route group behind a feature flag.
func (s *Server) featureRequired(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := middleware.CurrentUserID(c)
		if !s.featureFlags.Enabled(name, userID) {
			return models.RespondWithError(c, fiber.StatusNotFound, models.ErrNotFound)
		}
		return c.Next()
	}
}

// App builds the Fiber app with middleware and routes on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Thirty Day API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "Unhandled error",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start connects the change feed and serves HTTP until Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if err := s.runtime.StartChangeFeed(s.shutdownCtx); err != nil {
		return fmt.Errorf("start %s change feed: %w", s.runtime.Feed, err)
	}
	middleware.Logger.Info("Change feed started", slog.String("source", s.runtime.Feed))

	app := s.App()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the change feed
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("Error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close WebSocket connections gracefully
	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("Error shutting down hub",
			slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("Error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("Error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
