// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"blogger/internal/auth"
	"blogger/internal/blob"
	"blogger/internal/cache"
	"blogger/internal/config"
	"blogger/internal/database"
	"blogger/internal/media"
	"blogger/internal/middleware"
	"blogger/internal/models"
	"blogger/internal/realtime"
	"blogger/internal/repository"
	"blogger/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "blogger-api"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	profileRepo    repository.ProfileRepository
	postRepo       repository.PostRepository
	blobs          blob.Store
	auth           *auth.Provider
	broker         *realtime.Broker
	rateLimiter    *middleware.Limiter
	projector      *realtime.Projector
	profileService *service.ProfileService
	postService    *service.PostService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: changes then fan out in-process and tokens cannot be revoked.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	blobs, err := blob.NewFilesystemStore(cfg.BlobDir, cfg.BlobPublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	broker := realtime.NewBroker(redisClient)
	profileRepo := repository.NewProfileRepository(db, broker)
	postRepo := repository.NewPostRepository(db, broker)
	provider := auth.NewProvider(db, redisClient, profileRepo, cfg.JWTSecret)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(serviceName),
		profileRepo:    profileRepo,
		postRepo:       postRepo,
		blobs:          blobs,
		auth:           provider,
		broker:         broker,
		rateLimiter:    middleware.NewLimiter(redisClient, cfg.Env),
	}
	server.profileService = service.NewProfileService(
		profileRepo, blobs, provider,
		media.NewAvatarProcessor(cfg.AvatarMaxUploadMB, cfg.AvatarFormat),
	)
	server.postService = service.NewPostService(postRepo, profileRepo, provider)
	server.projector = realtime.NewProjector(broker, server.postService)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Media is embedded cross-origin by clients.
	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
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
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Get(strings.TrimRight(mediaRoutePrefix(s.config.BlobPublicBaseURL), "/")+"/*", s.ServeMedia)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", s.rateLimiter.Limit(middleware.SignupRule), s.Signup)
	authGroup.Post("/login", s.rateLimiter.Limit(middleware.LoginRule), s.Login)
	authGroup.Post("/logout", s.AuthRequired(), s.Logout)

	// /users/me is registered before /users/:username.
	api.Get("/users/me", s.AuthRequired(), s.GetMyProfile)
	api.Put("/users/me", s.AuthRequired(), s.rateLimiter.Limit(middleware.ProfileEditRule), s.UpdateMyProfile)
	api.Get("/users/:username/posts", s.GetUserPosts)
	api.Get("/users/:username", s.GetUserProfile)

	api.Get("/posts", s.GetFeed)
	api.Post("/posts", s.AuthRequired(), s.rateLimiter.Limit(middleware.CreatePostRule), s.CreatePost)

	ws := api.Group("/ws", s.requireUpgrade)
	ws.Get("/feed", s.FeedWebSocket())
	ws.Get("/users/:username", s.ProfileWebSocket())
}

// NewApp builds the Fiber app with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	bodyLimitMB := s.config.AvatarMaxUploadMB
	if bodyLimitMB <= 0 {
		bodyLimitMB = media.DefaultMaxUploadMB
	}

	app := fiber.New(fiber.Config{
		AppName:   "Blogger API",
		BodyLimit: (bodyLimitMB + 1) << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck reports that the process is up
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database is reachable. Redis is optional.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
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
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired verifies the bearer token and puts the principal in the request context.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthenticatedError())
		}

		principal, err := s.auth.Authenticate(c.UserContext(), token)
		if err != nil {
			return respondServiceError(c, err)
		}

		c.Locals("userID", principal.UID)
		c.Locals("token", token)
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, principal.UID)
		ctx = auth.WithPrincipal(ctx, principal)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

func (s *Server) requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	if err := s.broker.Start(s.shutdownCtx); err != nil {
		log.Printf("change subscription unavailable, delivering changes in-process only: %v", err)
	}

	s.app = s.NewApp()

	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the change subscriber and every live view bound to it.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
