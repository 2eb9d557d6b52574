// Package server boots a streampump service: fiber app, middleware stack,
// infrastructure clients, transfer routes and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/boubkhaled/streampump/internal/api"
	"github.com/boubkhaled/streampump/internal/config"
	"github.com/boubkhaled/streampump/internal/services/circuitbreaker"
	"github.com/boubkhaled/streampump/internal/services/database"
	"github.com/boubkhaled/streampump/internal/services/middleware"
	"github.com/boubkhaled/streampump/internal/services/transfer"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Server represents a streampump server instance.
type Server struct {
	config  *config.Config
	app     *fiber.App
	redis   *redis.Client
	db      *database.DB
	builder *Builder
	service *transfer.Service
}

// New creates a new Server instance with the given configuration.
// The cfg parameter is required and must not be nil.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or the builder to create config")
	}

	return &Server{config: cfg}
}

// NewWithBuilder creates a new Server instance from a configuration builder.
func NewWithBuilder(b *Builder) *Server {
	return &Server{
		config:  b.Build(),
		builder: b,
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	s.app = createFiberApp(s.config)

	redisClient, err := createRedisClient(s.config)
	if err != nil {
		return err
	}
	s.redis = redisClient
	if s.redis != nil {
		defer func() {
			if err := s.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	db, err := createDatabase(s.config)
	if err != nil {
		return err
	}
	s.db = db
	if s.db != nil {
		defer func() {
			if err := s.db.Close(); err != nil {
				fiberlog.Errorf("Failed to close database connection: %v", err)
			}
		}()
	}

	if s.db == nil {
		return fmt.Errorf("database configuration is required")
	}

	s.service = transfer.NewService(s.db, s.redis, transferOptions(s.config))
	defer s.service.Close()

	s.setupMiddleware()
	s.setupRoutes()

	s.app.Get("/", welcomeHandler())

	fmt.Printf("streampump starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Context cancelled, starting shutdown...")
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- s.app.ShutdownWithTimeout(30 * time.Second)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

// Service exposes the transfer service for embedding applications.
func (s *Server) Service() *transfer.Service {
	return s.service
}

func transferOptions(cfg *config.Config) transfer.Options {
	opts := transfer.Options{
		ChunkSize:   cfg.Pump.ChunkSize,
		SpoolDir:    cfg.Pump.SpoolDir,
		HTTPTimeout: time.Duration(cfg.Pump.HTTPTimeoutMs) * time.Millisecond,
		PoolSize:    cfg.Workers.PoolSize,
		QueueSize:   cfg.Workers.QueueSize,
	}
	if cfg.Breaker != nil {
		opts.Breaker = circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			Timeout:          time.Duration(cfg.Breaker.TimeoutMs) * time.Millisecond,
			ResetAfter:       time.Duration(cfg.Breaker.ResetAfterMs) * time.Millisecond,
		}
	}
	return opts
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:              "streampump v1.0",
		EnablePrintRoutes:    !isProd,
		ReadTimeout:          2 * time.Minute,
		WriteTimeout:         10 * time.Minute,
		IdleTimeout:          5 * time.Minute,
		ReadBufferSize:       8192,
		WriteBufferSize:      8192,
		CompressedFileSuffix: ".gz",
		Prefork:              false,
		CaseSensitive:        true,
		StrictRouting:        false,
		Network:              "tcp",
		ServerHeader:         "streampump",
		BodyLimit:            64 * 1024 * 1024,
	})
}

// rateLimitKey buckets requests per credential. Auth runs later in the
// middleware chain, so the key comes off the raw header rather than locals.
func rateLimitKey(c *fiber.Ctx) string {
	if token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); token != "" {
		return token
	}
	return c.IP()
}

func (s *Server) setupMiddleware() {
	isProd := s.config.IsProduction()

	// Recover middleware (must be first)
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Rate limiter keyed by bearer credential when present, client IP otherwise
	rateMax := 1000
	rateWindow := 1 * time.Minute
	if s.builder != nil && s.builder.rateLimit != nil {
		rateMax = s.builder.rateLimit.Max
		rateWindow = s.builder.rateLimit.Expiration
	}
	s.app.Use(limiter.New(limiter.Config{
		Max:               rateMax,
		Expiration:        rateWindow,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      rateLimitKey,
		LimitReached: func(c *fiber.Ctx) error {
			return fmt.Errorf("%d requests per %v", rateMax, rateWindow)
		},
	}))

	// Request timeout middleware for the control-plane routes. Streaming
	// responses are bounded by the fiber write timeout instead.
	s.app.Use(func(c *fiber.Ctx) error {
		const (
			defaultTimeout = 30 * time.Second
			maxTimeout     = 2 * time.Minute
		)

		timeout := defaultTimeout
		if customTimeout := c.Get("X-Request-Timeout"); customTimeout != "" {
			if d, err := time.ParseDuration(customTimeout); err == nil && d > 0 {
				timeout = min(d, maxTimeout)
			}
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)

		return c.Next()
	})

	// Compression
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Logging
	if isProd {
		s.app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, User-Agent, X-Request-Timeout",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: false,
		MaxAge:           86400,
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
	}))

	// Custom middlewares from builder
	if s.builder != nil {
		for _, mw := range s.builder.middlewares {
			s.app.Use(mw)
		}
	}

	// Bearer auth gate for the API surface
	if s.config.Auth != nil && s.config.Auth.Enabled {
		authMiddleware := middleware.NewAuthMiddleware(s.config.Auth)
		s.app.Use("/v1/*", authMiddleware.RequireAuth())
	}

	// Profiler (dev only)
	if !isProd {
		s.app.Use(pprof.New())
	}
}

func (s *Server) setupRoutes() {
	healthHandler := api.NewHealthHandler(s.db, s.redis)
	s.app.Get("/health", healthHandler.HealthCheck)

	transferHandler := api.NewTransferHandler(s.service)
	transfers := s.app.Group("/v1/transfers")
	transfers.Post("/", transferHandler.CreateTransfer)
	transfers.Get("/", transferHandler.ListTransfers)
	transfers.Get("/:id", transferHandler.GetTransfer)
	transfers.Delete("/:id", transferHandler.CancelTransfer)

	fileHandler := api.NewFileHandler(s.config.Pump.SpoolDir, s.config.Pump.ChunkSize)
	s.app.Get("/v1/files/+", fileHandler.ServeFile)
	s.app.Get("/v1/checksums/+", fileHandler.Checksum)
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		fiberlog.Info("Redis not configured - live status mirror and circuit breakers disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opt)

	return testRedisConnectionWithRetry(client)
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}

func createDatabase(cfg *config.Config) (*database.DB, error) {
	if cfg.Database == nil {
		return nil, nil
	}

	db, err := database.New(*cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return db, nil
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "streampump",
			"version": "1.0",
			"status":  "running",
		})
	}
}
