package server

import (
	"time"

	"github.com/boubkhaled/streampump/internal/config"
	"github.com/boubkhaled/streampump/internal/models"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig customizes the request rate limiter.
type RateLimitConfig struct {
	Max        int
	Expiration time.Duration
}

// Builder assembles a server configuration programmatically for embedders
// that do not want a YAML file.
type Builder struct {
	cfg         *config.Config
	middlewares []fiber.Handler
	rateLimit   *RateLimitConfig
}

func NewBuilder() *Builder {
	return &Builder{
		cfg: &config.Config{
			Server: models.ServerConfig{
				Port:           "8080",
				AllowedOrigins: "*",
				Environment:    "development",
				LogLevel:       "info",
			},
			Pump: models.PumpConfig{
				ChunkSize:     64 * 1024,
				SpoolDir:      "spool",
				HTTPTimeoutMs: 120000,
			},
			Workers: models.WorkerConfig{
				PoolSize:  4,
				QueueSize: 64,
			},
		},
		middlewares: []fiber.Handler{},
	}
}

func (b *Builder) Build() *config.Config {
	return b.cfg
}

func (b *Builder) Port(port string) *Builder {
	b.cfg.Server.Port = port
	return b
}

func (b *Builder) AllowedOrigins(origins string) *Builder {
	b.cfg.Server.AllowedOrigins = origins
	return b
}

func (b *Builder) Environment(env string) *Builder {
	b.cfg.Server.Environment = env
	return b
}

func (b *Builder) LogLevel(level string) *Builder {
	b.cfg.Server.LogLevel = level
	return b
}

func (b *Builder) ChunkSize(n int) *Builder {
	b.cfg.Pump.ChunkSize = n
	return b
}

func (b *Builder) SpoolDir(dir string) *Builder {
	b.cfg.Pump.SpoolDir = dir
	return b
}

func (b *Builder) Workers(poolSize, queueSize int) *Builder {
	b.cfg.Workers.PoolSize = poolSize
	b.cfg.Workers.QueueSize = queueSize
	return b
}

func (b *Builder) WithDatabase(dbConfig models.DatabaseConfig) *Builder {
	b.cfg.Database = &dbConfig
	return b
}

func (b *Builder) WithRedis(url string) *Builder {
	b.cfg.Redis = &models.RedisConfig{URL: url}
	return b
}

func (b *Builder) WithAuth(authConfig models.AuthConfig) *Builder {
	b.cfg.Auth = &authConfig
	return b
}

func (b *Builder) WithCircuitBreaker(breakerConfig models.CircuitBreakerConfig) *Builder {
	b.cfg.Breaker = &breakerConfig
	return b
}

func (b *Builder) WithRateLimit(max int, expiration time.Duration) *Builder {
	b.rateLimit = &RateLimitConfig{
		Max:        max,
		Expiration: expiration,
	}
	return b
}

func (b *Builder) WithMiddleware(middleware fiber.Handler) *Builder {
	b.middlewares = append(b.middlewares, middleware)
	return b
}
