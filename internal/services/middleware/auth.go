package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/boubkhaled/streampump/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type AuthMiddleware struct {
	config *AuthMiddlewareConfig
}

type AuthMiddlewareConfig struct {
	Enabled     bool
	APIKeys     []string
	JWTSecret   string
	HeaderNames []string
	SkipPaths   []string
}

func DefaultAuthMiddlewareConfig() *AuthMiddlewareConfig {
	return &AuthMiddlewareConfig{
		Enabled:     true,
		HeaderNames: []string{"Authorization"},
		SkipPaths: []string{
			"/health",
		},
	}
}

// NewAuthMiddleware builds a bearer-token gate from the auth section of the
// service configuration.
func NewAuthMiddleware(cfg *models.AuthConfig) *AuthMiddleware {
	config := DefaultAuthMiddlewareConfig()
	if cfg != nil {
		config.Enabled = cfg.Enabled
		config.APIKeys = cfg.APIKeys
		config.JWTSecret = cfg.JWTSecret
	}
	return &AuthMiddleware{config: config}
}

func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.config.Enabled {
			return c.Next()
		}

		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		token := m.extractToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		authType, err := m.validateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("auth_type", authType)
		c.Locals("api_key_raw", token)

		return c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	for _, headerName := range m.config.HeaderNames {
		if header := c.Get(headerName); header != "" {
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				return after
			}
			return strings.TrimSpace(header)
		}
	}

	return ""
}

func (m *AuthMiddleware) validateToken(token string) (string, error) {
	for _, key := range m.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			return "api_key", nil
		}
	}

	if m.config.JWTSecret != "" {
		if err := m.validateJWT(token); err == nil {
			return "jwt", nil
		}
	}

	return "", fmt.Errorf("invalid or expired token")
}

func (m *AuthMiddleware) validateJWT(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
