package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
)

const (
	localsClaims = "claims"
	localsToken  = "token"
)

// TokenAuthenticator validates access tokens, including revocation.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Claims, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the claims for downstream handlers.
func AuthMiddleware(auth TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "missing or malformed authorization header")
		}

		claims, err := auth.Authenticate(c.Context(), token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(localsClaims, claims)
		c.Locals(localsToken, token)
		return c.Next()
	}
}

// OptionalAuth stores the claims of a valid bearer token and otherwise lets
// the request through anonymously.
func OptionalAuth(auth TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return c.Next()
		}
		if claims, err := auth.Authenticate(c.Context(), token); err == nil {
			c.Locals(localsClaims, claims)
			c.Locals(localsToken, token)
		}
		return c.Next()
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func GetClaims(c *fiber.Ctx) (*domain.Claims, bool) {
	claims, ok := c.Locals(localsClaims).(*domain.Claims)
	return claims, ok && claims != nil
}

func GetUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return uuid.Nil, false
	}
	return claims.UserID, true
}

// GetToken returns the raw access token accepted by the auth middleware.
func GetToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localsToken).(string)
	return token
}
