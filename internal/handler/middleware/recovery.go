package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a panic into a 500 handled by the error handler.
func RecoveryMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				err = fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("internal server error: %v", r))
			}
		}()
		return c.Next()
	}
}
