package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware allows the configured origins. Credentials are only
// allowed for an explicit origin list.
func CORSMiddleware(allowedOrigins string) fiber.Handler {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization," + HeaderDeviceID,
		ExposeHeaders:    HeaderDeviceID,
		AllowCredentials: allowedOrigins != "*",
	})
}
