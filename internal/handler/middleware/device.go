package middleware

import (
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	HeaderDeviceID = "X-Device-ID"
	localsDeviceID = "device_id"
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// DeviceID identifies the calling device by the X-Device-ID header. A
// missing or malformed id is replaced by a fresh one, echoed back so the
// client can keep it.
func DeviceID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderDeviceID)
		if !deviceIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		c.Locals(localsDeviceID, id)
		c.Set(HeaderDeviceID, id)
		return c.Next()
	}
}

func GetDeviceID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsDeviceID).(string)
	return id
}
