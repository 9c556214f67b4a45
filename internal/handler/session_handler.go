package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/daylihorse/nour-hub/internal/handler/middleware"
)

type SessionHandler struct {
	auth AuthAPI
}

func NewSessionHandler(auth AuthAPI) *SessionHandler {
	return &SessionHandler{auth: auth}
}

// sessionResponse hides the refresh token hash.
type sessionResponse struct {
	ID        string    `json:"id"`
	TenantID  *string   `json:"tenant_id,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	IPAddress *string   `json:"ip_address,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// GetSession describes the session behind the bearer token
// GET /api/v1/auth/session
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.auth.GetSession(c.Context(), middleware.GetToken(c))
	if err != nil {
		return err
	}

	resp := sessionResponse{
		ID:        session.ID.String(),
		UserAgent: session.UserAgent,
		IPAddress: session.IPAddress,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	}
	if session.TenantID != nil {
		id := session.TenantID.String()
		resp.TenantID = &id
	}
	return c.JSON(fiber.Map{"session": resp})
}

// RevokeAll closes every session of the current user, on every device
// DELETE /api/v1/users/me/sessions
func (h *SessionHandler) RevokeAll(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	if err := h.auth.InvalidateAllUserSessions(c.Context(), userID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "all sessions have been closed"})
}
