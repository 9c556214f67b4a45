package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/handler/middleware"
)

type UserHandler struct {
	auth    AuthAPI
	tenants TenantAPI
}

func NewUserHandler(auth AuthAPI, tenants TenantAPI) *UserHandler {
	return &UserHandler{
		auth:    auth,
		tenants: tenants,
	}
}

// GetMe returns the signed-in user with their tenants and bindings
// GET /api/v1/users/me
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	user, err := h.auth.GetUser(c.Context(), userID)
	if err != nil {
		return err
	}

	memberships, err := h.tenants.GetUserTenants(c.Context(), user.Email)
	if err != nil {
		return err
	}
	if memberships.Tenants == nil {
		memberships.Tenants = []domain.Tenant{}
	}
	if memberships.Bindings == nil {
		memberships.Bindings = []domain.TenantUser{}
	}

	return c.JSON(fiber.Map{
		"user":     user,
		"tenants":  memberships.Tenants,
		"bindings": memberships.Bindings,
	})
}
