package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/service"
)

const localsMembership = "membership"

// MembershipLookup resolves the binding of a user in a tenant.
type MembershipLookup interface {
	GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*domain.TenantUser, error)
}

// RequireMember lets through members of the tenant named by the :id route
// parameter. Must run after AuthMiddleware.
func RequireMember(members MembershipLookup) fiber.Handler {
	return requireBinding(members, func(*domain.TenantUser) bool { return true })
}

// RequirePermission lets through members whose binding grants permission,
// either by name or through All.
func RequirePermission(members MembershipLookup, permission string) fiber.Handler {
	return requireBinding(members, func(b *domain.TenantUser) bool {
		return b.Permissions.Grants(permission)
	})
}

// RequireRole lets through members holding one of roles.
func RequireRole(members MembershipLookup, roles ...domain.Role) fiber.Handler {
	return requireBinding(members, func(b *domain.TenantUser) bool {
		for _, role := range roles {
			if b.Role == role {
				return true
			}
		}
		return false
	})
}

func requireBinding(members MembershipLookup, allow func(*domain.TenantUser) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetUserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}

		tenantID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid tenant id")
		}

		binding, err := members.GetMembership(c.Context(), tenantID, userID)
		if err != nil {
			if errors.Is(err, service.ErrMemberNotFound) {
				return fiber.NewError(fiber.StatusForbidden, "not a member of this tenant")
			}
			return err
		}
		if !allow(binding) {
			return fiber.NewError(fiber.StatusForbidden, "insufficient permissions")
		}

		c.Locals(localsMembership, binding)
		return c.Next()
	}
}

// GetMembership returns the binding checked by RequireMember and friends.
func GetMembership(c *fiber.Ctx) (*domain.TenantUser, bool) {
	binding, ok := c.Locals(localsMembership).(*domain.TenantUser)
	return binding, ok && binding != nil
}
