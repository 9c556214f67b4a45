package tenancy

import (
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
)

// publicState is the anonymous visitor: one generic user owning one
// enterprise tenant with every permission.
func publicState() State {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	user := &domain.User{
		ID:        domain.PublicUserID,
		Email:     "guest@nourhub.app",
		FirstName: "Guest",
		Status:    domain.UserStatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
	tenant := domain.Tenant{
		ID:               domain.PublicTenantID,
		Name:             "Public Access",
		Slug:             "public",
		Type:             domain.TenantTypeStable,
		SubscriptionTier: domain.TierEnterprise,
		Status:           domain.TenantStatusActive,
		Settings:         domain.TenantSettings{Features: map[string]bool{}},
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	current := tenant

	return State{
		Mode:             domain.AccessModePublic,
		User:             user,
		CurrentTenant:    &current,
		AvailableTenants: []domain.Tenant{tenant},
		Bindings: []domain.TenantUser{{
			ID:          domain.PublicTenantID,
			UserID:      user.ID,
			TenantID:    tenant.ID,
			Role:        domain.RoleOwner,
			Permissions: domain.PermissionSet{domain.AllPermissions()},
			CreatedAt:   at,
		}},
	}
}
