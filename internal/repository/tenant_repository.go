package repository

import (
	"context"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
)

type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	// CreateWithOwner inserts the tenant and its first binding atomically.
	CreateWithOwner(ctx context.Context, tenant *domain.Tenant, owner *domain.TenantUser) error
	Update(ctx context.Context, tenant *domain.Tenant) error
	// ListByUser returns every tenant the user is bound to, ordered by name.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Tenant, error)
}

type TenantUserRepository interface {
	// Upsert creates or replaces the binding of (user, tenant).
	Upsert(ctx context.Context, binding *domain.TenantUser) error
	Get(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantUser, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TenantUser, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantUser, error)
	Delete(ctx context.Context, userID, tenantID uuid.UUID) error
	CountByRole(ctx context.Context, tenantID uuid.UUID, role domain.Role) (int, error)
}
