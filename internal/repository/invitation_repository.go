package repository

import (
	"context"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
)

type InvitationRepository interface {
	Create(ctx context.Context, invitation *domain.TenantInvitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TenantInvitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.TenantInvitation, error)
	// Redeem consumes one use if the invitation is still active and under
	// its use limit. It reports false when nothing was consumed.
	Redeem(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantInvitation, error)
}
