package repository

import (
	"context"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// Rotate replaces the refresh token of a session.
	Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	SetTenant(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}
