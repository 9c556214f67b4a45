package repository

import (
	"context"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	// IncrementFailedLogins bumps the counter and returns the new value.
	IncrementFailedLogins(ctx context.Context, id uuid.UUID) (int, error)
	Lock(ctx context.Context, id uuid.UUID, until time.Time) error
	ResetFailedLogins(ctx context.Context, id uuid.UUID) error
}
