package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_hash, first_name, last_name, status,
	failed_logins, locked_until, created_at, updated_at, last_login_at`

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (
			:id, :email, :password_hash, :first_name, :last_name, :status,
			:failed_logins, :locked_until, :created_at, :updated_at, :last_login_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, user)
	return wrap(err, "create user")
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get user by id")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, wrap(err, "get user by email")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = :email,
			password_hash = :password_hash,
			first_name = :first_name,
			last_name = :last_name,
			status = :status,
			failed_logins = :failed_logins,
			locked_until = :locked_until,
			updated_at = :updated_at,
			last_login_at = :last_login_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return wrap(err, "update user")
	}
	return expectAffected(result, "update user")
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return wrap(err, "update last login")
	}
	return expectAffected(result, "update last login")
}

func (r *userRepository) IncrementFailedLogins(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		UPDATE users
		SET failed_logins = failed_logins + 1,
			updated_at = $1
		WHERE id = $2
		RETURNING failed_logins`, time.Now(), id)
	if err != nil {
		return 0, wrap(err, "increment failed logins")
	}
	return count, nil
}

func (r *userRepository) Lock(ctx context.Context, id uuid.UUID, until time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET status = $1,
			locked_until = $2,
			updated_at = $3
		WHERE id = $4`, domain.UserStatusLocked, until, time.Now(), id)
	if err != nil {
		return wrap(err, "lock user")
	}
	return expectAffected(result, "lock user")
}

func (r *userRepository) ResetFailedLogins(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET failed_logins = 0,
			locked_until = NULL,
			status = CASE WHEN status = $1 THEN $2 ELSE status END,
			updated_at = $3
		WHERE id = $4`, domain.UserStatusLocked, domain.UserStatusActive, time.Now(), id)
	if err != nil {
		return wrap(err, "reset failed logins")
	}
	return expectAffected(result, "reset failed logins")
}
