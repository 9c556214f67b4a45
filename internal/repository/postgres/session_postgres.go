package postgres

import (
	"context"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const sessionColumns = `id, user_id, tenant_id, refresh_token_hash, user_agent, ip_address, expires_at, created_at`

type sessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (
			:id, :user_id, :tenant_id, :refresh_token_hash, :user_agent,
			:ip_address, :expires_at, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, session)
	return wrap(err, "create session")
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get session by id")
	}
	return &session, nil
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.GetContext(ctx, &session,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, tokenHash)
	if err != nil {
		return nil, wrap(err, "get session by token")
	}
	return &session, nil
}

func (r *sessionRepository) Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = $1, expires_at = $2 WHERE id = $3`,
		tokenHash, expiresAt, id)
	if err != nil {
		return wrap(err, "rotate session")
	}
	return expectAffected(result, "rotate session")
}

func (r *sessionRepository) SetTenant(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET tenant_id = $1 WHERE id = $2`, tenantID, id)
	if err != nil {
		return wrap(err, "set session tenant")
	}
	return expectAffected(result, "set session tenant")
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return wrap(err, "delete session")
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return wrap(err, "delete user sessions")
}

func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, wrap(err, "delete expired sessions")
	}
	return result.RowsAffected()
}
