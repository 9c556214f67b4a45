package postgres

import (
	"context"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const invitationColumns = `id, tenant_id, token_hash, created_by, role, all_permissions, permissions,
	max_uses, current_uses, expires_at, status, created_at, updated_at`

type invitationRow struct {
	ID             uuid.UUID               `db:"id"`
	TenantID       uuid.UUID               `db:"tenant_id"`
	TokenHash      string                  `db:"token_hash"`
	CreatedBy      uuid.UUID               `db:"created_by"`
	Role           domain.Role             `db:"role"`
	AllPermissions bool                    `db:"all_permissions"`
	Permissions    pq.StringArray          `db:"permissions"`
	MaxUses        *int                    `db:"max_uses"`
	CurrentUses    int                     `db:"current_uses"`
	ExpiresAt      time.Time               `db:"expires_at"`
	Status         domain.InvitationStatus `db:"status"`
	CreatedAt      time.Time               `db:"created_at"`
	UpdatedAt      time.Time               `db:"updated_at"`
}

func newInvitationRow(inv *domain.TenantInvitation) invitationRow {
	return invitationRow{
		ID:             inv.ID,
		TenantID:       inv.TenantID,
		TokenHash:      inv.TokenHash,
		CreatedBy:      inv.CreatedBy,
		Role:           inv.Role,
		AllPermissions: inv.Permissions.HasAll(),
		Permissions:    pq.StringArray(inv.Permissions.Names()),
		MaxUses:        inv.MaxUses,
		CurrentUses:    inv.CurrentUses,
		ExpiresAt:      inv.ExpiresAt,
		Status:         inv.Status,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

func (row invitationRow) toDomain() *domain.TenantInvitation {
	return &domain.TenantInvitation{
		ID:          row.ID,
		TenantID:    row.TenantID,
		TokenHash:   row.TokenHash,
		CreatedBy:   row.CreatedBy,
		Role:        row.Role,
		Permissions: permissionSet(row.AllPermissions, row.Permissions),
		MaxUses:     row.MaxUses,
		CurrentUses: row.CurrentUses,
		ExpiresAt:   row.ExpiresAt,
		Status:      row.Status,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

type invitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new PostgreSQL invitation repository
func NewInvitationRepository(db *sqlx.DB) repository.InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, invitation *domain.TenantInvitation) error {
	query := `
		INSERT INTO tenant_invitations (` + invitationColumns + `)
		VALUES (
			:id, :tenant_id, :token_hash, :created_by, :role, :all_permissions, :permissions,
			:max_uses, :current_uses, :expires_at, :status, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, newInvitationRow(invitation))
	return wrap(err, "create invitation")
}

func (r *invitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TenantInvitation, error) {
	var row invitationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+invitationColumns+` FROM tenant_invitations WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get invitation")
	}
	return row.toDomain(), nil
}

func (r *invitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.TenantInvitation, error) {
	var row invitationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+invitationColumns+` FROM tenant_invitations WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return nil, wrap(err, "get invitation by token")
	}
	return row.toDomain(), nil
}

func (r *invitationRepository) Redeem(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tenant_invitations
		SET current_uses = current_uses + 1,
			updated_at = $1
		WHERE id = $2
		  AND status = $3
		  AND expires_at > $1
		  AND (max_uses IS NULL OR current_uses < max_uses)`,
		time.Now(), id, domain.InvitationStatusActive)
	if err != nil {
		return false, wrap(err, "redeem invitation")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrap(err, "redeem invitation")
	}
	return rows == 1, nil
}

func (r *invitationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenant_invitations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	if err != nil {
		return wrap(err, "update invitation status")
	}
	return expectAffected(result, "update invitation status")
}

func (r *invitationRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantInvitation, error) {
	var rows []invitationRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+invitationColumns+` FROM tenant_invitations WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, wrap(err, "list invitations")
	}
	out := make([]*domain.TenantInvitation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
