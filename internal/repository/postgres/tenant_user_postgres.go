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

const tenantUserColumns = `id, user_id, tenant_id, role, all_permissions, permissions, created_at`

// tenantUserRow stores the All variant as a flag next to the named grants.
type tenantUserRow struct {
	ID             uuid.UUID      `db:"id"`
	UserID         uuid.UUID      `db:"user_id"`
	TenantID       uuid.UUID      `db:"tenant_id"`
	Role           domain.Role    `db:"role"`
	AllPermissions bool           `db:"all_permissions"`
	Permissions    pq.StringArray `db:"permissions"`
	CreatedAt      time.Time      `db:"created_at"`
}

// permissionSet rebuilds a PermissionSet from its column form.
func permissionSet(all bool, names []string) domain.PermissionSet {
	perms := make(domain.PermissionSet, 0, len(names)+1)
	if all {
		perms = append(perms, domain.AllPermissions())
	}
	for _, name := range names {
		perms = append(perms, domain.NamedPermission(name))
	}
	return perms
}

func (row tenantUserRow) toDomain() *domain.TenantUser {
	return &domain.TenantUser{
		ID:          row.ID,
		UserID:      row.UserID,
		TenantID:    row.TenantID,
		Role:        row.Role,
		Permissions: permissionSet(row.AllPermissions, row.Permissions),
		CreatedAt:   row.CreatedAt,
	}
}

type tenantUserRepository struct {
	db *sqlx.DB
}

// NewTenantUserRepository creates a new PostgreSQL tenant membership repository
func NewTenantUserRepository(db *sqlx.DB) repository.TenantUserRepository {
	return &tenantUserRepository{db: db}
}

func (r *tenantUserRepository) Upsert(ctx context.Context, binding *domain.TenantUser) error {
	return upsertBinding(ctx, r.db, binding)
}

// upsertBinding keeps (user_id, tenant_id) unique and fills in the stored id
// and creation time.
func upsertBinding(ctx context.Context, q sqlx.QueryerContext, binding *domain.TenantUser) error {
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO tenant_users (` + tenantUserColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, tenant_id) DO UPDATE
		SET role = EXCLUDED.role,
			all_permissions = EXCLUDED.all_permissions,
			permissions = EXCLUDED.permissions
		RETURNING id, created_at`

	err := q.QueryRowxContext(ctx, query,
		binding.ID, binding.UserID, binding.TenantID, binding.Role,
		binding.Permissions.HasAll(), pq.StringArray(binding.Permissions.Names()), binding.CreatedAt,
	).Scan(&binding.ID, &binding.CreatedAt)
	return wrap(err, "upsert tenant user")
}

func (r *tenantUserRepository) Get(ctx context.Context, userID, tenantID uuid.UUID) (*domain.TenantUser, error) {
	var row tenantUserRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+tenantUserColumns+` FROM tenant_users WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID)
	if err != nil {
		return nil, wrap(err, "get tenant user")
	}
	return row.toDomain(), nil
}

func (r *tenantUserRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TenantUser, error) {
	return r.list(ctx, "list tenant users by user",
		`SELECT `+tenantUserColumns+` FROM tenant_users WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *tenantUserRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantUser, error) {
	return r.list(ctx, "list tenant users by tenant",
		`SELECT `+tenantUserColumns+` FROM tenant_users WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

func (r *tenantUserRepository) list(ctx context.Context, op, query string, arg any) ([]*domain.TenantUser, error) {
	var rows []tenantUserRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, wrap(err, op)
	}
	out := make([]*domain.TenantUser, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *tenantUserRepository) Delete(ctx context.Context, userID, tenantID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant_users WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	if err != nil {
		return wrap(err, "delete tenant user")
	}
	return expectAffected(result, "delete tenant user")
}

func (r *tenantUserRepository) CountByRole(ctx context.Context, tenantID uuid.UUID, role domain.Role) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1 AND role = $2`, tenantID, role)
	if err != nil {
		return 0, wrap(err, "count tenant users")
	}
	return count, nil
}
