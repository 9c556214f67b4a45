package postgres

import (
	"context"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const tenantColumns = `id, name, slug, type, subscription_tier, status, settings, metadata, created_at, updated_at`

type tenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new PostgreSQL tenant repository
func NewTenantRepository(db *sqlx.DB) repository.TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.GetContext(ctx, &tenant, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	if err != nil {
		return nil, wrap(err, "get tenant by id")
	}
	return &tenant, nil
}

func (r *tenantRepository) CreateWithOwner(ctx context.Context, tenant *domain.Tenant, owner *domain.TenantUser) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err, "begin tenant transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES (
			:id, :name, :slug, :type, :subscription_tier, :status,
			:settings, :metadata, :created_at, :updated_at
		)`
	if _, err := tx.NamedExecContext(ctx, query, tenant); err != nil {
		return wrap(err, "create tenant")
	}

	if err := upsertBinding(ctx, tx, owner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, "commit tenant")
	}
	return nil
}

func (r *tenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
		UPDATE tenants
		SET name = :name,
			slug = :slug,
			type = :type,
			subscription_tier = :subscription_tier,
			status = :status,
			settings = :settings,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, tenant)
	if err != nil {
		return wrap(err, "update tenant")
	}
	return expectAffected(result, "update tenant")
}

func (r *tenantRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Tenant, error) {
	query := `
		SELECT t.id, t.name, t.slug, t.type, t.subscription_tier, t.status,
			   t.settings, t.metadata, t.created_at, t.updated_at
		FROM tenants t
		INNER JOIN tenant_users tu ON tu.tenant_id = t.id
		WHERE tu.user_id = $1
		ORDER BY t.name, t.id`

	tenants := []*domain.Tenant{}
	if err := r.db.SelectContext(ctx, &tenants, query, userID); err != nil {
		return nil, wrap(err, "list tenants by user")
	}
	return tenants, nil
}
