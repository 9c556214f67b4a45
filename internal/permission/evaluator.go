// Package permission answers role and permission questions for UI gating.
// It is not a security boundary; route enforcement lives in the handlers.
package permission

import (
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
)

// Evaluator answers queries for one (user, tenant) pair over a set of bindings.
type Evaluator struct {
	user     *domain.User
	tenant   *domain.Tenant
	bindings []domain.TenantUser
}

func New(user *domain.User, tenant *domain.Tenant, bindings []domain.TenantUser) Evaluator {
	return Evaluator{user: user, tenant: tenant, bindings: bindings}
}

// Binding returns the membership of the user in the tenant.
func (e Evaluator) Binding() (domain.TenantUser, bool) {
	if e.user == nil || e.tenant == nil {
		return domain.TenantUser{}, false
	}
	return FindBinding(e.bindings, e.user.ID, e.tenant.ID)
}

func (e Evaluator) HasPermission(name string) bool {
	binding, ok := e.Binding()
	if !ok {
		return false
	}
	return binding.Permissions.Grants(name)
}

func (e Evaluator) HasRole(role domain.Role) bool {
	binding, ok := e.Binding()
	if !ok {
		return false
	}
	return binding.Role == role
}

// FindBinding looks up the binding for a (user, tenant) pair.
func FindBinding(bindings []domain.TenantUser, userID, tenantID uuid.UUID) (domain.TenantUser, bool) {
	for _, b := range bindings {
		if b.UserID == userID && b.TenantID == tenantID {
			return b, true
		}
	}
	return domain.TenantUser{}, false
}
