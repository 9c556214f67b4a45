package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the role a user holds inside one tenant
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleViewer   Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleEmployee, RoleViewer:
		return true
	}
	return false
}

// PermissionKind discriminates the Permission variants.
type PermissionKind string

const (
	PermissionKindAll   PermissionKind = "all"
	PermissionKindNamed PermissionKind = "named"
)

// legacyWildcard is how older records spell "all permissions".
const legacyWildcard = "*"

var ErrInvalidPermission = errors.New("invalid permission")

// Permission is either All or a single named permission.
type Permission struct {
	Kind PermissionKind `json:"kind"`
	Name string         `json:"name,omitempty"`
}

func AllPermissions() Permission {
	return Permission{Kind: PermissionKindAll}
}

func NamedPermission(name string) Permission {
	return Permission{Kind: PermissionKindNamed, Name: name}
}

func (p Permission) IsAll() bool {
	return p.Kind == PermissionKindAll
}

func (p Permission) String() string {
	if p.IsAll() {
		return legacyWildcard
	}
	return p.Name
}

func (p Permission) validate() error {
	switch p.Kind {
	case PermissionKindAll:
		return nil
	case PermissionKindNamed:
		name := strings.TrimSpace(p.Name)
		if name == "" || name == legacyWildcard {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, p.Name)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidPermission, p.Kind)
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	type raw Permission
	var decoded raw
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	perm := Permission(decoded)
	if err := perm.validate(); err != nil {
		return err
	}
	*p = perm
	return nil
}

// PermissionSet is the explicit grant list of a binding.
type PermissionSet []Permission

// ParsePermissions converts the string form used by older records and the
// admin API. The bare wildcard becomes All; every other entry is a name.
func ParsePermissions(values []string) (PermissionSet, error) {
	set := make(PermissionSet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == legacyWildcard {
			set = append(set, AllPermissions())
			continue
		}
		p := NamedPermission(v)
		if err := p.validate(); err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// Grants reports whether the set includes All or exactly name.
func (s PermissionSet) Grants(name string) bool {
	for _, p := range s {
		if p.IsAll() {
			return true
		}
		if p.Name == name {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains the All variant.
func (s PermissionSet) HasAll() bool {
	for _, p := range s {
		if p.IsAll() {
			return true
		}
	}
	return false
}

// Names returns the named entries, in order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, p := range s {
		if !p.IsAll() {
			names = append(names, p.Name)
		}
	}
	return names
}

// TenantUser binds a user to a tenant. A (user, tenant) pair has at most one binding.
type TenantUser struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	Role        Role          `json:"role"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
}

// UserTenants is everything the tenancy state needs about a user: the
// user, the tenants they can enter and their bindings to those tenants.
type UserTenants struct {
	User     *User        `json:"user"`
	Tenants  []Tenant     `json:"tenants"`
	Bindings []TenantUser `json:"bindings"`
}
