package tenancy

import (
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/permission"
)

// SwitcherKind tags an entry of the tenant switcher.
type SwitcherKind string

const (
	SwitcherTenant SwitcherKind = "tenant"
	SwitcherPublic SwitcherKind = "public"
	SwitcherDemo   SwitcherKind = "demo"
)

type SwitcherEntry struct {
	Kind      SwitcherKind            `json:"kind"`
	Label     string                  `json:"label"`
	TenantID  *uuid.UUID              `json:"tenant_id,omitempty"`
	Type      domain.TenantType       `json:"type,omitempty"`
	Tier      domain.SubscriptionTier `json:"tier,omitempty"`
	Role      domain.Role             `json:"role,omitempty"`
	DemoEmail string                  `json:"demo_email,omitempty"`
	Current   bool                    `json:"current"`
}

// View is what a client renders. MissingTenant asks the user to pick an
// access mode or a tenant.
type View struct {
	Mode          domain.AccessMode    `json:"mode"`
	User          *domain.User         `json:"user"`
	CurrentTenant *domain.Tenant       `json:"current_tenant"`
	Role          domain.Role          `json:"role,omitempty"`
	Permissions   domain.PermissionSet `json:"permissions"`
	MissingTenant bool                 `json:"missing_tenant"`
	IsLoading     bool                 `json:"is_loading"`
	Switcher      []SwitcherEntry      `json:"switcher"`
	Features      features.Matrix      `json:"features"`
}

func (s *Store) View() View {
	st := s.Snapshot()

	v := View{
		Mode:          st.Mode,
		User:          st.User,
		CurrentTenant: st.CurrentTenant,
		Permissions:   domain.PermissionSet{},
		MissingTenant: st.CurrentTenant == nil,
		IsLoading:     st.IsLoading,
		Switcher:      []SwitcherEntry{},
		Features:      s.deps.Resolver.Matrix(st.CurrentTenant),
	}
	if binding, ok := permission.New(st.User, st.CurrentTenant, st.Bindings).Binding(); ok {
		v.Role = binding.Role
		v.Permissions = binding.Permissions
	}

	if st.Mode != domain.AccessModePublic {
		for _, t := range st.AvailableTenants {
			id := t.ID
			entry := SwitcherEntry{
				Kind:     SwitcherTenant,
				Label:    t.Name,
				TenantID: &id,
				Type:     t.Type,
				Tier:     t.SubscriptionTier,
				Current:  st.CurrentTenant != nil && st.CurrentTenant.ID == id,
			}
			if st.User != nil {
				if b, ok := permission.FindBinding(st.Bindings, st.User.ID, id); ok {
					entry.Role = b.Role
				}
			}
			v.Switcher = append(v.Switcher, entry)
		}
	}

	v.Switcher = append(v.Switcher, SwitcherEntry{
		Kind:    SwitcherPublic,
		Label:   "Public access",
		Current: st.Mode == domain.AccessModePublic,
	})
	if s.deps.Demo != nil {
		for _, addr := range s.deps.Demo.Accounts() {
			v.Switcher = append(v.Switcher, SwitcherEntry{
				Kind:      SwitcherDemo,
				Label:     addr,
				DemoEmail: addr,
				Current:   st.Mode == domain.AccessModeDemo && st.DemoEmail == addr,
			})
		}
	}
	return v
}
