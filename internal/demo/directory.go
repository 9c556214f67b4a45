// Package demo serves the built-in demo accounts. Each seed email maps to a
// fixed user, a set of tenants and the user's bindings to them.
package demo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
)

var ErrUnknownDemoAccount = errors.New("unknown demo account")

// ids are derived from names so they survive restarts; persisted tenant
// selections keep pointing at the same demo tenant.
var namespace = uuid.MustParse("6f1c2a9e-3d4b-4c8e-9a71-5b2f0e8d7c13")

func id(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

type account struct {
	user     domain.User
	bindings []domain.TenantUser
}

// Directory is an immutable in-memory catalog of demo accounts.
type Directory struct {
	accounts map[string]account
	tenants  map[uuid.UUID]domain.Tenant
}

func NewDirectory() *Directory {
	seededAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tenants := []domain.Tenant{
		demoTenant("Elite Equestrian Center", "elite-equestrian-center", domain.TenantTypeStable, domain.TierPremium, seededAt),
		demoTenant("Elite Equine Clinic", "elite-equine-clinic", domain.TenantTypeClinic, domain.TierProfessional, seededAt),
		demoTenant("Elite Genetics Laboratory", "elite-genetics-laboratory", domain.TenantTypeLaboratory, domain.TierEnterprise, seededAt),
		demoTenant("Al Noor Equine Hospital", "al-noor-equine-hospital", domain.TenantTypeHospital, domain.TierEnterprise, seededAt),
		demoTenant("Sahara Horse Market", "sahara-horse-market", domain.TenantTypeMarketplace, domain.TierBasic, seededAt),
	}

	d := &Directory{
		accounts: make(map[string]account),
		tenants:  make(map[uuid.UUID]domain.Tenant, len(tenants)),
	}
	for _, t := range tenants {
		d.tenants[t.ID] = t
	}

	// the clinic starts with one feature switched off so the matrix shows an override
	clinic := d.tenants[id("elite-equine-clinic")]
	clinic.Settings.Features["pos"] = false
	d.tenants[clinic.ID] = clinic

	all := domain.PermissionSet{domain.AllPermissions()}
	d.add("owner@eliteequestrian.com", "Omar", "Haddad", seededAt,
		binding("elite-equestrian-center", domain.RoleOwner, all),
		binding("elite-equine-clinic", domain.RoleOwner, all),
		binding("elite-genetics-laboratory", domain.RoleAdmin, all),
	)
	d.add("manager@eliteequestrian.com", "Lina", "Saeed", seededAt,
		binding("elite-equestrian-center", domain.RoleManager, named(
			"horses.read", "horses.write", "training.read", "training.write", "inventory.read", "calendar.read",
		)),
	)
	d.add("vet@alnoorhospital.com", "Karim", "Nasser", seededAt,
		binding("al-noor-equine-hospital", domain.RoleEmployee, named(
			"horses.read", "clinic.read", "clinic.write", "laboratory.read", "pharmacy.read",
		)),
		binding("elite-equine-clinic", domain.RoleViewer, named("clinic.read")),
	)
	d.add("trader@saharamarket.com", "Yusuf", "Rahman", seededAt,
		binding("sahara-horse-market", domain.RoleOwner, all),
	)

	return d
}

// Accounts lists the seed emails, sorted.
func (d *Directory) Accounts() []string {
	out := make([]string, 0, len(d.accounts))
	for addr := range d.accounts {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// GetUserTenants returns the demo user and tenants of a seed email, with
// tenants in binding order.
func (d *Directory) GetUserTenants(_ context.Context, addr string) (*domain.UserTenants, error) {
	acc, ok := d.accounts[strings.ToLower(strings.TrimSpace(addr))]
	if !ok {
		return nil, ErrUnknownDemoAccount
	}

	user := acc.user
	out := &domain.UserTenants{
		User:     &user,
		Tenants:  make([]domain.Tenant, 0, len(acc.bindings)),
		Bindings: make([]domain.TenantUser, len(acc.bindings)),
	}
	copy(out.Bindings, acc.bindings)
	for _, b := range acc.bindings {
		out.Tenants = append(out.Tenants, cloneTenant(d.tenants[b.TenantID]))
	}
	return out, nil
}

func (d *Directory) GetTenant(_ context.Context, tenantID uuid.UUID) (*domain.Tenant, error) {
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, errors.New("demo tenant not found")
	}
	cp := cloneTenant(t)
	return &cp, nil
}

func (d *Directory) add(addr, first, last string, at time.Time, bindings ...domain.TenantUser) {
	user := domain.User{
		ID:        id("user:" + addr),
		Email:     addr,
		FirstName: first,
		LastName:  last,
		Status:    domain.UserStatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
	for i := range bindings {
		bindings[i].UserID = user.ID
		bindings[i].ID = id("binding:" + addr + ":" + bindings[i].TenantID.String())
		bindings[i].CreatedAt = at
	}
	d.accounts[addr] = account{user: user, bindings: bindings}
}

func demoTenant(name, slug string, typ domain.TenantType, tier domain.SubscriptionTier, at time.Time) domain.Tenant {
	return domain.Tenant{
		ID:               id(slug),
		Name:             name,
		Slug:             slug,
		Type:             typ,
		SubscriptionTier: tier,
		Status:           domain.TenantStatusActive,
		Settings: domain.TenantSettings{
			Features: map[string]bool{},
			Timezone: "Asia/Riyadh",
			Currency: "SAR",
		},
		Metadata:  domain.JSONMap{"demo": true},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func binding(slug string, role domain.Role, perms domain.PermissionSet) domain.TenantUser {
	return domain.TenantUser{TenantID: id(slug), Role: role, Permissions: perms}
}

func named(names ...string) domain.PermissionSet {
	set := make(domain.PermissionSet, 0, len(names))
	for _, n := range names {
		set = append(set, domain.NamedPermission(n))
	}
	return set
}

// cloneTenant copies the settings map so callers cannot mutate the catalog.
func cloneTenant(t domain.Tenant) domain.Tenant {
	features := make(map[string]bool, len(t.Settings.Features))
	for k, v := range t.Settings.Features {
		features[k] = v
	}
	t.Settings.Features = features
	return t
}
