package service

import (
	"context"
	"testing"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTenant(t *testing.T, f *tenantFixture, owner *domain.User, name string, tier domain.SubscriptionTier) *domain.Tenant {
	t.Helper()
	tenant, _, err := f.svc.CreateTenant(context.Background(), owner.ID, CreateTenantRequest{
		Name:             name,
		Type:             domain.TenantTypeStable,
		SubscriptionTier: tier,
	})
	require.NoError(t, err)
	return tenant
}

func TestCreateTenant_OwnerGetsAllPermissions(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")

	tenant, binding, err := f.svc.CreateTenant(context.Background(), owner.ID, CreateTenantRequest{
		Name: "Desert Rose Stables",
		Type: domain.TenantTypeStable,
	})
	require.NoError(t, err)

	assert.Equal(t, "desert-rose-stables", tenant.Slug)
	assert.Equal(t, domain.TierBasic, tenant.SubscriptionTier)
	assert.Equal(t, domain.TenantStatusTrial, tenant.Status)
	assert.Equal(t, domain.RoleOwner, binding.Role)
	assert.True(t, binding.Permissions.HasAll())
}

func TestCreateTenant_GeneratedSlugCollision(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")

	first := createTenant(t, f, owner, "Royal Stables", domain.TierBasic)
	second := createTenant(t, f, owner, "Royal Stables", domain.TierBasic)

	assert.Equal(t, "royal-stables", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Contains(t, second.Slug, "royal-stables-")
}

func TestCreateTenant_ExplicitSlugTaken(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	createTenant(t, f, owner, "Royal Stables", domain.TierBasic)

	_, _, err := f.svc.CreateTenant(context.Background(), owner.ID, CreateTenantRequest{
		Name: "Another", Slug: "royal-stables", Type: domain.TenantTypeClinic,
	})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestGetUserTenants(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	createTenant(t, f, owner, "Zahra Clinic", domain.TierPremium)
	createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)

	got, err := f.svc.GetUserTenants(context.Background(), "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.User.ID)
	require.Len(t, got.Tenants, 2)
	assert.Equal(t, "Atlas Stables", got.Tenants[0].Name)
	assert.Len(t, got.Bindings, 2)

	_, err = f.svc.GetUserTenants(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateFeatureSettings_EnforcesTier(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	_, err := f.svc.UpdateFeatureSettings(ctx, tenant.ID, map[string]bool{"breeding": true})
	assert.ErrorIs(t, err, features.ErrFeatureUnavailable)

	_, err = f.svc.UpdateFeatureSettings(ctx, tenant.ID, map[string]bool{"teleportation": false})
	assert.ErrorIs(t, err, ErrUnknownFeature)

	updated, err := f.svc.UpdateFeatureSettings(ctx, tenant.ID, map[string]bool{"breeding": false, "calendar": false})
	require.NoError(t, err)
	enabled, ok := updated.Settings.FeatureOverride("calendar")
	assert.True(t, ok)
	assert.False(t, enabled)
}

func TestUpdateSubscriptionTier_DropsLockedOverrides(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierPremium)
	ctx := context.Background()

	_, err := f.svc.UpdateFeatureSettings(ctx, tenant.ID, map[string]bool{"breeding": true, "hr": false})
	require.NoError(t, err)

	downgraded, err := f.svc.UpdateSubscriptionTier(ctx, tenant.ID, domain.TierBasic)
	require.NoError(t, err)

	_, ok := downgraded.Settings.FeatureOverride("breeding")
	assert.False(t, ok)
	_, ok = downgraded.Settings.FeatureOverride("hr")
	assert.True(t, ok, "disabling overrides survive a downgrade")

	_, err = f.svc.UpdateSubscriptionTier(ctx, tenant.ID, "platinum")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestUpdateStatus(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)

	updated, err := f.svc.UpdateStatus(context.Background(), tenant.ID, domain.TenantStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusSuspended, updated.Status)

	_, err = f.svc.UpdateStatus(context.Background(), tenant.ID, "deleted")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(context.Background(), uuid.New(), domain.TenantStatusActive)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestMembers(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	groom := f.addUser(t, "groom@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	binding, err := f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{
		Email: "groom@example.com", Role: domain.RoleEmployee, Permissions: []string{"horses.read"},
	})
	require.NoError(t, err)
	assert.True(t, binding.Permissions.Grants("horses.read"))

	// one binding per (user, tenant): re-adding replaces it
	_, err = f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{
		Email: "groom@example.com", Role: domain.RoleManager, Permissions: []string{"*"},
	})
	require.NoError(t, err)

	members, err := f.svc.ListMembers(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	got, err := f.svc.GetMembership(ctx, tenant.ID, groom.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, got.Role)
	assert.True(t, got.Permissions.HasAll())

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, tenant.ID, owner.ID), ErrLastOwner)
	require.NoError(t, f.svc.RemoveMember(ctx, tenant.ID, groom.ID))
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, tenant.ID, groom.ID), ErrMemberNotFound)

	_, err = f.svc.GetMembership(ctx, tenant.ID, groom.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestAddMember_Validation(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	_, err := f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{Email: "owner@example.com", Role: "janitor"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{Email: "ghost@example.com", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddMember_GuardsOwnership(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	manager := f.addUser(t, "manager@example.com")
	f.addUser(t, "groom@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	_, err := f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{
		Email: "manager@example.com", Role: domain.RoleManager, Permissions: []string{"members.manage"},
	})
	require.NoError(t, err)

	_, err = f.svc.AddMember(ctx, tenant.ID, manager.ID, AddMemberRequest{Email: "groom@example.com", Role: domain.RoleOwner})
	assert.ErrorIs(t, err, ErrGrantNotAllowed)
	_, err = f.svc.AddMember(ctx, tenant.ID, manager.ID, AddMemberRequest{
		Email: "groom@example.com", Role: domain.RoleEmployee, Permissions: []string{"*"},
	})
	assert.ErrorIs(t, err, ErrGrantNotAllowed)
	_, err = f.svc.AddMember(ctx, tenant.ID, manager.ID, AddMemberRequest{Email: "owner@example.com", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, ErrGrantNotAllowed, "rewriting an owner")
	_, err = f.svc.AddMember(ctx, tenant.ID, manager.ID, AddMemberRequest{
		Email: "manager@example.com", Role: domain.RoleManager, Permissions: []string{"*"},
	})
	assert.ErrorIs(t, err, ErrGrantNotAllowed, "self escalation")

	_, err = f.svc.AddMember(ctx, tenant.ID, manager.ID, AddMemberRequest{
		Email: "groom@example.com", Role: domain.RoleEmployee, Permissions: []string{"horses.read"},
	})
	require.NoError(t, err)

	// the only owner cannot be demoted, not even by themselves
	_, err = f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{Email: "owner@example.com", Role: domain.RoleManager})
	assert.ErrorIs(t, err, ErrLastOwner)
	got, err := f.svc.GetMembership(ctx, tenant.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, got.Role)

	_, err = f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{
		Email: "manager@example.com", Role: domain.RoleOwner, Permissions: []string{"*"},
	})
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{Email: "owner@example.com", Role: domain.RoleManager})
	assert.NoError(t, err)

	_, err = f.svc.AddMember(ctx, tenant.ID, uuid.New(), AddMemberRequest{Email: "groom@example.com", Role: domain.RoleViewer})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestInvitation_GrantsAndExistingMembers(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	manager := f.addUser(t, "manager@example.com")
	rider := f.addUser(t, "rider@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	_, err := f.svc.AddMember(ctx, tenant.ID, owner.ID, AddMemberRequest{
		Email: "manager@example.com", Role: domain.RoleManager, Permissions: []string{"members.manage"},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateInvitation(ctx, tenant.ID, manager, CreateInvitationRequest{
		Role: domain.RoleAdmin, Permissions: []string{"*"},
	})
	assert.ErrorIs(t, err, ErrGrantNotAllowed)

	maxUses := 1
	res, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{
		Role: domain.RoleViewer, MaxUses: &maxUses,
	})
	require.NoError(t, err)

	// accepting as the owner must not demote them or use up the invitation
	_, err = f.svc.AcceptInvitation(ctx, res.Token, owner.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)
	got, err := f.svc.GetMembership(ctx, tenant.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, got.Role)
	assert.Equal(t, 0, f.invitations.rows[res.Invitation.ID].CurrentUses)

	binding, err := f.svc.AcceptInvitation(ctx, res.Token, rider.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, binding.Role)

	all, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{
		Role: domain.RoleAdmin, Permissions: []string{"*"},
	})
	require.NoError(t, err)
	assert.True(t, all.Invitation.Permissions.HasAll())
}

func TestInvitationLifecycle(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	rider := f.addUser(t, "rider@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	maxUses := 1
	res, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{
		Email:       "rider@example.com",
		Role:        domain.RoleViewer,
		Permissions: []string{"calendar.read"},
		MaxUses:     &maxUses,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.NotEqual(t, res.Token, res.Invitation.TokenHash)
	require.Len(t, f.mail.invitations, 1)
	assert.Equal(t, "Atlas Stables", f.mail.invitations[0].TenantName)

	binding, err := f.svc.AcceptInvitation(ctx, res.Token, rider.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, binding.Role)
	assert.True(t, binding.Permissions.Grants("calendar.read"))

	_, err = f.svc.AcceptInvitation(ctx, res.Token, rider.ID)
	assert.ErrorIs(t, err, ErrInvitationInvalid)

	_, err = f.svc.AcceptInvitation(ctx, "unknown-token", rider.ID)
	assert.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestInvitation_RevokeAndExpire(t *testing.T) {
	f := newTenantFixture(t)
	owner := f.addUser(t, "owner@example.com")
	rider := f.addUser(t, "rider@example.com")
	tenant := createTenant(t, f, owner, "Atlas Stables", domain.TierBasic)
	ctx := context.Background()

	_, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{Role: domain.RoleOwner})
	assert.ErrorIs(t, err, ErrInvalidRole)

	res, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{Role: domain.RoleEmployee})
	require.NoError(t, err)
	assert.Empty(t, f.mail.invitations)

	assert.ErrorIs(t, f.svc.RevokeInvitation(ctx, uuid.New(), res.Invitation.ID), ErrInvitationNotFound)
	require.NoError(t, f.svc.RevokeInvitation(ctx, tenant.ID, res.Invitation.ID))
	_, err = f.svc.AcceptInvitation(ctx, res.Token, rider.ID)
	assert.ErrorIs(t, err, ErrInvitationInvalid)

	expired, err := f.svc.CreateInvitation(ctx, tenant.ID, owner, CreateInvitationRequest{Role: domain.RoleEmployee})
	require.NoError(t, err)
	f.invitations.rows[expired.Invitation.ID].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = f.svc.AcceptInvitation(ctx, expired.Token, rider.ID)
	assert.ErrorIs(t, err, ErrInvitationInvalid)
	assert.Equal(t, domain.InvitationStatusExpired, f.invitations.rows[expired.Invitation.ID].Status)
}
