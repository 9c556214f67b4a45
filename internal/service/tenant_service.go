package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/daylihorse/nour-hub/pkg/email"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const (
	defaultInvitationTTL = 72 * time.Hour
	maxSlugAttempts      = 3
)

type TenantService struct {
	tenantRepo     repository.TenantRepository
	tenantUserRepo repository.TenantUserRepository
	userRepo       repository.UserRepository
	invitationRepo repository.InvitationRepository
	resolver       *features.Resolver
	emailService   email.EmailService
	logger         *zap.Logger
}

type CreateTenantRequest struct {
	Name             string                  `json:"name" validate:"required,min=2,max=120"`
	Slug             string                  `json:"slug" validate:"omitempty,slug,min=3,max=100"`
	Type             domain.TenantType       `json:"type" validate:"required,oneof=stable clinic marketplace enterprise hospital laboratory"`
	SubscriptionTier domain.SubscriptionTier `json:"subscription_tier" validate:"omitempty,oneof=basic professional premium enterprise"`
	Timezone         string                  `json:"timezone" validate:"omitempty,max=64"`
	Currency         string                  `json:"currency" validate:"omitempty,len=3"`
}

type AddMemberRequest struct {
	Email       string      `json:"email" validate:"required,email"`
	Role        domain.Role `json:"role" validate:"required,oneof=owner admin manager employee viewer"`
	Permissions []string    `json:"permissions"`
}

type CreateInvitationRequest struct {
	Email          string      `json:"email" validate:"omitempty,email"`
	Role           domain.Role `json:"role" validate:"required,oneof=admin manager employee viewer"`
	Permissions    []string    `json:"permissions"`
	MaxUses        *int        `json:"max_uses" validate:"omitempty,gte=1"`
	ExpiresInHours int         `json:"expires_in_hours" validate:"omitempty,gte=1,lte=720"`
}

// InvitationResult carries the plain token, which is never stored.
type InvitationResult struct {
	Invitation *domain.TenantInvitation `json:"invitation"`
	Token      string                   `json:"token"`
}

func NewTenantService(
	tenantRepo repository.TenantRepository,
	tenantUserRepo repository.TenantUserRepository,
	userRepo repository.UserRepository,
	invitationRepo repository.InvitationRepository,
	resolver *features.Resolver,
	emailService email.EmailService,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		tenantRepo:     tenantRepo,
		tenantUserRepo: tenantUserRepo,
		userRepo:       userRepo,
		invitationRepo: invitationRepo,
		resolver:       resolver,
		emailService:   emailService,
		logger:         logger.Named("tenants"),
	}
}

// GetUserTenants loads a user by email together with the tenants they
// belong to and their bindings.
func (s *TenantService) GetUserTenants(ctx context.Context, addr string) (*domain.UserTenants, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(addr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user tenants: %w", err)
	}

	tenants, err := s.tenantRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get user tenants: %w", err)
	}

	bindings, err := s.tenantUserRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get user tenants: %w", err)
	}

	out := &domain.UserTenants{
		User:     user,
		Tenants:  make([]domain.Tenant, 0, len(tenants)),
		Bindings: make([]domain.TenantUser, 0, len(bindings)),
	}
	for _, t := range tenants {
		out.Tenants = append(out.Tenants, *t)
	}
	for _, b := range bindings {
		out.Bindings = append(out.Bindings, *b)
	}
	return out, nil
}

func (s *TenantService) GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

// CreateTenant creates a tenant and makes the creator its owner with every
// permission. Without an explicit slug one is derived from the name.
func (s *TenantService) CreateTenant(ctx context.Context, creatorID uuid.UUID, req CreateTenantRequest) (*domain.Tenant, *domain.TenantUser, error) {
	if !req.Type.Valid() {
		return nil, nil, fmt.Errorf("invalid tenant type %q", req.Type)
	}
	tier := req.SubscriptionTier
	if tier == "" {
		tier = domain.TierBasic
	}
	if !tier.Valid() {
		return nil, nil, ErrInvalidTier
	}

	now := time.Now()
	tenant := &domain.Tenant{
		ID:               uuid.New(),
		Name:             strings.TrimSpace(req.Name),
		Type:             req.Type,
		SubscriptionTier: tier,
		Status:           domain.TenantStatusTrial,
		Settings: domain.TenantSettings{
			Features: map[string]bool{},
			Timezone: req.Timezone,
			Currency: strings.ToUpper(req.Currency),
		},
		Metadata:  domain.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &domain.TenantUser{
		UserID:      creatorID,
		TenantID:    tenant.ID,
		Role:        domain.RoleOwner,
		Permissions: domain.PermissionSet{domain.AllPermissions()},
	}

	base := req.Slug
	if base == "" {
		base = slug.Make(tenant.Name)
	}
	if base == "" {
		base = "facility"
	}

	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		tenant.Slug = base
		if attempt > 0 {
			tenant.Slug = base + "-" + randomSuffix()
		}

		err = s.tenantRepo.CreateWithOwner(ctx, tenant, owner)
		if !errors.Is(err, repository.ErrConflict) || req.Slug != "" {
			break
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, ErrSlugTaken
		}
		return nil, nil, fmt.Errorf("create tenant: %w", err)
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
		zap.String("owner_id", creatorID.String()),
	)
	return tenant, owner, nil
}

// UpdateFeatureSettings merges explicit feature overrides into the tenant
// settings. Enabling a feature above the tenant's tier is rejected.
func (s *TenantService) UpdateFeatureSettings(ctx context.Context, tenantID uuid.UUID, overrides map[string]bool) (*domain.Tenant, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	catalog := s.resolver.Catalog()
	var unknown []string
	for id := range overrides {
		if _, ok := catalog.Lookup(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, strings.Join(unknown, ", "))
	}

	if err := s.resolver.ValidateOverrides(tenant.SubscriptionTier, overrides); err != nil {
		return nil, err
	}

	if tenant.Settings.Features == nil {
		tenant.Settings.Features = make(map[string]bool, len(overrides))
	}
	for id, enabled := range overrides {
		tenant.Settings.Features[id] = enabled
	}

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update feature settings: %w", err)
	}
	return tenant, nil
}

// UpdateSubscriptionTier changes the tier. On a downgrade, overrides that
// enable features the new tier lacks are dropped.
func (s *TenantService) UpdateSubscriptionTier(ctx context.Context, tenantID uuid.UUID, tier domain.SubscriptionTier) (*domain.Tenant, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}

	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	catalog := s.resolver.Catalog()
	for id, enabled := range tenant.Settings.Features {
		if enabled && !catalog.AvailableAt(id, tier) {
			delete(tenant.Settings.Features, id)
		}
	}
	tenant.SubscriptionTier = tier

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update subscription tier: %w", err)
	}
	return tenant, nil
}

func (s *TenantService) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status domain.TenantStatus) (*domain.Tenant, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tenant.Status = status

	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("update tenant status: %w", err)
	}
	return tenant, nil
}

// GetMembership returns the binding of a user in a tenant.
func (s *TenantService) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*domain.TenantUser, error) {
	binding, err := s.tenantUserRepo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return binding, nil
}

func (s *TenantService) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantUser, error) {
	members, err := s.tenantUserRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember binds an existing user to the tenant on behalf of actorID.
// Adding a user who is already a member replaces their role and permissions.
// Granting owner or All, or rewriting an owner's binding, needs an actor
// that holds All, and the last owner cannot be demoted.
func (s *TenantService) AddMember(ctx context.Context, tenantID, actorID uuid.UUID, req AddMemberRequest) (*domain.TenantUser, error) {
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}
	perms, err := domain.ParsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	actor, err := s.GetMembership(ctx, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	privileged := req.Role == domain.RoleOwner || perms.HasAll()
	if privileged && !actor.Permissions.HasAll() {
		return nil, ErrGrantNotAllowed
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("add member: %w", err)
	}

	existing, err := s.tenantUserRepo.Get(ctx, user.ID, tenantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("add member: %w", err)
	default:
		if err := s.checkRebind(ctx, actor, existing, req.Role); err != nil {
			return nil, err
		}
	}

	binding := &domain.TenantUser{
		UserID:      user.ID,
		TenantID:    tenantID,
		Role:        req.Role,
		Permissions: perms,
	}
	if err := s.tenantUserRepo.Upsert(ctx, binding); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return binding, nil
}

func (s *TenantService) checkRebind(ctx context.Context, actor, existing *domain.TenantUser, role domain.Role) error {
	if existing.Role != domain.RoleOwner && !existing.Permissions.HasAll() {
		return nil
	}
	if !actor.Permissions.HasAll() {
		return ErrGrantNotAllowed
	}
	if existing.Role != domain.RoleOwner || role == domain.RoleOwner {
		return nil
	}
	owners, err := s.tenantUserRepo.CountByRole(ctx, existing.TenantID, domain.RoleOwner)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

func (s *TenantService) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	binding, err := s.tenantUserRepo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("remove member: %w", err)
	}

	if binding.Role == domain.RoleOwner {
		owners, err := s.tenantUserRepo.CountByRole(ctx, tenantID, domain.RoleOwner)
		if err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if err := s.tenantUserRepo.Delete(ctx, userID, tenantID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *TenantService) CreateInvitation(ctx context.Context, tenantID uuid.UUID, inviter *domain.User, req CreateInvitationRequest) (*InvitationResult, error) {
	if !req.Role.Valid() || req.Role == domain.RoleOwner {
		return nil, ErrInvalidRole
	}
	perms, err := domain.ParsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsOperational() {
		return nil, fmt.Errorf("cannot invite into a %s tenant", tenant.Status)
	}

	if perms.HasAll() {
		binding, err := s.GetMembership(ctx, tenantID, inviter.ID)
		if err != nil {
			return nil, err
		}
		if !binding.Permissions.HasAll() {
			return nil, ErrGrantNotAllowed
		}
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	ttl := defaultInvitationTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours) * time.Hour
	}

	now := time.Now()
	invitation := &domain.TenantInvitation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TokenHash:   hashToken(token),
		CreatedBy:   inviter.ID,
		Role:        req.Role,
		Permissions: perms,
		MaxUses:     req.MaxUses,
		ExpiresAt:   now.Add(ttl),
		Status:      domain.InvitationStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.invitationRepo.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	if req.Email != "" {
		msg := email.InvitationMessage{
			To:          req.Email,
			TenantName:  tenant.Name,
			Role:        string(req.Role),
			InviterName: inviter.FullName(),
			Token:       token,
			ExpiresAt:   invitation.ExpiresAt,
		}
		if err := s.emailService.SendInvitationEmail(ctx, msg); err != nil {
			s.logger.Warn("invitation email failed",
				zap.String("invitation_id", invitation.ID.String()),
				zap.Error(err),
			)
		}
	}

	return &InvitationResult{Invitation: invitation, Token: token}, nil
}

// AcceptInvitation redeems a token and binds the user to the tenant with
// the invitation's role and permissions. Existing members are rejected
// without consuming a use.
func (s *TenantService) AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*domain.TenantUser, error) {
	invitation, err := s.invitationRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvitationInvalid
		}
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	now := time.Now()
	if !invitation.IsValid(now) {
		if invitation.Status == domain.InvitationStatusActive && now.After(invitation.ExpiresAt) {
			if err := s.invitationRepo.UpdateStatus(ctx, invitation.ID, domain.InvitationStatusExpired); err != nil {
				s.logger.Warn("failed to expire invitation", zap.Error(err))
			}
		}
		return nil, ErrInvitationInvalid
	}

	tenant, err := s.GetTenant(ctx, invitation.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsOperational() {
		return nil, ErrInvitationInvalid
	}

	if _, err := s.tenantUserRepo.Get(ctx, userID, invitation.TenantID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	redeemed, err := s.invitationRepo.Redeem(ctx, invitation.ID)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if !redeemed {
		return nil, ErrInvitationInvalid
	}

	binding := &domain.TenantUser{
		UserID:      userID,
		TenantID:    invitation.TenantID,
		Role:        invitation.Role,
		Permissions: invitation.Permissions,
	}
	if err := s.tenantUserRepo.Upsert(ctx, binding); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	s.logger.Info("invitation accepted",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return binding, nil
}

func (s *TenantService) RevokeInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) error {
	invitation, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if invitation.TenantID != tenantID {
		return ErrInvitationNotFound
	}

	if err := s.invitationRepo.UpdateStatus(ctx, invitationID, domain.InvitationStatusRevoked); err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	return nil
}

func (s *TenantService) ListInvitations(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantInvitation, error) {
	invitations, err := s.invitationRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

func randomSuffix() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
