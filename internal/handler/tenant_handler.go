package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/handler/middleware"
	"github.com/daylihorse/nour-hub/internal/service"
	"github.com/daylihorse/nour-hub/internal/tenancy"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

// TenantAPI is the tenant administration surface used by the handlers.
type TenantAPI interface {
	GetUserTenants(ctx context.Context, email string) (*domain.UserTenants, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*domain.TenantUser, error)
	CreateTenant(ctx context.Context, creatorID uuid.UUID, req service.CreateTenantRequest) (*domain.Tenant, *domain.TenantUser, error)
	UpdateFeatureSettings(ctx context.Context, tenantID uuid.UUID, overrides map[string]bool) (*domain.Tenant, error)
	UpdateSubscriptionTier(ctx context.Context, tenantID uuid.UUID, tier domain.SubscriptionTier) (*domain.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, status domain.TenantStatus) (*domain.Tenant, error)
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantUser, error)
	AddMember(ctx context.Context, tenantID, actorID uuid.UUID, req service.AddMemberRequest) (*domain.TenantUser, error)
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
	CreateInvitation(ctx context.Context, tenantID uuid.UUID, inviter *domain.User, req service.CreateInvitationRequest) (*service.InvitationResult, error)
	AcceptInvitation(ctx context.Context, token string, userID uuid.UUID) (*domain.TenantUser, error)
	RevokeInvitation(ctx context.Context, tenantID, invitationID uuid.UUID) error
	ListInvitations(ctx context.Context, tenantID uuid.UUID) ([]*domain.TenantInvitation, error)
}

type TenantHandler struct {
	tenants   TenantAPI
	auth      AuthAPI
	registry  *tenancy.Registry
	validator *validator.Validator
	logger    *zap.Logger
}

func NewTenantHandler(tenants TenantAPI, auth AuthAPI, registry *tenancy.Registry, validator *validator.Validator, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		tenants:   tenants,
		auth:      auth,
		registry:  registry,
		validator: validator,
		logger:    logger.Named("tenants"),
	}
}

type updateFeaturesRequest struct {
	Features map[string]bool `json:"features" validate:"required"`
}

type updateStatusRequest struct {
	Status domain.TenantStatus `json:"status" validate:"required,oneof=active suspended trial expired"`
}

type updateTierRequest struct {
	SubscriptionTier domain.SubscriptionTier `json:"subscription_tier" validate:"required,oneof=basic professional premium enterprise"`
}

type acceptInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

// CreateTenant creates a tenant owned by the caller
// POST /api/v1/tenants
func (h *TenantHandler) CreateTenant(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req service.CreateTenantRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	tenant, binding, err := h.tenants.CreateTenant(c.Context(), userID, req)
	if err != nil {
		return err
	}
	h.reloadDevice(c)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"tenant":     tenant,
		"membership": binding,
	})
}

// GetTenant returns a tenant the caller belongs to
// GET /api/v1/tenants/:id
func (h *TenantHandler) GetTenant(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	tenant, err := h.tenants.GetTenant(c.Context(), tenantID)
	if err != nil {
		return err
	}
	membership, _ := middleware.GetMembership(c)
	return c.JSON(fiber.Map{
		"tenant":     tenant,
		"membership": membership,
	})
}

// UpdateFeatures replaces the feature overrides of a tenant
// PUT /api/v1/tenants/:id/features
func (h *TenantHandler) UpdateFeatures(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var req updateFeaturesRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	tenant, err := h.tenants.UpdateFeatureSettings(c.Context(), tenantID, req.Features)
	if err != nil {
		return err
	}
	h.reloadDevice(c)
	return c.JSON(fiber.Map{"tenant": tenant})
}

// UpdateSubscription changes the tier of a tenant
// PUT /api/v1/tenants/:id/subscription
func (h *TenantHandler) UpdateSubscription(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var req updateTierRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	tenant, err := h.tenants.UpdateSubscriptionTier(c.Context(), tenantID, req.SubscriptionTier)
	if err != nil {
		return err
	}
	h.reloadDevice(c)
	return c.JSON(fiber.Map{"tenant": tenant})
}

// UpdateStatus changes the billing status of a tenant
// PUT /api/v1/tenants/:id/status
func (h *TenantHandler) UpdateStatus(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	var req updateStatusRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	tenant, err := h.tenants.UpdateStatus(c.Context(), tenantID, req.Status)
	if err != nil {
		return err
	}
	h.reloadDevice(c)
	return c.JSON(fiber.Map{"tenant": tenant})
}

// ListMembers returns every binding of the tenant
// GET /api/v1/tenants/:id/members
func (h *TenantHandler) ListMembers(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	members, err := h.tenants.ListMembers(c.Context(), tenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"members": members,
		"count":   len(members),
	})
}

// AddMember binds an existing user to the tenant
// POST /api/v1/tenants/:id/members
func (h *TenantHandler) AddMember(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	actorID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req service.AddMemberRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	binding, err := h.tenants.AddMember(c.Context(), tenantID, actorID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"membership": binding})
}

// RemoveMember unbinds a user; the last owner cannot be removed
// DELETE /api/v1/tenants/:id/members/:userId
func (h *TenantHandler) RemoveMember(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}

	if err := h.tenants.RemoveMember(c.Context(), tenantID, userID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListInvitations returns the tenant's invitations without their tokens
// GET /api/v1/tenants/:id/invitations
func (h *TenantHandler) ListInvitations(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	invitations, err := h.tenants.ListInvitations(c.Context(), tenantID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"invitations": invitations,
		"count":       len(invitations),
	})
}

// CreateInvitation issues an invitation token; the token is only returned here
// POST /api/v1/tenants/:id/invitations
func (h *TenantHandler) CreateInvitation(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req service.CreateInvitationRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	inviter, err := h.auth.GetUser(c.Context(), userID)
	if err != nil {
		return err
	}

	result, err := h.tenants.CreateInvitation(c.Context(), tenantID, inviter, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// RevokeInvitation marks an invitation revoked
// DELETE /api/v1/tenants/:id/invitations/:invitationId
func (h *TenantHandler) RevokeInvitation(c *fiber.Ctx) error {
	tenantID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	invitationID, err := uuidParam(c, "invitationId")
	if err != nil {
		return err
	}

	if err := h.tenants.RevokeInvitation(c.Context(), tenantID, invitationID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AcceptInvitation joins the caller to the inviting tenant
// POST /api/v1/invitations/accept
func (h *TenantHandler) AcceptInvitation(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req acceptInvitationRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	binding, err := h.tenants.AcceptInvitation(c.Context(), req.Token, userID)
	if err != nil {
		return err
	}
	h.reloadDevice(c)
	return c.JSON(fiber.Map{"membership": binding})
}

// reloadDevice refreshes the calling device's tenant list after a change
// to one of its tenants.
func (h *TenantHandler) reloadDevice(c *fiber.Ctx) {
	deviceID := middleware.GetDeviceID(c)
	if deviceID == "" {
		return
	}
	store, ok := h.registry.Peek(deviceID)
	if !ok {
		return
	}
	if err := store.Reload(c.Context()); err != nil {
		h.logger.Warn("failed to reload device tenants", zap.String("device_id", deviceID), zap.Error(err))
	}
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
