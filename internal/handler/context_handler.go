package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/handler/middleware"
	"github.com/daylihorse/nour-hub/internal/preferences"
	"github.com/daylihorse/nour-hub/internal/service"
	"github.com/daylihorse/nour-hub/internal/tenancy"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

// PreferencesAPI reads and writes the per-device preferences.
type PreferencesAPI interface {
	Load(ctx context.Context, deviceID string) (preferences.Preferences, error)
	SetLanguage(ctx context.Context, deviceID string, lang domain.Language) error
	SetBusinessContext(ctx context.Context, deviceID string, bc domain.BusinessContext) error
}

// ContextHandler exposes the access-mode state of the calling device.
type ContextHandler struct {
	registry  *tenancy.Registry
	auth      AuthAPI
	prefs     PreferencesAPI
	resolver  *features.Resolver
	validator *validator.Validator
	logger    *zap.Logger
}

func NewContextHandler(
	registry *tenancy.Registry,
	auth AuthAPI,
	prefs PreferencesAPI,
	resolver *features.Resolver,
	validator *validator.Validator,
	logger *zap.Logger,
) *ContextHandler {
	return &ContextHandler{
		registry:  registry,
		auth:      auth,
		prefs:     prefs,
		resolver:  resolver,
		validator: validator,
		logger:    logger.Named("context"),
	}
}

type demoRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type switchTenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
}

type preferencesRequest struct {
	Language        *domain.Language        `json:"language" validate:"omitempty,oneof=en ar"`
	BusinessContext *domain.BusinessContext `json:"business_context"`
}

// store returns the device store. A valid bearer token whose session the
// store does not hold yet is resumed first. An authenticated store is only
// served to requests carrying a token for its session.
func (h *ContextHandler) store(c *fiber.Ctx) *tenancy.Store {
	deviceID := middleware.GetDeviceID(c)
	store := h.registry.Get(c.Context(), deviceID)

	claims, ok := middleware.GetClaims(c)
	if !ok {
		return h.visible(store)
	}

	sessionID := uuid.Nil
	if claims.SessionID != nil {
		sessionID = *claims.SessionID
	}
	if store.HoldsSession(claims.UserID, sessionID) {
		return store
	}
	if sessionID == uuid.Nil {
		return h.visible(store)
	}

	user, err := h.auth.GetUser(c.Context(), claims.UserID)
	if err != nil {
		h.logger.Warn("failed to resume session", zap.String("user_id", claims.UserID.String()), zap.Error(err))
		return h.visible(store)
	}
	session := tenancy.Session{ID: sessionID, AccessToken: middleware.GetToken(c)}
	if err := store.ResumeSession(c.Context(), user, session); err != nil {
		h.logger.Warn("failed to resume session", zap.String("user_id", claims.UserID.String()), zap.Error(err))
	}
	if !store.HoldsSession(claims.UserID, sessionID) {
		return h.visible(store)
	}
	return store
}

// visible hides an authenticated store from a request that does not hold
// its session behind a detached signed-out one.
func (h *ContextHandler) visible(store *tenancy.Store) *tenancy.Store {
	if store.Authenticated() {
		return h.registry.Detached(store.DeviceID())
	}
	return store
}

// GetContext returns the device's tenancy snapshot
// GET /api/v1/context
func (h *ContextHandler) GetContext(c *fiber.Ctx) error {
	return c.JSON(h.store(c).View())
}

// EnterPublicMode drops any tenant and switches the device to public browsing
// POST /api/v1/context/public
func (h *ContextHandler) EnterPublicMode(c *fiber.Ctx) error {
	store := h.registry.Get(c.Context(), middleware.GetDeviceID(c))
	store.EnterPublicMode(c.Context())
	return c.JSON(store.View())
}

// SwitchDemoAccount enters demo mode as one of the bundled accounts
// POST /api/v1/context/demo
func (h *ContextHandler) SwitchDemoAccount(c *fiber.Ctx) error {
	var req demoRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	store := h.registry.Get(c.Context(), middleware.GetDeviceID(c))
	if err := store.SwitchDemoAccount(c.Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(store.View())
}

// SwitchTenant selects a tenant. Unknown ids leave the state as it is and
// still answer 200 with the current view.
// POST /api/v1/context/tenant
func (h *ContextHandler) SwitchTenant(c *fiber.Ctx) error {
	var req switchTenantRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	store := h.store(c)
	store.SwitchTenant(c.Context(), uuid.MustParse(req.TenantID))
	return c.JSON(store.View())
}

// Reload re-fetches the tenant list for the current mode
// POST /api/v1/context/reload
func (h *ContextHandler) Reload(c *fiber.Ctx) error {
	store := h.store(c)
	if err := store.Reload(c.Context()); err != nil {
		return err
	}
	return c.JSON(store.View())
}

// GetFeatures returns the feature matrix of the current tenant
// GET /api/v1/context/features
func (h *ContextHandler) GetFeatures(c *fiber.Ctx) error {
	return c.JSON(h.store(c).Features())
}

// GetFeature reports whether a feature is enabled for the current tenant
// GET /api/v1/context/features/:id
func (h *ContextHandler) GetFeature(c *fiber.Ctx) error {
	id := c.Params("id")
	def, ok := h.resolver.Catalog().Lookup(id)
	if !ok {
		return service.ErrUnknownFeature
	}

	store := h.store(c)
	available := false
	for _, f := range store.AvailableFeatures() {
		if f.ID == id {
			available = true
			break
		}
	}
	return c.JSON(fiber.Map{
		"feature":   def,
		"available": available,
		"enabled":   store.IsFeatureEnabled(id),
	})
}

// CheckPermissions answers permission and role questions for the current
// tenant. Both query parameters are optional.
// GET /api/v1/context/permissions?permission=&role=
func (h *ContextHandler) CheckPermissions(c *fiber.Ctx) error {
	store := h.store(c)
	resp := fiber.Map{}

	if name := c.Query("permission"); name != "" {
		resp["permission"] = name
		resp["granted"] = store.HasPermission(name)
	}
	if role := c.Query("role"); role != "" {
		if !domain.Role(role).Valid() {
			return service.ErrInvalidRole
		}
		resp["role"] = role
		resp["has_role"] = store.HasRole(domain.Role(role))
	}

	if binding, ok := store.Binding(); ok {
		resp["membership"] = binding
	}
	return c.JSON(resp)
}

// GetPreferences returns the device's persisted language and mode
// GET /api/v1/context/preferences
func (h *ContextHandler) GetPreferences(c *fiber.Ctx) error {
	prefs, err := h.prefs.Load(c.Context(), middleware.GetDeviceID(c))
	if err != nil {
		return err
	}
	return c.JSON(prefs)
}

// UpdatePreferences writes the fields present in the body
// PUT /api/v1/context/preferences
func (h *ContextHandler) UpdatePreferences(c *fiber.Ctx) error {
	var req preferencesRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	deviceID := middleware.GetDeviceID(c)
	if req.Language != nil {
		if err := h.prefs.SetLanguage(c.Context(), deviceID, *req.Language); err != nil {
			return err
		}
	}
	if req.BusinessContext != nil {
		if !req.BusinessContext.BusinessType.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid business type")
		}
		if err := h.prefs.SetBusinessContext(c.Context(), deviceID, *req.BusinessContext); err != nil {
			return err
		}
	}

	prefs, err := h.prefs.Load(c.Context(), deviceID)
	if err != nil {
		return err
	}
	return c.JSON(prefs)
}
