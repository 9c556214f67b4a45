package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/daylihorse/nour-hub/internal/handler/middleware"
)

// Permissions checked by the tenant administration routes. Owners hold All.
const (
	PermissionTenantManage      = "tenant.manage"
	PermissionBillingManage     = "billing.manage"
	PermissionFeaturesManage    = "features.manage"
	PermissionMembersManage     = "members.manage"
	PermissionInvitationsManage = "invitations.manage"
)

type Handlers struct {
	Auth     *AuthHandler
	User     *UserHandler
	Password *PasswordHandler
	Session  *SessionHandler
	Context  *ContextHandler
	Feature  *FeatureHandler
	Tenant   *TenantHandler
	Health   *HealthHandler
}

func SetupRoutes(
	app *fiber.App,
	h Handlers,
	tokens middleware.TokenAuthenticator,
	members middleware.MembershipLookup,
) {
	authRequired := middleware.AuthMiddleware(tokens)
	authOptional := middleware.OptionalAuth(tokens)
	can := func(permission string) fiber.Handler {
		return middleware.RequirePermission(members, permission)
	}

	// Health checks (public)
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)

	api := app.Group("/api/v1", middleware.DeviceID())

	auth := api.Group("/auth")
	auth.Post("/signup", h.Auth.SignUp)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.RefreshToken)
	auth.Post("/logout", h.Auth.Logout)
	auth.Get("/session", authRequired, h.Session.GetSession)

	users := api.Group("/users", authRequired)
	users.Get("/me", h.User.GetMe)
	users.Put("/me/password", h.Password.ChangePassword)
	users.Delete("/me/sessions", h.Session.RevokeAll)

	// Device context: anonymous, demo or signed in
	ctx := api.Group("/context", authOptional)
	ctx.Get("/", h.Context.GetContext)
	ctx.Post("/public", h.Context.EnterPublicMode)
	ctx.Post("/demo", h.Context.SwitchDemoAccount)
	ctx.Post("/tenant", h.Context.SwitchTenant)
	ctx.Post("/reload", h.Context.Reload)
	ctx.Get("/features", h.Context.GetFeatures)
	ctx.Get("/features/:id", h.Context.GetFeature)
	ctx.Get("/permissions", h.Context.CheckPermissions)
	ctx.Get("/preferences", h.Context.GetPreferences)
	ctx.Put("/preferences", h.Context.UpdatePreferences)

	feats := api.Group("/features")
	feats.Get("/", h.Feature.ListFeatures)
	feats.Get("/tiers/:tier", h.Feature.ListTierFeatures)

	// Tenant administration
	tenants := api.Group("/tenants", authRequired)
	tenants.Post("/", h.Tenant.CreateTenant)
	tenants.Get("/:id", middleware.RequireMember(members), h.Tenant.GetTenant)
	tenants.Put("/:id/features", can(PermissionFeaturesManage), h.Tenant.UpdateFeatures)
	tenants.Put("/:id/subscription", can(PermissionBillingManage), h.Tenant.UpdateSubscription)
	tenants.Put("/:id/status", can(PermissionTenantManage), h.Tenant.UpdateStatus)
	tenants.Get("/:id/members", middleware.RequireMember(members), h.Tenant.ListMembers)
	tenants.Post("/:id/members", can(PermissionMembersManage), h.Tenant.AddMember)
	tenants.Delete("/:id/members/:userId", can(PermissionMembersManage), h.Tenant.RemoveMember)
	tenants.Get("/:id/invitations", can(PermissionInvitationsManage), h.Tenant.ListInvitations)
	tenants.Post("/:id/invitations", can(PermissionInvitationsManage), h.Tenant.CreateInvitation)
	tenants.Delete("/:id/invitations/:invitationId", can(PermissionInvitationsManage), h.Tenant.RevokeInvitation)

	api.Post("/invitations/accept", authRequired, h.Tenant.AcceptInvitation)
}
