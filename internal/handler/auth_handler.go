package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/handler/middleware"
	"github.com/daylihorse/nour-hub/internal/service"
	"github.com/daylihorse/nour-hub/internal/tenancy"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

// AuthAPI is the part of the auth service the handlers call directly.
// Sign-in and sign-up go through the device store instead.
type AuthAPI interface {
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	GetSession(ctx context.Context, accessToken string) (*domain.Session, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	InvalidateAllUserSessions(ctx context.Context, userID uuid.UUID) error
}

type AuthHandler struct {
	auth      AuthAPI
	registry  *tenancy.Registry
	validator *validator.Validator
}

func NewAuthHandler(auth AuthAPI, registry *tenancy.Registry, validator *validator.Validator) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		registry:  registry,
		validator: validator,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp creates an account and signs the device in
// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req service.SignUpRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	req.UserAgent = c.Get(fiber.HeaderUserAgent)
	req.IPAddress = c.IP()

	store := h.registry.Get(c.Context(), middleware.GetDeviceID(c))
	res, err := store.SignUp(c.Context(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse(res, store))
}

// Login signs the device in
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}
	req.UserAgent = c.Get(fiber.HeaderUserAgent)
	req.IPAddress = c.IP()

	store := h.registry.Get(c.Context(), middleware.GetDeviceID(c))
	res, err := store.Login(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(authResponse(res, store))
}

// RefreshToken rotates the refresh token
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	tokens, err := h.auth.RefreshToken(c.Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(tokens)
}

// Logout signs the device out. Without tokens in the request the session
// held by the device is revoked.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	access, _ := middleware.BearerToken(c)

	store := h.registry.Get(c.Context(), middleware.GetDeviceID(c))
	if req.RefreshToken == "" && access == "" {
		store.Logout(c.Context())
		return c.JSON(fiber.Map{"message": "logged out"})
	}

	if err := h.auth.Logout(c.Context(), req.RefreshToken, access); err != nil {
		return err
	}
	store.Reset(c.Context())
	return c.JSON(fiber.Map{"message": "logged out"})
}

func authResponse(res *service.AuthResult, store *tenancy.Store) fiber.Map {
	return fiber.Map{
		"user":       res.User,
		"tokens":     res.Tokens,
		"session_id": res.SessionID,
		"context":    store.View(),
	}
}
