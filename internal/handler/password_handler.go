package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/daylihorse/nour-hub/internal/handler/middleware"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

type PasswordHandler struct {
	auth      AuthAPI
	validator *validator.Validator
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128,nefield=OldPassword"`
}

func NewPasswordHandler(auth AuthAPI, validator *validator.Validator) *PasswordHandler {
	return &PasswordHandler{
		auth:      auth,
		validator: validator,
	}
}

// ChangePassword replaces the password and closes every session
// PUT /api/v1/users/me/password
func (h *PasswordHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req ChangePasswordRequest
	if err := parseBody(c, h.validator, &req); err != nil {
		return err
	}

	if err := h.auth.ChangePassword(c.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "password changed, all sessions have been closed",
	})
}
