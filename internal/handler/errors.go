package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/demo"
	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/preferences"
	"github.com/daylihorse/nour-hub/internal/service"
	"github.com/daylihorse/nour-hub/internal/tenancy"
	"github.com/daylihorse/nour-hub/pkg/validator"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{service.ErrInvalidToken, fiber.StatusUnauthorized},
	{service.ErrTokenRevoked, fiber.StatusUnauthorized},
	{service.ErrSessionExpired, fiber.StatusUnauthorized},
	{service.ErrAccountLocked, fiber.StatusLocked},
	{service.ErrAccountInactive, fiber.StatusForbidden},
	{service.ErrEmailTaken, fiber.StatusConflict},
	{service.ErrSlugTaken, fiber.StatusConflict},
	{service.ErrLastOwner, fiber.StatusConflict},
	{service.ErrAlreadyMember, fiber.StatusConflict},
	{service.ErrGrantNotAllowed, fiber.StatusForbidden},
	{service.ErrUserNotFound, fiber.StatusNotFound},
	{service.ErrSessionNotFound, fiber.StatusNotFound},
	{service.ErrTenantNotFound, fiber.StatusNotFound},
	{service.ErrMemberNotFound, fiber.StatusNotFound},
	{service.ErrInvitationNotFound, fiber.StatusNotFound},
	{service.ErrUnknownFeature, fiber.StatusNotFound},
	{demo.ErrUnknownDemoAccount, fiber.StatusNotFound},
	{tenancy.ErrDemoDisabled, fiber.StatusForbidden},
	{tenancy.ErrSuperseded, fiber.StatusConflict},
	{service.ErrInvitationInvalid, fiber.StatusGone},
	{features.ErrFeatureUnavailable, fiber.StatusUnprocessableEntity},
	{service.ErrInvalidRole, fiber.StatusBadRequest},
	{service.ErrInvalidStatus, fiber.StatusBadRequest},
	{service.ErrInvalidTier, fiber.StatusBadRequest},
	{domain.ErrInvalidPermission, fiber.StatusBadRequest},
	{preferences.ErrInvalidLanguage, fiber.StatusBadRequest},
	{preferences.ErrInvalidAccessMode, fiber.StatusBadRequest},
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
// Known domain errors keep their message; anything else is logged and
// hidden behind a generic 500.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	logger = logger.Named("http")
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": true, "message": fe.Message})
		}

		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "validation failed",
				"fields":  ve.Fields,
			})
		}

		for _, e := range errorStatus {
			if errors.Is(err, e.err) {
				return c.Status(e.status).JSON(fiber.Map{"error": true, "message": err.Error()})
			}
		}

		logger.Error("unhandled error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "internal server error",
		})
	}
}

// parseBody decodes and validates the request body into dst.
func parseBody(c *fiber.Ctx, v *validator.Validator, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return v.Validate(dst)
}
