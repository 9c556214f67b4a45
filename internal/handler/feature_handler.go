package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/service"
)

type FeatureHandler struct {
	catalog *features.Catalog
}

func NewFeatureHandler(catalog *features.Catalog) *FeatureHandler {
	return &FeatureHandler{catalog: catalog}
}

// ListFeatures returns the whole catalog and the tier order
// GET /api/v1/features
func (h *FeatureHandler) ListFeatures(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"features": h.catalog.All(),
		"tiers":    domain.SubscriptionTiers,
	})
}

// ListTierFeatures returns the features unlocked at a tier
// GET /api/v1/features/tiers/:tier
func (h *FeatureHandler) ListTierFeatures(c *fiber.Ctx) error {
	tier, err := domain.ParseSubscriptionTier(c.Params("tier"))
	if err != nil {
		return service.ErrInvalidTier
	}
	return c.JSON(fiber.Map{
		"tier":     tier,
		"features": h.catalog.GetSubscriptionTierFeatures(tier),
	})
}
