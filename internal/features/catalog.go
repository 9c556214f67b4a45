// Package features holds the static feature catalog and resolves which
// features a tenant's subscription tier makes available and which of those
// the tenant has enabled.
package features

import "github.com/daylihorse/nour-hub/internal/domain"

// Catalog is an ordered, immutable list of feature definitions.
type Catalog struct {
	defs  []domain.FeatureDefinition
	index map[string]int
}

// NewCatalog builds a catalog. Duplicate ids keep the first definition.
func NewCatalog(defs []domain.FeatureDefinition) *Catalog {
	c := &Catalog{
		defs:  make([]domain.FeatureDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if _, dup := c.index[def.ID]; dup {
			continue
		}
		c.index[def.ID] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c
}

// All returns a copy of every definition in catalog order.
func (c *Catalog) All() []domain.FeatureDefinition {
	out := make([]domain.FeatureDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Len() int {
	return len(c.defs)
}

func (c *Catalog) Lookup(id string) (domain.FeatureDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.FeatureDefinition{}, false
	}
	return c.defs[i], true
}

// AvailableAt reports whether the feature exists and the tier unlocks it.
func (c *Catalog) AvailableAt(id string, tier domain.SubscriptionTier) bool {
	def, ok := c.Lookup(id)
	if !ok {
		return false
	}
	return tier.AtLeast(def.MinimumTier)
}

// GetSubscriptionTierFeatures returns the features unlocked by tier, in
// catalog order. Unknown tiers unlock nothing.
func (c *Catalog) GetSubscriptionTierFeatures(tier domain.SubscriptionTier) []domain.FeatureDefinition {
	out := make([]domain.FeatureDefinition, 0, len(c.defs))
	for _, def := range c.defs {
		if tier.AtLeast(def.MinimumTier) {
			out = append(out, def)
		}
	}
	return out
}

func feature(id, name, category string, tier domain.SubscriptionTier, description string) domain.FeatureDefinition {
	return domain.FeatureDefinition{
		ID:          id,
		Name:        name,
		Description: description,
		Category:    category,
		MinimumTier: tier,
	}
}

// DefaultCatalog is the platform feature matrix.
func DefaultCatalog() *Catalog {
	return NewCatalog([]domain.FeatureDefinition{
		feature("horses", "Horse Registry", "core", domain.TierBasic, "Horse profiles, ownership and documents"),
		feature("stable_operations", "Stable Operations", "core", domain.TierBasic, "Stalls, feeding schedules and daily care"),
		feature("inventory", "Inventory", "operations", domain.TierBasic, "Feed, bedding and supply stock levels"),
		feature("calendar", "Calendar", "operations", domain.TierBasic, "Shared facility calendar"),
		feature("training", "Training Center", "operations", domain.TierProfessional, "Training plans, sessions and progress"),
		feature("clinic", "Clinic", "health", domain.TierProfessional, "Veterinary appointments and treatment records"),
		feature("pharmacy", "Pharmacy", "health", domain.TierProfessional, "Prescriptions and medication stock"),
		feature("hr", "Human Resources", "administration", domain.TierProfessional, "Employees, shifts and payroll data"),
		feature("finance", "Finance", "administration", domain.TierProfessional, "Invoices, expenses and payments"),
		feature("pos", "Point of Sale", "commerce", domain.TierProfessional, "In-facility sales and receipts"),
		feature("breeding", "Breeding", "health", domain.TierPremium, "Mares, stallions, breeding records and foaling"),
		feature("laboratory", "Laboratory", "health", domain.TierPremium, "Sample intake, test results and reports"),
		feature("marketplace", "Marketplace", "commerce", domain.TierPremium, "Horse and service listings"),
		feature("client_portal", "Client Portal", "commerce", domain.TierPremium, "Owner-facing portal for boarded horses"),
		feature("analytics", "Advanced Analytics", "insights", domain.TierPremium, "Operational dashboards and trends"),
		feature("hospital", "Equine Hospital", "health", domain.TierEnterprise, "Admissions, wards and surgical records"),
		feature("multi_location", "Multi-location", "administration", domain.TierEnterprise, "Several facilities under one account"),
		feature("api_access", "API Access", "integrations", domain.TierEnterprise, "Programmatic access to facility data"),
		feature("white_label", "White Label", "integrations", domain.TierEnterprise, "Custom branding and domains"),
	})
}
