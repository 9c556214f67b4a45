package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/daylihorse/nour-hub/internal/domain"
)

// DefaultFeatureEnabled is used when an available feature has no explicit
// override in the tenant settings.
const DefaultFeatureEnabled = true

var ErrFeatureUnavailable = errors.New("feature not available for subscription tier")

// Matrix is the resolved feature state of one tenant.
type Matrix struct {
	Tier        domain.SubscriptionTier    `json:"tier,omitempty"`
	Available   []domain.FeatureDefinition `json:"available"`
	Unavailable []domain.FeatureDefinition `json:"unavailable"`
	Enabled     []string                   `json:"enabled"`
}

// Resolver answers feature questions for tenants against a catalog.
type Resolver struct {
	catalog        *Catalog
	defaultEnabled bool
}

type Option func(*Resolver)

// WithDefaultEnabled sets the state of available features that have no override.
func WithDefaultEnabled(enabled bool) Option {
	return func(r *Resolver) {
		r.defaultEnabled = enabled
	}
}

func NewResolver(catalog *Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog, defaultEnabled: DefaultFeatureEnabled}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// IsFeatureEnabled is false without a tenant or when the tier does not
// unlock the feature. Otherwise the tenant override wins, then the default.
func (r *Resolver) IsFeatureEnabled(tenant *domain.Tenant, featureID string) bool {
	if tenant == nil {
		return false
	}
	if !r.catalog.AvailableAt(featureID, tenant.SubscriptionTier) {
		return false
	}
	if enabled, ok := tenant.Settings.FeatureOverride(featureID); ok {
		return enabled
	}
	return r.defaultEnabled
}

// AvailableFeatures returns the catalog entries unlocked for the tenant.
func (r *Resolver) AvailableFeatures(tenant *domain.Tenant) []domain.FeatureDefinition {
	available, _ := r.partition(tenant)
	return available
}

// UnavailableFeatures returns the catalog entries locked for the tenant.
func (r *Resolver) UnavailableFeatures(tenant *domain.Tenant) []domain.FeatureDefinition {
	_, unavailable := r.partition(tenant)
	return unavailable
}

func (r *Resolver) partition(tenant *domain.Tenant) (available, unavailable []domain.FeatureDefinition) {
	available = []domain.FeatureDefinition{}
	unavailable = []domain.FeatureDefinition{}
	for _, def := range r.catalog.defs {
		if tenant != nil && tenant.SubscriptionTier.AtLeast(def.MinimumTier) {
			available = append(available, def)
		} else {
			unavailable = append(unavailable, def)
		}
	}
	return available, unavailable
}

// Matrix resolves the full feature picture for the tenant.
func (r *Resolver) Matrix(tenant *domain.Tenant) Matrix {
	available, unavailable := r.partition(tenant)
	m := Matrix{
		Available:   available,
		Unavailable: unavailable,
		Enabled:     []string{},
	}
	if tenant == nil {
		return m
	}
	m.Tier = tenant.SubscriptionTier
	for _, def := range available {
		if r.IsFeatureEnabled(tenant, def.ID) {
			m.Enabled = append(m.Enabled, def.ID)
		}
	}
	return m
}

// ValidateOverrides checks that no override enables a feature the tier
// does not unlock. Disabling is always allowed.
func (r *Resolver) ValidateOverrides(tier domain.SubscriptionTier, overrides map[string]bool) error {
	var locked []string
	for id, enabled := range overrides {
		if !enabled {
			continue
		}
		if !r.catalog.AvailableAt(id, tier) {
			locked = append(locked, id)
		}
	}
	if len(locked) == 0 {
		return nil
	}
	sort.Strings(locked)
	return fmt.Errorf("%w: %v", ErrFeatureUnavailable, locked)
}
