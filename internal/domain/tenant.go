package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TenantType represents the kind of facility a tenant runs
type TenantType string

const (
	TenantTypeStable      TenantType = "stable"
	TenantTypeClinic      TenantType = "clinic"
	TenantTypeMarketplace TenantType = "marketplace"
	TenantTypeEnterprise  TenantType = "enterprise"
	TenantTypeHospital    TenantType = "hospital"
	TenantTypeLaboratory  TenantType = "laboratory"
)

func (t TenantType) Valid() bool {
	switch t {
	case TenantTypeStable, TenantTypeClinic, TenantTypeMarketplace,
		TenantTypeEnterprise, TenantTypeHospital, TenantTypeLaboratory:
		return true
	}
	return false
}

// TenantStatus represents the billing status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusExpired   TenantStatus = "expired"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusTrial, TenantStatusExpired:
		return true
	}
	return false
}

// TenantSettings is the per-tenant configuration stored as JSONB.
// Features holds explicit on/off overrides keyed by feature id.
type TenantSettings struct {
	Features map[string]bool `json:"features,omitempty"`
	Timezone string          `json:"timezone,omitempty"`
	Currency string          `json:"currency,omitempty"`
}

// FeatureOverride returns the explicit setting for a feature, if one exists.
func (s TenantSettings) FeatureOverride(featureID string) (enabled bool, ok bool) {
	if s.Features == nil {
		return false, false
	}
	enabled, ok = s.Features[featureID]
	return enabled, ok
}

func (s TenantSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *TenantSettings) Scan(src any) error {
	return scanJSON(src, s)
}

// JSONMap is a free-form JSONB object.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(src any) error {
	return scanJSON(src, m)
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(errors.New("invalid JSON column"), err)
	}
	return nil
}

// Tenant represents a facility/organization
type Tenant struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	Slug             string           `json:"slug" db:"slug"`
	Type             TenantType       `json:"type" db:"type"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier" db:"subscription_tier"`
	Status           TenantStatus     `json:"status" db:"status"`
	Settings         TenantSettings   `json:"settings" db:"settings"`
	Metadata         JSONMap          `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// IsOperational reports whether members can work in the tenant.
func (t *Tenant) IsOperational() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusTrial
}

// PublicTenantID is the fixed id of the synthesized public-mode tenant.
var PublicTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// PublicUserID is the fixed id of the synthesized public-mode visitor.
var PublicUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
