package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus represents the status of a tenant invitation
type InvitationStatus string

const (
	InvitationStatusActive  InvitationStatus = "active"
	InvitationStatusExpired InvitationStatus = "expired"
	InvitationStatusRevoked InvitationStatus = "revoked"
)

// TenantInvitation lets a new or existing user join a tenant with a preset role.
type TenantInvitation struct {
	ID          uuid.UUID        `json:"id"`
	TenantID    uuid.UUID        `json:"tenant_id"`
	TokenHash   string           `json:"-"`
	CreatedBy   uuid.UUID        `json:"created_by"`
	Role        Role             `json:"role"`
	Permissions PermissionSet    `json:"permissions"`
	MaxUses     *int             `json:"max_uses,omitempty"` // nil = unlimited
	CurrentUses int              `json:"current_uses"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsValid checks if the invitation can still be redeemed
func (i *TenantInvitation) IsValid(now time.Time) bool {
	if i.Status != InvitationStatusActive {
		return false
	}
	if now.After(i.ExpiresAt) {
		return false
	}
	if i.MaxUses != nil && i.CurrentUses >= *i.MaxUses {
		return false
	}
	return true
}
