package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountInactive    = errors.New("user account is not active")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")

	ErrTenantNotFound     = errors.New("tenant not found")
	ErrSlugTaken          = errors.New("tenant slug already in use")
	ErrUnknownFeature     = errors.New("unknown feature")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid tenant status")
	ErrInvalidTier        = errors.New("invalid subscription tier")
	ErrMemberNotFound     = errors.New("member not found")
	ErrLastOwner          = errors.New("tenant must keep at least one owner")
	ErrGrantNotAllowed    = errors.New("only members holding all permissions can grant ownership or all permissions")
	ErrAlreadyMember      = errors.New("user is already a member of this tenant")
	ErrInvitationInvalid  = errors.New("invitation is invalid or expired")
	ErrInvitationNotFound = errors.New("invitation not found")
)
