package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

type Claims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID  `json:"uid"`
	Email     string     `json:"email,omitempty"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	SessionID *uuid.UUID `json:"sid,omitempty"`
	TokenType string     `json:"type"`
}
