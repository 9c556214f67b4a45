package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/daylihorse/nour-hub/internal/domain"
)

var (
	ErrInvalidSigningMethod = errors.New("unexpected signing method")
	ErrInvalidToken         = errors.New("invalid token")
)

func init() {
	// issued-at has to order against revocation markers kept in milliseconds
	jwt.TimePrecision = time.Millisecond
}

type TokenService struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
}

func NewTokenService(privateKeyPEM, publicKeyPEM []byte, accessExpiry, refreshExpiry time.Duration, issuer string) (*TokenService, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewTokenServiceFromKeys(privateKey, publicKey, accessExpiry, refreshExpiry, issuer), nil
}

// NewTokenServiceFromKeys is NewTokenService for keys already parsed.
func NewTokenServiceFromKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, accessExpiry, refreshExpiry time.Duration, issuer string) *TokenService {
	return &TokenService{
		privateKey:    privateKey,
		publicKey:     publicKey,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		issuer:        issuer,
	}
}

// GenerateTokenPair issues an access and a refresh token bound to a session.
// tenantID is the tenant the session was opened for, if any.
func (s *TokenService) GenerateTokenPair(user *domain.User, tenantID *uuid.UUID, sessionID uuid.UUID) (*domain.TokenPair, error) {
	now := time.Now()

	access := s.claims(user.ID, sessionID, domain.TokenTypeAccess, now, s.accessExpiry)
	access.Email = user.Email
	access.TenantID = tenantID
	accessToken, err := s.sign(access)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// the refresh token only identifies the session
	refreshToken, err := s.sign(s.claims(user.ID, sessionID, domain.TokenTypeRefresh, now, s.refreshExpiry))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    access.ExpiresAt.Time,
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenService) claims(userID, sessionID uuid.UUID, tokenType string, now time.Time, ttl time.Duration) *domain.Claims {
	return &domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID:    userID,
		SessionID: &sessionID,
		TokenType: tokenType,
	}
}

func (s *TokenService) sign(claims *domain.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
}

// ValidateToken checks the signature, expiry and issuer of a token of
// either type. Callers check TokenType.
func (s *TokenService) ValidateToken(tokenString string) (*domain.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*domain.Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}
