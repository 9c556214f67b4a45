package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/daylihorse/nour-hub/internal/config"
	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/daylihorse/nour-hub/pkg/blacklist"
	"github.com/daylihorse/nour-hub/pkg/email"
	"github.com/daylihorse/nour-hub/pkg/hash"
	"github.com/daylihorse/nour-hub/pkg/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthEvent names a change of authentication state.
type AuthEvent string

const (
	AuthEventSignedIn       AuthEvent = "signed_in"
	AuthEventSignedOut      AuthEvent = "signed_out"
	AuthEventSignedUp       AuthEvent = "signed_up"
	AuthEventTokenRefreshed AuthEvent = "token_refreshed"
)

type AuthStateChange struct {
	Event     AuthEvent
	UserID    uuid.UUID
	SessionID uuid.UUID
	At        time.Time
}

type AuthStateListener func(AuthStateChange)

type AuthService struct {
	userRepo       repository.UserRepository
	sessionRepo    repository.SessionRepository
	tokenService   *jwt.TokenService
	tokenBlacklist *blacklist.TokenBlacklist
	hasher         *hash.Hasher
	emailService   email.EmailService
	cfg            config.AuthConfig
	metrics        *metrics.Metrics
	logger         *zap.Logger

	mu        sync.RWMutex
	listeners map[uint64]AuthStateListener
	nextID    uint64
}

type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type SignUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

// AuthResult is returned by every operation that opens a session.
type AuthResult struct {
	User      *domain.User      `json:"user"`
	Tokens    *domain.TokenPair `json:"tokens"`
	SessionID uuid.UUID         `json:"session_id"`
}

func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokenService *jwt.TokenService,
	tokenBlacklist *blacklist.TokenBlacklist,
	hasher *hash.Hasher,
	emailService email.EmailService,
	cfg config.AuthConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		tokenService:   tokenService,
		tokenBlacklist: tokenBlacklist,
		hasher:         hasher,
		emailService:   emailService,
		cfg:            cfg,
		metrics:        m,
		logger:         logger.Named("auth"),
		listeners:      make(map[uint64]AuthStateListener),
	}
}

// OnAuthStateChange registers fn for every auth event and returns a
// function that removes it.
func (s *AuthService) OnAuthStateChange(fn AuthStateListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) emit(event AuthEvent, userID, sessionID uuid.UUID) {
	change := AuthStateChange{Event: event, UserID: userID, SessionID: sessionID, At: time.Now()}

	s.mu.RLock()
	listeners := make([]AuthStateListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	addr := normalizeEmail(req.Email)

	if _, err := s.userRepo.GetByEmail(ctx, addr); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        addr,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("sign up: %w", err)
	}

	result, err := s.openSession(ctx, user, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}

	if err := s.emailService.SendWelcomeEmail(ctx, user.Email, user.FullName()); err != nil {
		s.logger.Warn("welcome email failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()))
	s.emit(AuthEventSignedUp, user.ID, result.SessionID)
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.loginOutcome("unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	now := time.Now()
	if user.IsLocked(now) {
		s.loginOutcome("locked")
		return nil, ErrAccountLocked
	}
	if user.Status == domain.UserStatusLocked {
		// lock period is over
		if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		user.Status = domain.UserStatusActive
		user.FailedLogins = 0
		user.LockedUntil = nil
	}

	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !valid {
		if err := s.handleFailedLogin(ctx, user); err != nil {
			return nil, err
		}
		s.loginOutcome("invalid_password")
		return nil, ErrInvalidCredentials
	}

	if user.Status != domain.UserStatusActive {
		s.loginOutcome("inactive")
		return nil, ErrAccountInactive
	}

	if user.FailedLogins > 0 {
		if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		user.FailedLogins = 0
	}

	result, err := s.openSession(ctx, user, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.loginOutcome("success")
	s.emit(AuthEventSignedIn, user.ID, result.SessionID)
	return result, nil
}

// RefreshToken rotates the refresh token of a live session.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokenService.ValidateToken(refreshToken)
	if err != nil || claims.TokenType != domain.TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	session, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if session.IsExpired(time.Now()) {
		if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
			s.logger.Warn("failed to delete expired session", zap.String("session_id", session.ID.String()), zap.Error(err))
		}
		return nil, ErrSessionExpired
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, ErrAccountInactive
	}

	pair, err := s.tokenService.GenerateTokenPair(user, session.TenantID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.tokenService.RefreshExpiry())
	if err := s.sessionRepo.Rotate(ctx, session.ID, hashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	s.emit(AuthEventTokenRefreshed, user.ID, session.ID)
	return pair, nil
}

// Logout revokes the session behind refreshToken and blacklists the access
// token. Logging out an already closed session is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if accessToken != "" {
		claims, err := s.tokenService.ValidateToken(accessToken)
		if err == nil && claims.ExpiresAt != nil {
			if err := s.tokenBlacklist.AddAccessToken(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
				s.logger.Warn("failed to blacklist access token", zap.Error(err))
			}
		}
	}

	if refreshToken == "" {
		return nil
	}

	session, err := s.sessionRepo.GetByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}

	if err := s.sessionRepo.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.emit(AuthEventSignedOut, session.UserID, session.ID)
	return nil
}

// Authenticate validates an access token against signature, type and
// the revocation lists.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.Claims, error) {
	claims, err := s.tokenService.ValidateToken(accessToken)
	if err != nil || claims.TokenType != domain.TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	revoked, err := s.tokenBlacklist.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if claims.IssuedAt != nil {
		revoked, err = s.tokenBlacklist.IsUserBlacklisted(ctx, claims.UserID.String(), claims.IssuedAt.Time)
		if err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

func (s *AuthService) GetSession(ctx context.Context, accessToken string) (*domain.Session, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == nil {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.GetByID(ctx, *claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.IsExpired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *AuthService) GetCurrentUser(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, claims.UserID)
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ChangePassword replaces the password and closes every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	user.PasswordHash, err = s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	return s.InvalidateAllUserSessions(ctx, userID)
}

// SelectTenant records the tenant a session works in. Tokens issued by the
// next refresh carry it; nil clears it.
func (s *AuthService) SelectTenant(ctx context.Context, sessionID uuid.UUID, tenantID *uuid.UUID) error {
	if err := s.sessionRepo.SetTenant(ctx, sessionID, tenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("select tenant: %w", err)
	}
	return nil
}

// InvalidateAllUserSessions deletes the sessions of a user and revokes
// every token issued so far.
func (s *AuthService) InvalidateAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessionRepo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}
	if err := s.tokenBlacklist.BlacklistUser(ctx, userID.String(), s.tokenService.RefreshExpiry()); err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}

	s.emit(AuthEventSignedOut, userID, uuid.Nil)
	return nil
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User, userAgent, ip string) (*AuthResult, error) {
	sessionID := uuid.New()

	pair, err := s.tokenService.GenerateTokenPair(user, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	now := time.Now()
	session := &domain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: hashToken(pair.RefreshToken),
		UserAgent:        optional(userAgent),
		IPAddress:        optional(ip),
		ExpiresAt:        now.Add(s.tokenService.RefreshExpiry()),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &AuthResult{User: user, Tokens: pair, SessionID: sessionID}, nil
}

// handleFailedLogin counts the failure and locks the account once the
// threshold is reached.
func (s *AuthService) handleFailedLogin(ctx context.Context, user *domain.User) error {
	count, err := s.userRepo.IncrementFailedLogins(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	if count >= s.cfg.MaxFailedLogins {
		until := time.Now().Add(s.cfg.LockDuration)
		if err := s.userRepo.Lock(ctx, user.ID, until); err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		s.logger.Warn("account locked",
			zap.String("user_id", user.ID.String()),
			zap.Int("failed_logins", count),
			zap.Time("locked_until", until),
		)
	}
	return nil
}

func (s *AuthService) loginOutcome(outcome string) {
	s.metrics.Logins.WithLabelValues(outcome).Inc()
}

func normalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// hashToken creates a SHA-256 hash of the token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
