package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/daylihorse/nour-hub/internal/config"
	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/repository"
	"github.com/daylihorse/nour-hub/pkg/blacklist"
	"github.com/daylihorse/nour-hub/pkg/email"
	"github.com/daylihorse/nour-hub/pkg/hash"
	"github.com/daylihorse/nour-hub/pkg/jwt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[uuid.UUID]*domain.User{}} }

func (r *memUsers) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) GetByEmail(_ context.Context, addr string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == addr {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUsers) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.users[id].LastLoginAt = &now
	return nil
}

func (r *memUsers) IncrementFailedLogins(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].FailedLogins++
	return r.users[id].FailedLogins, nil
}

func (r *memUsers) Lock(_ context.Context, id uuid.UUID, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].Status = domain.UserStatusLocked
	r.users[id].LockedUntil = &until
	return nil
}

func (r *memUsers) ResetFailedLogins(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	u.FailedLogins = 0
	u.LockedUntil = nil
	if u.Status == domain.UserStatusLocked {
		u.Status = domain.UserStatusActive
	}
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newMemSessions() *memSessions { return &memSessions{sessions: map[uuid.UUID]*domain.Session{}} }

func (r *memSessions) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) GetByTokenHash(_ context.Context, h string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash == h {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSessions) Rotate(_ context.Context, id uuid.UUID, h string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.RefreshTokenHash = h
	s.ExpiresAt = exp
	return nil
}

func (r *memSessions) SetTenant(_ context.Context, id uuid.UUID, tenantID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.TenantID = tenantID
	return nil
}

func (r *memSessions) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessions) DeleteByUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memSessions) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memTenants struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]*domain.Tenant
	bindings *memBindings
}

func (r *memTenants) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTenants) CreateWithOwner(ctx context.Context, t *domain.Tenant, owner *domain.TenantUser) error {
	r.mu.Lock()
	for _, existing := range r.tenants {
		if existing.Slug == t.Slug {
			r.mu.Unlock()
			return repository.ErrConflict
		}
	}
	cp := *t
	r.tenants[t.ID] = &cp
	r.mu.Unlock()
	return r.bindings.Upsert(ctx, owner)
}

func (r *memTenants) Update(_ context.Context, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[t.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *t
	r.tenants[t.ID] = &cp
	return nil
}

func (r *memTenants) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Tenant, error) {
	bindings, _ := r.bindings.ListByUser(ctx, userID)
	var out []*domain.Tenant
	for _, b := range bindings {
		if t, err := r.GetByID(ctx, b.TenantID); err == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memBindings struct {
	mu   sync.Mutex
	rows []*domain.TenantUser
}

func (r *memBindings) Upsert(_ context.Context, b *domain.TenantUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == b.UserID && row.TenantID == b.TenantID {
			row.Role = b.Role
			row.Permissions = b.Permissions
			b.ID = row.ID
			return nil
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := *b
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memBindings) Get(_ context.Context, userID, tenantID uuid.UUID) (*domain.TenantUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.TenantID == tenantID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memBindings) filter(keep func(*domain.TenantUser) bool) []*domain.TenantUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TenantUser
	for _, row := range r.rows {
		if keep(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}

func (r *memBindings) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.TenantUser, error) {
	return r.filter(func(b *domain.TenantUser) bool { return b.UserID == userID }), nil
}

func (r *memBindings) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.TenantUser, error) {
	return r.filter(func(b *domain.TenantUser) bool { return b.TenantID == tenantID }), nil
}

func (r *memBindings) Delete(_ context.Context, userID, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.UserID == userID && row.TenantID == tenantID {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memBindings) CountByRole(_ context.Context, tenantID uuid.UUID, role domain.Role) (int, error) {
	return len(r.filter(func(b *domain.TenantUser) bool { return b.TenantID == tenantID && b.Role == role })), nil
}

type memInvitations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.TenantInvitation
}

func (r *memInvitations) Create(_ context.Context, inv *domain.TenantInvitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.rows[inv.ID] = &cp
	return nil
}

func (r *memInvitations) GetByID(_ context.Context, id uuid.UUID) (*domain.TenantInvitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memInvitations) GetByTokenHash(_ context.Context, h string) (*domain.TenantInvitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.rows {
		if inv.TokenHash == h {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memInvitations) Redeem(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || !inv.IsValid(time.Now()) {
		return false, nil
	}
	inv.CurrentUses++
	return true, nil
}

func (r *memInvitations) UpdateStatus(_ context.Context, id uuid.UUID, status domain.InvitationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	inv.Status = status
	return nil
}

func (r *memInvitations) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*domain.TenantInvitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TenantInvitation
	for _, inv := range r.rows {
		if inv.TenantID == tenantID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

type recordingEmail struct {
	mu          sync.Mutex
	welcomed    []string
	invitations []email.InvitationMessage
}

func (e *recordingEmail) SendWelcomeEmail(_ context.Context, to, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.welcomed = append(e.welcomed, to)
	return nil
}

func (e *recordingEmail) SendInvitationEmail(_ context.Context, msg email.InvitationMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invitations = append(e.invitations, msg)
	return nil
}

var testParams = hash.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type authFixture struct {
	svc      *AuthService
	users    *memUsers
	sessions *memSessions
	mail     *recordingEmail
	redis    *miniredis.Miniredis
	hasher   *hash.Hasher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tokens := jwt.NewTokenServiceFromKeys(key, &key.PublicKey, 15*time.Minute, time.Hour, "nour-hub-test")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &authFixture{
		users:    newMemUsers(),
		sessions: newMemSessions(),
		mail:     &recordingEmail{},
		redis:    mr,
		hasher:   hash.NewHasher(testParams),
	}
	f.svc = NewAuthService(
		f.users,
		f.sessions,
		tokens,
		blacklist.NewTokenBlacklist(client),
		f.hasher,
		f.mail,
		config.AuthConfig{MaxFailedLogins: 3, LockDuration: time.Minute},
		metrics.NewNop(),
		zap.NewNop(),
	)
	return f
}

type tenantFixture struct {
	svc         *TenantService
	users       *memUsers
	tenants     *memTenants
	bindings    *memBindings
	invitations *memInvitations
	mail        *recordingEmail
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()

	bindings := &memBindings{}
	f := &tenantFixture{
		users:       newMemUsers(),
		tenants:     &memTenants{tenants: map[uuid.UUID]*domain.Tenant{}, bindings: bindings},
		bindings:    bindings,
		invitations: &memInvitations{rows: map[uuid.UUID]*domain.TenantInvitation{}},
		mail:        &recordingEmail{},
	}
	f.svc = NewTenantService(
		f.tenants,
		f.bindings,
		f.users,
		f.invitations,
		features.NewResolver(features.DefaultCatalog()),
		f.mail,
		zap.NewNop(),
	)
	return f
}

func (f *tenantFixture) addUser(t *testing.T, addr string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: addr, FirstName: "Test", Status: domain.UserStatusActive}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}
