package tenancy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/demo"
	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/preferences"
	"github.com/daylihorse/nour-hub/internal/service"
)

type logoutCall struct {
	refresh, access string
}

type fakeAuth struct {
	mu       sync.Mutex
	lookup   *fakeLookup
	err      error
	logouts  []logoutCall
	sessions int
	selected map[uuid.UUID]*uuid.UUID
}

func (a *fakeAuth) result(email string) (*service.AuthResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.sessions++
	user := a.lookup.user(email)
	return &service.AuthResult{
		User: user,
		Tokens: &domain.TokenPair{
			AccessToken:  "access-" + email,
			RefreshToken: "refresh-" + email,
			ExpiresAt:    time.Now().Add(time.Hour),
			TokenType:    "Bearer",
		},
		SessionID: uuid.New(),
	}, nil
}

func (a *fakeAuth) Login(_ context.Context, req service.LoginRequest) (*service.AuthResult, error) {
	return a.result(req.Email)
}

func (a *fakeAuth) SignUp(_ context.Context, req service.SignUpRequest) (*service.AuthResult, error) {
	return a.result(req.Email)
}

func (a *fakeAuth) Logout(_ context.Context, refreshToken, accessToken string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logouts = append(a.logouts, logoutCall{refresh: refreshToken, access: accessToken})
	return nil
}

func (a *fakeAuth) SelectTenant(_ context.Context, sessionID uuid.UUID, tenantID *uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == nil {
		a.selected = make(map[uuid.UUID]*uuid.UUID)
	}
	a.selected[sessionID] = tenantID
	return nil
}

func (a *fakeAuth) selection(sessionID uuid.UUID) (*uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.selected[sessionID]
	return id, ok
}

type fakeLookup struct {
	mu        sync.Mutex
	users     map[string]*domain.UserTenants
	refreshed map[uuid.UUID]domain.Tenant
	err       error
	gates     map[uuid.UUID]chan struct{}
	started   chan uuid.UUID

	// userGate holds GetUserTenants until closed; userStarted sees each call.
	userGate    chan struct{}
	userStarted chan string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		users:     make(map[string]*domain.UserTenants),
		refreshed: make(map[uuid.UUID]domain.Tenant),
		gates:     make(map[uuid.UUID]chan struct{}),
	}
}

// addUser registers a user owning one tenant per name, with All on each.
func (l *fakeLookup) addUser(email string, tenantNames ...string) *domain.UserTenants {
	user := &domain.User{ID: uuid.New(), Email: email, FirstName: "Test", Status: domain.UserStatusActive}
	ut := &domain.UserTenants{User: user}
	for _, name := range tenantNames {
		t := domain.Tenant{
			ID:               uuid.New(),
			Name:             name,
			Slug:             name,
			Type:             domain.TenantTypeStable,
			SubscriptionTier: domain.TierProfessional,
			Status:           domain.TenantStatusActive,
		}
		ut.Tenants = append(ut.Tenants, t)
		ut.Bindings = append(ut.Bindings, domain.TenantUser{
			ID:          uuid.New(),
			UserID:      user.ID,
			TenantID:    t.ID,
			Role:        domain.RoleOwner,
			Permissions: domain.PermissionSet{domain.AllPermissions()},
		})
		l.refreshed[t.ID] = t
	}
	l.users[email] = ut
	return ut
}

func (l *fakeLookup) user(email string) *domain.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ut, ok := l.users[email]; ok {
		u := *ut.User
		return &u
	}
	return &domain.User{ID: uuid.New(), Email: email}
}

func (l *fakeLookup) GetUserTenants(_ context.Context, email string) (*domain.UserTenants, error) {
	l.mu.Lock()
	gate, started := l.userGate, l.userStarted
	l.mu.Unlock()
	if started != nil {
		started <- email
	}
	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	ut, ok := l.users[email]
	if !ok {
		return nil, service.ErrUserNotFound
	}
	user := *ut.User
	return &domain.UserTenants{
		User:     &user,
		Tenants:  append([]domain.Tenant(nil), ut.Tenants...),
		Bindings: append([]domain.TenantUser(nil), ut.Bindings...),
	}, nil
}

func (l *fakeLookup) GetTenant(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	l.mu.Lock()
	gate := l.gates[id]
	started := l.started
	t, ok := l.refreshed[id]
	l.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, service.ErrTenantNotFound
	}
	return &t, nil
}

type fixture struct {
	mr      *miniredis.Miniredis
	prefs   *preferences.RedisStore
	auth    *fakeAuth
	lookup  *fakeLookup
	metrics *metrics.Metrics
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lookup := newFakeLookup()
	f := &fixture{
		mr:      mr,
		prefs:   preferences.NewRedisStore(client, time.Hour),
		auth:    &fakeAuth{lookup: lookup},
		lookup:  lookup,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.deps = Deps{
		Auth:     f.auth,
		Tenants:  lookup,
		Demo:     demo.NewDirectory(),
		Prefs:    f.prefs,
		Resolver: features.NewResolver(features.DefaultCatalog()),
		Metrics:  f.metrics,
		Logger:   zap.NewNop(),
	}
	return f
}

func (f *fixture) store(deviceID string) *Store {
	return NewStore(deviceID, f.deps)
}
