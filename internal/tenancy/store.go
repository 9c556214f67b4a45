// Package tenancy holds the access-mode state of a device: who is signed
// in, which tenants they can enter and which one is current.
package tenancy

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/demo"
	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/features"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/permission"
	"github.com/daylihorse/nour-hub/internal/preferences"
	"github.com/daylihorse/nour-hub/internal/service"
)

var (
	ErrDemoDisabled = errors.New("demo mode is disabled")
	ErrSuperseded   = errors.New("superseded by a newer access change")
)

// Authenticator opens and closes sessions and records the tenant a session
// works in.
type Authenticator interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResult, error)
	SignUp(ctx context.Context, req service.SignUpRequest) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	SelectTenant(ctx context.Context, sessionID uuid.UUID, tenantID *uuid.UUID) error
}

// TenantLookup resolves a user and their tenants.
type TenantLookup interface {
	GetUserTenants(ctx context.Context, email string) (*domain.UserTenants, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
}

// DemoLookup is a TenantLookup over a fixed set of seed accounts.
type DemoLookup interface {
	TenantLookup
	Accounts() []string
}

// PreferenceStore is the persisted mirror of the state.
type PreferenceStore interface {
	Load(ctx context.Context, deviceID string) (preferences.Preferences, error)
	SetCurrentTenant(ctx context.Context, deviceID string, tenantID *uuid.UUID) error
	SetAccessMode(ctx context.Context, deviceID string, mode domain.AccessMode, demoEmail string) error
}

// Deps are the collaborators shared by every store.
type Deps struct {
	Auth     Authenticator
	Tenants  TenantLookup
	Demo     DemoLookup
	Prefs    PreferenceStore
	Resolver *features.Resolver
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Session is the auth session behind an authenticated state.
type Session struct {
	ID           uuid.UUID
	AccessToken  string
	RefreshToken string
}

// State is a snapshot of a store. Users and tenants referenced by a
// snapshot are shared with the store and must not be modified.
type State struct {
	Mode             domain.AccessMode
	User             *domain.User
	CurrentTenant    *domain.Tenant
	AvailableTenants []domain.Tenant
	Bindings         []domain.TenantUser
	Session          *Session
	DemoEmail        string
	IsLoading        bool
}

// Listener receives the state after every change.
type Listener func(State)

// Store is the access-mode state of one device.
type Store struct {
	deviceID string
	deps     Deps
	logger   *zap.Logger

	// persistMu orders state changes with their writes to the
	// preference store, so the last change is also the last one persisted.
	persistMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	loadGen   uint64
	listeners map[uint64]Listener
	nextID    uint64
}

func NewStore(deviceID string, deps Deps) *Store {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Store{
		deviceID:  deviceID,
		deps:      deps,
		logger:    deps.Logger.Named("tenancy").With(zap.String("device_id", deviceID)),
		state:     State{Mode: domain.AccessModeNone},
		listeners: make(map[uint64]Listener),
	}
}

func (s *Store) DeviceID() string {
	return s.deviceID
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
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

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.AvailableTenants = append([]domain.Tenant(nil), s.state.AvailableTenants...)
	st.Bindings = append([]domain.TenantUser(nil), s.state.Bindings...)
	if s.state.Session != nil {
		sess := *s.state.Session
		st.Session = &sess
	}
	return st
}

func (s *Store) notify(st State) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// begin starts a new generation, applies mutate and raises the loading
// flag. When check rejects the state nothing changes. persist runs after
// the change and before any later change is persisted.
func (s *Store) begin(check func(State) bool, mutate func(*State), persist func()) (uint64, bool) {
	s.persistMu.Lock()
	s.mu.Lock()
	if check != nil && !check(s.state) {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return 0, false
	}
	s.gen++
	gen := s.gen
	if mutate != nil {
		mutate(&s.state)
	}
	s.state.IsLoading = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if persist != nil {
		persist()
	}
	s.persistMu.Unlock()

	s.notify(snap)
	return gen, true
}

// startLoad starts the generation of a load. Tenant switches are refused
// until it commits or is superseded.
func (s *Store) startLoad() uint64 {
	s.mu.Lock()
	s.gen++
	s.loadGen = s.gen
	gen := s.gen
	s.state.IsLoading = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return gen
}

// commit applies mutate and then persist only if gen is still the latest
// generation.
func (s *Store) commit(gen uint64, mutate func(*State), persist func()) bool {
	s.persistMu.Lock()
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.persistMu.Unlock()
		s.deps.Metrics.StaleResponses.Inc()
		s.logger.Debug("discarding stale tenant response", zap.Uint64("generation", gen))
		return false
	}
	mutate(&s.state)
	s.state.IsLoading = false
	if s.loadGen == gen {
		s.loadGen = 0
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if persist != nil {
		persist()
	}
	s.persistMu.Unlock()

	s.notify(snap)
	return true
}

// finishLoading clears the loading flag if gen is still the latest
// generation. Older generations leave it to the newer one.
func (s *Store) finishLoading(gen uint64) {
	s.mu.Lock()
	if s.loadGen == gen {
		s.loadGen = 0
	}
	if gen != s.gen || !s.state.IsLoading {
		s.mu.Unlock()
		return
	}
	s.state.IsLoading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// replace swaps the whole state in one step, without loading. Any load in
// flight is superseded.
func (s *Store) replace(st State, persist func()) {
	s.persistMu.Lock()
	s.mu.Lock()
	s.gen++
	s.loadGen = 0
	s.state = st
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if persist != nil {
		persist()
	}
	s.persistMu.Unlock()

	s.notify(snap)
}

// Bootstrap restores the persisted access mode. Authenticated devices stay
// empty until ResumeSession supplies the session.
func (s *Store) Bootstrap(ctx context.Context) error {
	prefs, err := s.deps.Prefs.Load(ctx, s.deviceID)
	if err != nil {
		return err
	}

	switch prefs.AccessMode {
	case domain.AccessModePublic:
		s.EnterPublicMode(ctx)
	case domain.AccessModeDemo:
		if prefs.DemoEmail == "" {
			return nil
		}
		err := s.SwitchDemoAccount(ctx, prefs.DemoEmail)
		if errors.Is(err, demo.ErrUnknownDemoAccount) {
			s.logger.Info("persisted demo account no longer exists", zap.String("email", prefs.DemoEmail))
			s.persistMu.Lock()
			s.persistMode(ctx, domain.AccessModeNone, "")
			s.persistMu.Unlock()
			return nil
		}
		return err
	}
	return nil
}

// EnterPublicMode replaces the state with the synthesized public visitor.
func (s *Store) EnterPublicMode(ctx context.Context) {
	s.replace(publicState(), func() {
		s.persistMode(ctx, domain.AccessModePublic, "")
	})
	s.deps.Metrics.ModeChanges.WithLabelValues(string(domain.AccessModePublic)).Inc()
}

// SwitchDemoAccount loads the tenants of a seed account. An unknown email
// leaves the state as it was.
func (s *Store) SwitchDemoAccount(ctx context.Context, email string) error {
	if s.deps.Demo == nil {
		return ErrDemoDisabled
	}
	email = strings.ToLower(strings.TrimSpace(email))
	err := s.load(ctx, loadRequest{
		mode:   domain.AccessModeDemo,
		lookup: s.deps.Demo,
		email:  email,
	})
	if err != nil {
		return err
	}
	s.deps.Metrics.ModeChanges.WithLabelValues(string(domain.AccessModeDemo)).Inc()
	return nil
}

// Login signs in through the auth collaborator. On failure the state is
// untouched and the error is returned.
func (s *Store) Login(ctx context.Context, req service.LoginRequest) (*service.AuthResult, error) {
	res, err := s.deps.Auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.enter(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) SignUp(ctx context.Context, req service.SignUpRequest) (*service.AuthResult, error) {
	res, err := s.deps.Auth.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.enter(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// enter resumes a session the auth collaborator just opened. When a newer
// change wins the race the session is revoked again.
func (s *Store) enter(ctx context.Context, res *service.AuthResult) error {
	session := sessionOf(res)
	err := s.ResumeSession(ctx, res.User, session)
	if errors.Is(err, ErrSuperseded) {
		if rerr := s.deps.Auth.Logout(ctx, session.RefreshToken, session.AccessToken); rerr != nil {
			s.logger.Warn("failed to revoke superseded session", zap.Error(rerr))
		}
	}
	return err
}

// ResumeSession enters authenticated mode for an already open session.
// Resuming the session the store already holds is a no-op. ErrSuperseded
// means a later change replaced the state while the tenants were loading.
func (s *Store) ResumeSession(ctx context.Context, user *domain.User, session Session) error {
	s.mu.Lock()
	same := s.state.Mode == domain.AccessModeAuthenticated &&
		s.state.Session != nil && s.state.Session.ID == session.ID &&
		s.state.User != nil && s.state.User.ID == user.ID
	s.mu.Unlock()
	if same {
		return nil
	}

	err := s.load(ctx, loadRequest{
		mode:     domain.AccessModeAuthenticated,
		lookup:   s.deps.Tenants,
		email:    user.Email,
		fallback: user,
		session:  &session,
	})
	if err != nil {
		return err
	}
	s.deps.Metrics.ModeChanges.WithLabelValues(string(domain.AccessModeAuthenticated)).Inc()
	return nil
}

// Reload fetches the tenants of the current user again, keeping the
// current tenant when it is still available.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	st := s.snapshotLocked()
	s.mu.Unlock()

	if st.User == nil {
		return nil
	}
	req := loadRequest{mode: st.Mode, email: st.User.Email, session: st.Session}
	if st.CurrentTenant != nil {
		id := st.CurrentTenant.ID
		req.preferred = &id
	}
	switch st.Mode {
	case domain.AccessModeDemo:
		req.lookup = s.deps.Demo
		req.email = st.DemoEmail
	case domain.AccessModeAuthenticated:
		req.lookup = s.deps.Tenants
		req.fallback = st.User
	default:
		return nil
	}
	if err := s.load(ctx, req); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}

// Logout clears the state and revokes an authenticated session. A failed
// revocation is logged; the device is signed out either way.
func (s *Store) Logout(ctx context.Context) {
	st := s.Snapshot()
	s.signOut(ctx)

	if st.Mode == domain.AccessModeAuthenticated && st.Session != nil && s.deps.Auth != nil {
		if err := s.deps.Auth.Logout(ctx, st.Session.RefreshToken, st.Session.AccessToken); err != nil {
			s.logger.Warn("failed to revoke session", zap.Error(err))
		}
	}
}

// Reset signs the device out locally, without touching the auth session.
func (s *Store) Reset(ctx context.Context) {
	s.signOut(ctx)
}

func (s *Store) signOut(ctx context.Context) {
	s.replace(State{Mode: domain.AccessModeNone}, func() {
		s.persistTenant(ctx, nil)
		s.persistMode(ctx, domain.AccessModeNone, "")
	})
	s.deps.Metrics.ModeChanges.WithLabelValues(string(domain.AccessModeNone)).Inc()
}

// SwitchTenant selects one of the available tenants and refreshes its
// record. Ids outside the available list are ignored, as is any switch in
// public mode or while the tenant list is loading. A signed-in session
// remembers the tenant for the tokens it issues next.
func (s *Store) SwitchTenant(ctx context.Context, tenantID uuid.UUID) {
	var (
		mode    domain.AccessMode
		session *Session
		refused string
	)
	gen, ok := s.begin(func(st State) bool {
		mode = st.Mode
		switch {
		case mode == domain.AccessModePublic:
			refused = "public"
		case s.loadGen != 0:
			refused = "loading"
		default:
			if _, found := findTenant(st.AvailableTenants, tenantID); !found {
				refused = "unknown"
			}
		}
		if st.Session != nil {
			sess := *st.Session
			session = &sess
		}
		return refused == ""
	}, func(st *State) {
		st.CurrentTenant, _ = findTenant(st.AvailableTenants, tenantID)
	}, func() {
		s.persistTenant(ctx, &tenantID)
		if mode == domain.AccessModeAuthenticated && session != nil {
			s.selectTenant(ctx, session.ID, &tenantID)
		}
	})
	if !ok {
		s.deps.Metrics.TenantSwitches.WithLabelValues(refused).Inc()
		s.logger.Debug("ignoring tenant switch",
			zap.String("tenant_id", tenantID.String()),
			zap.String("reason", refused),
		)
		return
	}
	defer s.finishLoading(gen)
	s.deps.Metrics.TenantSwitches.WithLabelValues("switched").Inc()

	lookup := s.lookupFor(mode)
	if lookup == nil {
		return
	}
	fresh, err := lookup.GetTenant(ctx, tenantID)
	if err != nil {
		s.logger.Warn("failed to refresh tenant", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return
	}
	s.commit(gen, func(st *State) {
		st.CurrentTenant = fresh
		for i := range st.AvailableTenants {
			if st.AvailableTenants[i].ID == fresh.ID {
				// the slice is shared with earlier snapshots
				tenants := append([]domain.Tenant(nil), st.AvailableTenants...)
				tenants[i] = *fresh
				st.AvailableTenants = tenants
				break
			}
		}
	}, nil)
}

func (s *Store) HasPermission(name string) bool {
	return s.evaluator().HasPermission(name)
}

func (s *Store) HasRole(role domain.Role) bool {
	return s.evaluator().HasRole(role)
}

// Binding returns the membership of the current user in the current tenant.
func (s *Store) Binding() (domain.TenantUser, bool) {
	return s.evaluator().Binding()
}

func (s *Store) IsFeatureEnabled(featureID string) bool {
	return s.deps.Resolver.IsFeatureEnabled(s.currentTenant(), featureID)
}

func (s *Store) AvailableFeatures() []domain.FeatureDefinition {
	return s.deps.Resolver.AvailableFeatures(s.currentTenant())
}

func (s *Store) UnavailableFeatures() []domain.FeatureDefinition {
	return s.deps.Resolver.UnavailableFeatures(s.currentTenant())
}

func (s *Store) Features() features.Matrix {
	return s.deps.Resolver.Matrix(s.currentTenant())
}

func (s *Store) evaluator() permission.Evaluator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return permission.New(s.state.User, s.state.CurrentTenant, s.state.Bindings)
}

func (s *Store) currentTenant() *domain.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentTenant
}

// Authenticated reports whether the store is signed in.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode == domain.AccessModeAuthenticated
}

// HoldsSession reports whether the store is signed in with the session, or
// with any session of userID when sessionID is nil.
func (s *Store) HoldsSession(userID, sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Mode != domain.AccessModeAuthenticated || s.state.Session == nil {
		return false
	}
	if sessionID == uuid.Nil {
		return s.state.User != nil && s.state.User.ID == userID
	}
	return s.state.Session.ID == sessionID
}

func (s *Store) lookupFor(mode domain.AccessMode) TenantLookup {
	switch mode {
	case domain.AccessModeDemo:
		return s.deps.Demo
	case domain.AccessModeAuthenticated:
		return s.deps.Tenants
	}
	return nil
}

type loadRequest struct {
	mode      domain.AccessMode
	lookup    TenantLookup
	email     string
	fallback  *domain.User
	session   *Session
	preferred *uuid.UUID
}

// load fetches user and tenants and installs them as the new state,
// persisting mode and current tenant with it. With a fallback user a
// failed fetch still commits, with no tenants; without one the error is
// returned and the state is left alone.
func (s *Store) load(ctx context.Context, req loadRequest) error {
	gen := s.startLoad()
	defer s.finishLoading(gen)

	loaded, err := req.lookup.GetUserTenants(ctx, req.email)
	if err != nil {
		if req.fallback == nil {
			return err
		}
		s.logger.Warn("failed to load tenants", zap.String("email", req.email), zap.Error(err))
		loaded = &domain.UserTenants{}
	}
	if loaded.User == nil {
		loaded.User = req.fallback
	}

	preferred := req.preferred
	if preferred == nil {
		preferred = s.persistedTenant(ctx)
	}
	current := pickTenant(loaded.Tenants, preferred)

	var demoEmail string
	if req.mode == domain.AccessModeDemo {
		demoEmail = req.email
	}
	var currentID *uuid.UUID
	if current != nil {
		id := current.ID
		currentID = &id
	}

	committed := s.commit(gen, func(st *State) {
		*st = State{
			Mode:             req.mode,
			User:             loaded.User,
			CurrentTenant:    current,
			AvailableTenants: loaded.Tenants,
			Bindings:         loaded.Bindings,
			Session:          req.session,
			DemoEmail:        demoEmail,
		}
	}, func() {
		s.persistTenant(ctx, currentID)
		s.persistMode(ctx, req.mode, demoEmail)
		if req.mode == domain.AccessModeAuthenticated && req.session != nil {
			s.selectTenant(ctx, req.session.ID, currentID)
		}
	})
	if !committed {
		return ErrSuperseded
	}
	return nil
}

func (s *Store) persistedTenant(ctx context.Context) *uuid.UUID {
	prefs, err := s.deps.Prefs.Load(ctx, s.deviceID)
	if err != nil {
		s.logger.Warn("failed to load preferences", zap.Error(err))
		return nil
	}
	return prefs.CurrentTenantID
}

func (s *Store) persistTenant(ctx context.Context, tenantID *uuid.UUID) {
	if err := s.deps.Prefs.SetCurrentTenant(ctx, s.deviceID, tenantID); err != nil {
		s.logger.Warn("failed to persist current tenant", zap.Error(err))
	}
}

func (s *Store) selectTenant(ctx context.Context, sessionID uuid.UUID, tenantID *uuid.UUID) {
	if s.deps.Auth == nil {
		return
	}
	if err := s.deps.Auth.SelectTenant(ctx, sessionID, tenantID); err != nil {
		s.logger.Warn("failed to record session tenant", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}

func (s *Store) persistMode(ctx context.Context, mode domain.AccessMode, demoEmail string) {
	if err := s.deps.Prefs.SetAccessMode(ctx, s.deviceID, mode, demoEmail); err != nil {
		s.logger.Warn("failed to persist access mode", zap.Error(err))
	}
}

func sessionOf(res *service.AuthResult) Session {
	sess := Session{ID: res.SessionID}
	if res.Tokens != nil {
		sess.AccessToken = res.Tokens.AccessToken
		sess.RefreshToken = res.Tokens.RefreshToken
	}
	return sess
}

// pickTenant prefers the given id, then the first tenant.
func pickTenant(tenants []domain.Tenant, preferred *uuid.UUID) *domain.Tenant {
	if len(tenants) == 0 {
		return nil
	}
	if preferred != nil {
		if t, ok := findTenant(tenants, *preferred); ok {
			return t
		}
	}
	t := tenants[0]
	return &t
}

func findTenant(tenants []domain.Tenant, id uuid.UUID) (*domain.Tenant, bool) {
	for i := range tenants {
		if tenants[i].ID == id {
			t := tenants[i]
			return &t, true
		}
	}
	return nil, false
}
