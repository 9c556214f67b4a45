package service

import (
	"context"
	"testing"
	"time"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signUp(t *testing.T, f *authFixture, addr, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), SignUpRequest{Email: addr, Password: password, FirstName: "Layla"})
	require.NoError(t, err)
	return res
}

func TestSignUp_CreatesUserAndSession(t *testing.T) {
	f := newAuthFixture(t)

	var events []AuthEvent
	unsubscribe := f.svc.OnAuthStateChange(func(c AuthStateChange) { events = append(events, c.Event) })
	defer unsubscribe()

	res := signUp(t, f, " Layla@Example.com ", "supersecret")

	assert.Equal(t, "layla@example.com", res.User.Email)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	_, err := f.sessions.GetByID(context.Background(), res.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"layla@example.com"}, f.mail.welcomed)
	assert.Equal(t, []AuthEvent{AuthEventSignedUp}, events)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	signUp(t, f, "dup@example.com", "supersecret")

	_, err := f.svc.SignUp(context.Background(), SignUpRequest{Email: "DUP@example.com", Password: "anotherpass"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	signUp(t, f, "rider@example.com", "supersecret")

	var got []AuthStateChange
	f.svc.OnAuthStateChange(func(c AuthStateChange) { got = append(got, c) })

	res, err := f.svc.Login(context.Background(), LoginRequest{Email: "rider@example.com", Password: "supersecret"})
	require.NoError(t, err)
	assert.Equal(t, "rider@example.com", res.User.Email)
	require.Len(t, got, 1)
	assert.Equal(t, AuthEventSignedIn, got[0].Event)
	assert.Equal(t, res.SessionID, got[0].SessionID)
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	signUp(t, f, "groom@example.com", "supersecret")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, LoginRequest{Email: "groom@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, LoginRequest{Email: "groom@example.com", Password: "supersecret"})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestLogin_ExpiredLockIsLifted(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "vet@example.com", "supersecret")
	ctx := context.Background()

	require.NoError(t, f.users.Lock(ctx, res.User.ID, time.Now().Add(-time.Second)))

	_, err := f.svc.Login(ctx, LoginRequest{Email: "vet@example.com", Password: "supersecret"})
	require.NoError(t, err)

	user, err := f.users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UserStatusActive, user.Status)
}

func TestRefreshToken_RotatesSession(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")
	ctx := context.Background()

	pair, err := f.svc.RefreshToken(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)

	// the old refresh token no longer maps to a session
	_, err = f.svc.RefreshToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshToken_RejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")

	_, err := f.svc.RefreshToken(context.Background(), res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_RevokesTokens(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")
	ctx := context.Background()

	var events []AuthEvent
	f.svc.OnAuthStateChange(func(c AuthStateChange) { events = append(events, c.Event) })

	require.NoError(t, f.svc.Logout(ctx, res.Tokens.RefreshToken, res.Tokens.AccessToken))

	_, err := f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = f.sessions.GetByID(ctx, res.SessionID)
	assert.Error(t, err)
	assert.Equal(t, []AuthEvent{AuthEventSignedOut}, events)

	// second logout is a no-op
	assert.NoError(t, f.svc.Logout(ctx, res.Tokens.RefreshToken, ""))
}

func TestGetSessionAndCurrentUser(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")
	ctx := context.Background()

	session, err := f.svc.GetSession(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, session.ID)

	user, err := f.svc.GetCurrentUser(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)

	_, err = f.svc.GetCurrentUser(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePassword_InvalidatesSessions(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, res.User.ID, "wrong", "newsecret1"), ErrInvalidCredentials)
	require.NoError(t, f.svc.ChangePassword(ctx, res.User.ID, "supersecret", "newsecret1"))

	_, err := f.sessions.GetByID(ctx, res.SessionID)
	assert.Error(t, err)

	_, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	time.Sleep(2 * time.Millisecond)
	again, err := f.svc.Login(ctx, LoginRequest{Email: "owner@example.com", Password: "newsecret1"})
	require.NoError(t, err)

	// issued right after the revocation, usually within the same second
	claims, err := f.svc.Authenticate(ctx, again.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, again.SessionID, *claims.SessionID)
}

func TestSelectTenant_CarriedByRefreshedTokens(t *testing.T) {
	f := newAuthFixture(t)
	res := signUp(t, f, "owner@example.com", "supersecret")
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, f.svc.SelectTenant(ctx, res.SessionID, &tenantID))

	pair, err := f.svc.RefreshToken(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, claims.TenantID)
	assert.Equal(t, tenantID, *claims.TenantID)

	require.NoError(t, f.svc.SelectTenant(ctx, res.SessionID, nil))
	pair, err = f.svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, claims.TenantID)

	assert.ErrorIs(t, f.svc.SelectTenant(ctx, uuid.New(), &tenantID), ErrSessionNotFound)
}

func TestOnAuthStateChange_Unsubscribe(t *testing.T) {
	f := newAuthFixture(t)

	calls := 0
	unsubscribe := f.svc.OnAuthStateChange(func(AuthStateChange) { calls++ })
	signUp(t, f, "a@example.com", "supersecret")
	unsubscribe()
	signUp(t, f, "b@example.com", "supersecret")

	assert.Equal(t, 1, calls)
}
