package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/domain"
	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/service"
)

type tokenFunc func(string) (*domain.Claims, error)

func (f tokenFunc) Authenticate(_ context.Context, token string) (*domain.Claims, error) {
	return f(token)
}

type membersFunc func(tenantID, userID uuid.UUID) (*domain.TenantUser, error)

func (f membersFunc) GetMembership(_ context.Context, tenantID, userID uuid.UUID) (*domain.TenantUser, error) {
	return f(tenantID, userID)
}

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.SendString(token)
	})

	tests := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusNoContent},
		{"Basic abc", fiber.StatusNoContent},
		{"Bearer ", fiber.StatusNoContent},
		{"Bearer abc", fiber.StatusOK},
		{"bearer abc", fiber.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(fiber.HeaderAuthorization, tt.header)
		assert.Equal(t, tt.want, status(t, app, req), tt.header)
	}
}

func TestOptionalAuthIgnoresBadTokens(t *testing.T) {
	userID := uuid.New()
	auth := tokenFunc(func(token string) (*domain.Claims, error) {
		if token != "good" {
			return nil, service.ErrInvalidToken
		}
		return &domain.Claims{UserID: userID}, nil
	})

	var seen []bool
	app := fiber.New()
	app.Get("/", OptionalAuth(auth), func(c *fiber.Ctx) error {
		_, ok := GetUserID(c)
		seen = append(seen, ok)
		return nil
	})

	for _, token := range []string{"", "bad", "good"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		assert.Equal(t, fiber.StatusOK, status(t, app, req))
	}
	assert.Equal(t, []bool{false, false, true}, seen)
}

func TestRequireRole(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	role := domain.RoleManager

	auth := tokenFunc(func(string) (*domain.Claims, error) {
		return &domain.Claims{UserID: userID}, nil
	})
	members := membersFunc(func(tid, uid uuid.UUID) (*domain.TenantUser, error) {
		if tid != tenantID || uid != userID {
			return nil, service.ErrMemberNotFound
		}
		return &domain.TenantUser{TenantID: tid, UserID: uid, Role: role}, nil
	})

	app := fiber.New()
	app.Get("/tenants/:id", AuthMiddleware(auth), RequireRole(members, domain.RoleOwner, domain.RoleAdmin), func(c *fiber.Ctx) error {
		binding, ok := GetMembership(c)
		require.True(t, ok)
		return c.SendString(string(binding.Role))
	})

	get := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+id, nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer any")
		return status(t, app, req)
	}

	assert.Equal(t, fiber.StatusForbidden, get(tenantID.String()))
	role = domain.RoleAdmin
	assert.Equal(t, fiber.StatusOK, get(tenantID.String()))
	assert.Equal(t, fiber.StatusForbidden, get(uuid.NewString()))
}

func TestRequirePermissionPropagatesLookupErrors(t *testing.T) {
	boom := errors.New("db down")
	auth := tokenFunc(func(string) (*domain.Claims, error) {
		return &domain.Claims{UserID: uuid.New()}, nil
	})
	members := membersFunc(func(uuid.UUID, uuid.UUID) (*domain.TenantUser, error) {
		return nil, boom
	})

	var got error
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		got = err
		return c.SendStatus(fiber.StatusInternalServerError)
	}})
	app.Get("/tenants/:id", AuthMiddleware(auth), RequirePermission(members, "members.manage"), func(c *fiber.Ctx) error {
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+uuid.NewString(), nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer any")
	assert.Equal(t, fiber.StatusInternalServerError, status(t, app, req))
	assert.ErrorIs(t, got, boom)
}

func TestRecoveryMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RecoveryMiddleware(zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error {
		panic("boom")
	})

	assert.Equal(t, fiber.StatusInternalServerError, status(t, app, httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestMetricsMiddlewareRecordsFinalStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.Status(fiber.StatusTeapot).SendString(err.Error())
	}})
	app.Use(MetricsMiddleware(m))
	app.Get("/brew", func(c *fiber.Ctx) error {
		return errors.New("no coffee")
	})

	assert.Equal(t, fiber.StatusTeapot, status(t, app, httptest.NewRequest(http.MethodGet, "/brew", nil)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequests))
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	app := fiber.New()
	app.Use(CORSMiddleware("*"))
	app.Get("/", func(c *fiber.Ctx) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://example.com")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowCredentials))
}
