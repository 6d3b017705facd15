package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/service"
	"adminauth/internal/token"
	"adminauth/pkg/pagination"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSource map[string][]string

func (s staticSource) GrantedPermissions(_ context.Context, role string) ([]string, bool, error) {
	keys, ok := s[role]
	return keys, ok, nil
}

type fakeAudit struct {
	entries []service.AuditEntry
}

func (f *fakeAudit) Record(_ context.Context, e service.AuditEntry) {
	f.entries = append(f.entries, e)
}

func (f *fakeAudit) GetAuditLogs(context.Context, repository.AuditFilter, pagination.Params) (pagination.Page[service.AuditLogResponse], error) {
	return pagination.Page[service.AuditLogResponse]{}, nil
}

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(nil, token.IssuerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	return iss
}

func newRouter(t *testing.T, audit *fakeAudit) (*gin.Engine, *token.Issuer) {
	iss := newIssuer(t)
	guard := rbac.NewGuard(staticSource{
		"admin": {"user.*"},
		"user":  {"profile.*"},
	}, nil)
	gate := NewGate(guard, audit)

	r := gin.New()
	authed := r.Group("/", Authenticate(iss))
	authed.GET("/me", gate.RequirePermission(rbac.PermProfileView), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentIdentity(c).Username)
	})
	authed.GET("/users", gate.RequirePermission(rbac.PermUserView), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, iss
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r, iss := newRouter(t, &fakeAudit{})

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "garbage").Code)

	pair, err := iss.IssuePair(token.Subject{UserID: "u1", Username: "alice", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", pair.RefreshToken).Code, "refresh token is not an access token")

	w := do(r, "/me", pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestRequirePermission(t *testing.T) {
	audit := &fakeAudit{}
	r, iss := newRouter(t, audit)

	user, err := iss.IssuePair(token.Subject{UserID: "u1", Role: "user"})
	require.NoError(t, err)
	admin, err := iss.IssuePair(token.Subject{UserID: "u2", Role: "admin"})
	require.NoError(t, err)

	w := do(r, "/users", user.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "u1", audit.entries[0].ActorID)
	assert.Equal(t, "/users", audit.entries[0].EntityName)

	assert.Equal(t, http.StatusOK, do(r, "/users", admin.AccessToken).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/me", admin.AccessToken).Code, "user.* does not cover profile.view")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, l.Prune())
}
