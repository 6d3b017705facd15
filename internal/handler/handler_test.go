package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"adminauth/internal/database"
	"adminauth/internal/mail"
	"adminauth/internal/metrics"
	"adminauth/internal/middleware"
	"adminauth/internal/otp"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/service"
	"adminauth/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	to     string
	fields map[string]string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) Send(_ context.Context, to string, _ mail.Template, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{to: to, fields: fields})
	return nil
}

func (m *captureMailer) last() capturedMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type apiEnv struct {
	router *gin.Engine
	mailer *captureMailer
	users  service.UserService
	roles  repository.RoleRepository
}

func newAPI(t *testing.T, limiter *middleware.RateLimiter) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.Init()
	ctx := context.Background()

	db, err := database.OpenInMemory("api_" + strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := repository.NewUserRepository(db)
	roles := repository.NewRoleRepository(db)
	perms := repository.NewPermissionRepository(db)
	tx := repository.NewTransactionManager(db)

	seeder := rbac.NewSeeder(perms, roles, tx)
	_, err = seeder.Run(ctx, rbac.Declarations)
	require.NoError(t, err)
	_, err = seeder.EnsureRoles(ctx, rbac.DefaultRoles(rbac.Declarations, "user"))
	require.NoError(t, err)

	issuer, err := token.NewIssuer(nil, token.IssuerConfig{
		AccessSecret: "a-secret", RefreshSecret: "r-secret",
		AccessTTL: time.Minute, RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	verify, err := otp.NewManager(otp.PurposeEmailVerification, "otp", otp.NewMemoryRecordStore())
	require.NoError(t, err)
	reset, err := otp.NewManager(otp.PurposePasswordReset, "otp", otp.NewMemoryRecordStore())
	require.NoError(t, err)

	cache := rbac.NewPermissionCache(time.Minute)
	guard := rbac.NewGuard(roles, cache)
	audit := service.NewAuditService(repository.NewAuditRepository(db))
	mailer := &captureMailer{}

	env := &apiEnv{mailer: mailer, roles: roles}
	env.users = service.NewUserService(users, roles, audit, nil)
	env.router = NewRouter(RouterDeps{
		Auth: service.NewAuthService(service.AuthDeps{
			Users: users, Roles: roles, Tx: tx, Issuer: issuer,
			Blacklist: token.NewMemoryBlacklist(), Verification: verify, Reset: reset,
			Mailer: mailer, Audit: audit, Permissions: guard,
		}),
		Users:   env.users,
		Roles:   service.NewRoleService(roles, perms, users, tx, cache, audit, nil),
		Audit:   audit,
		Issuer:  issuer,
		Guard:   guard,
		Limiter: limiter,
	})
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e *apiEnv) call(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (e *apiEnv) signup(t *testing.T, username, email string) service.LoginResponse {
	t.Helper()
	code, _ := e.call(t, http.MethodPost, "/auth/register", "", gin.H{"username": username, "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, code)

	m := e.mailer.last()
	code, _ = e.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": m.fields["token"], "otp": m.fields["otp"]})
	require.Equal(t, http.StatusOK, code)

	code, env := e.call(t, http.MethodPost, "/auth/login", "", gin.H{"identifier": username, "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var login service.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	return login
}

func TestAPI_AuthLifecycle(t *testing.T) {
	e := newAPI(t, nil)

	code, env := e.call(t, http.MethodPost, "/auth/register", "", gin.H{"username": "alice", "email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)

	code, env = e.call(t, http.MethodPost, "/auth/login", "", gin.H{"identifier": "alice", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", env.Error)

	m := e.mailer.last()
	code, env = e.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": m.fields["token"], "otp": "12345"})
	assert.Equal(t, http.StatusBadRequest, code, "otp must be six digits")
	assert.Equal(t, "INVALID_INPUT", env.Error)

	code, _ = e.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": m.fields["token"], "otp": m.fields["otp"]})
	require.Equal(t, http.StatusOK, code)
	code, env = e.call(t, http.MethodPost, "/auth/verify-email", "", gin.H{"token": m.fields["token"], "otp": m.fields["otp"]})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Token already used", env.Message)

	code, env = e.call(t, http.MethodPost, "/auth/login", "", gin.H{"identifier": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var login service.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))

	code, env = e.call(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var profile service.ProfileResponse
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "alice", profile.User.Username)

	code, _ = e.call(t, http.MethodPost, "/auth/logout", "", gin.H{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusOK, code)
	code, env = e.call(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_REVOKED", env.Error)

	code, _ = e.call(t, http.MethodPost, "/auth/logout", "", gin.H{"refresh_token": "junk"})
	assert.Equal(t, http.StatusOK, code, "logout never fails on bad tokens")
}

func TestAPI_MaskedEndpoints(t *testing.T) {
	e := newAPI(t, nil)
	code, _ := e.call(t, http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = e.call(t, http.MethodPost, "/auth/resend-verification", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, code)

	code, env := e.call(t, http.MethodPost, "/auth/login", "", gin.H{"identifier": "nobody", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error)
}

func TestAPI_RejectedPayloadHidesValidatorOutput(t *testing.T) {
	e := newAPI(t, nil)

	code, env := e.call(t, http.MethodPost, "/auth/register", "", gin.H{"username": "bob@example.com", "email": "mallory@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", env.Error)
	assert.Equal(t, "Invalid request payload", env.Message)

	code, env = e.call(t, http.MethodPost, "/auth/login", "", gin.H{"identifier": "bob"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request payload", env.Message)
	assert.NotContains(t, env.Message, "Password")
}

func TestAPI_PermissionGates(t *testing.T) {
	e := newAPI(t, nil)
	admin := e.signup(t, "root", "root@example.com")
	plain := e.signup(t, "bob", "bob@example.com")

	code, _ := e.call(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, env := e.call(t, http.MethodGet, "/api/users", plain.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error)

	adminRole, err := e.roles.FindByName(context.Background(), "admin")
	require.NoError(t, err)
	_, err = e.users.AssignRole(context.Background(), "", admin.User.ID.String(), adminRole.ID.String())
	require.NoError(t, err)

	// The role travels in the access token, so it applies after a refresh.
	code, env = e.call(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": admin.RefreshToken})
	require.Equal(t, http.StatusOK, code)
	var pair token.Pair
	require.NoError(t, json.Unmarshal(env.Data, &pair))

	code, env = e.call(t, http.MethodGet, "/api/users?limit=1", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []service.UserResponse `json:"items"`
		Total int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 2, page.Total)

	code, env = e.call(t, http.MethodPost, "/api/roles", pair.AccessToken, gin.H{"name": "auditor", "permissions": []string{"audit.view", "nope.view"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "PERMISSION_NOT_ASSIGNABLE", env.Error)

	code, _ = e.call(t, http.MethodPost, "/api/roles", pair.AccessToken, gin.H{"name": "auditor", "permissions": []string{"audit.view"}})
	assert.Equal(t, http.StatusCreated, code)
	code, env = e.call(t, http.MethodPost, "/api/roles", pair.AccessToken, gin.H{"name": "auditor"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ROLE_EXISTS", env.Error)

	code, env = e.call(t, http.MethodDelete, "/api/roles/"+adminRole.ID.String(), pair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "SYSTEM_ROLE", env.Error)

	code, env = e.call(t, http.MethodDelete, "/api/users/"+admin.User.ID.String(), pair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "SELF_ACTION", env.Error)

	code, _ = e.call(t, http.MethodGet, "/api/audit-logs?action=ACCESS_DENIED", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.call(t, http.MethodGet, "/api/permissions", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_RateLimitedAuth(t *testing.T) {
	e := newAPI(t, middleware.NewRateLimiter(0.001, 2))
	body := gin.H{"identifier": "nobody", "password": "password123"}

	code, _ := e.call(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = e.call(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, env := e.call(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", env.Error)
}
