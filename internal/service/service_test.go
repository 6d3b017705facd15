package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"adminauth/internal/database"
	"adminauth/internal/mail"
	"adminauth/internal/otp"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/internal/token"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	To       string
	Template mail.Template
	Fields   map[string]string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(_ context.Context, to string, tmpl mail.Template, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: tmpl, Fields: fields})
	return nil
}

func (m *recordingMailer) last(t *testing.T, to string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i]
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return sentMail{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(eventType string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

type testEnv struct {
	db       *gorm.DB
	users    repository.UserRepository
	roles    repository.RoleRepository
	perms    repository.PermissionRepository
	audits   repository.AuditRepository
	guard    *rbac.Guard
	mailer   *recordingMailer
	notifier *recordingNotifier

	auth  AuthService
	user  UserService
	role  RoleService
	audit AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenInMemory("svc_" + strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		roles:    repository.NewRoleRepository(db),
		perms:    repository.NewPermissionRepository(db),
		audits:   repository.NewAuditRepository(db),
		mailer:   &recordingMailer{},
		notifier: &recordingNotifier{},
	}
	tx := repository.NewTransactionManager(db)

	seeder := rbac.NewSeeder(env.perms, env.roles, tx)
	_, err = seeder.Run(ctx, rbac.Declarations)
	require.NoError(t, err)
	_, err = seeder.EnsureRoles(ctx, rbac.DefaultRoles(rbac.Declarations, "user"))
	require.NoError(t, err)

	issuer, err := token.NewIssuer(nil, token.IssuerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	verification, err := otp.NewManager(otp.PurposeEmailVerification, "otp-secret", otp.NewMemoryRecordStore())
	require.NoError(t, err)
	reset, err := otp.NewManager(otp.PurposePasswordReset, "otp-secret", otp.NewMemoryRecordStore())
	require.NoError(t, err)

	cache := rbac.NewPermissionCache(time.Minute)
	env.guard = rbac.NewGuard(env.roles, cache)
	env.audit = NewAuditService(env.audits)
	env.auth = NewAuthService(AuthDeps{
		Users:        env.users,
		Roles:        env.roles,
		Tx:           tx,
		Issuer:       issuer,
		Blacklist:    token.NewMemoryBlacklist(),
		Verification: verification,
		Reset:        reset,
		Mailer:       env.mailer,
		Hasher:       NewPasswordHasher(0),
		Audit:        env.audit,
		Permissions:  env.guard,
		Notifier:     env.notifier,
		DefaultRole:  "user",
		AppURL:       "http://localhost:3000",
	})
	env.user = NewUserService(env.users, env.roles, env.audit, env.notifier)
	env.role = NewRoleService(env.roles, env.perms, env.users, tx, cache, env.audit, env.notifier)
	return env
}

// registerVerified creates an account and confirms its email with the mailed challenge.
func (e *testEnv) registerVerified(t *testing.T, username, email, password string) *UserResponse {
	t.Helper()
	ctx := context.Background()
	res, err := e.auth.Register(ctx, RegisterRequest{Username: username, Email: email, Password: password})
	require.NoError(t, err)

	m := e.mailer.last(t, strings.ToLower(email))
	require.NoError(t, e.auth.VerifyEmail(ctx, m.Fields["token"], m.Fields["otp"]))
	return res.User
}

// promote moves a user onto the admin role.
func (e *testEnv) promote(t *testing.T, userID string) {
	t.Helper()
	admin, err := e.roles.FindByName(context.Background(), "admin")
	require.NoError(t, err)
	_, err = e.user.AssignRole(context.Background(), "", userID, admin.ID.String())
	require.NoError(t, err)
}
