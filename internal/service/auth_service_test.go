package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"adminauth/internal/mail"
	"adminauth/internal/model"
	"adminauth/internal/rbac"
	"adminauth/internal/repository"
	"adminauth/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow_RegisterVerifyLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterRequest{Username: "alice", Email: "Alice@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.False(t, res.Reactivated)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "user", res.User.Role)
	assert.False(t, res.User.IsVerified)

	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.ErrorIs(t, err, ErrForbidden)

	m := env.mailer.last(t, "alice@example.com")
	assert.Equal(t, mail.TemplateVerifyEmail, m.Template)
	assert.Regexp(t, `^[0-9]{6}$`, m.Fields["otp"])
	assert.Contains(t, m.Fields["link"], "/verify-email?token=")
	require.NoError(t, env.auth.VerifyEmail(ctx, m.Fields["token"], m.Fields["otp"]))

	login, err := env.auth.Login(ctx, LoginRequest{Identifier: "ALICE@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Greater(t, login.RefreshTokenExpiresAt, login.AccessTokenExpiresAt)
	assert.NotNil(t, login.User.LastLoginAt)

	me, err := env.auth.Me(ctx, login.User.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"profile.*"}, me.Permissions)

	require.NoError(t, env.auth.Logout(ctx, login.RefreshToken))
	_, err = env.auth.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, env.notifier.events, EventSessionRevoked)
}

func TestVerifyEmail_ChallengeErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)
	m := env.mailer.last(t, "bob@example.com")

	wrong := "000000"
	if m.Fields["otp"] == wrong {
		wrong = "111111"
	}
	err = env.auth.VerifyEmail(ctx, m.Fields["token"], wrong)
	require.ErrorIs(t, err, ErrInvalidChallenge)
	assert.Equal(t, "Invalid OTP code", err.Error())

	err = env.auth.VerifyEmail(ctx, "garbage", m.Fields["otp"])
	assert.Equal(t, "Invalid or expired token", err.Error())

	// A verification challenge cannot reset a password.
	err = env.auth.ResetPassword(ctx, m.Fields["token"], m.Fields["otp"], "newpassword1")
	assert.ErrorIs(t, err, ErrInvalidChallenge)

	require.NoError(t, env.auth.VerifyEmail(ctx, m.Fields["token"], m.Fields["otp"]))
	err = env.auth.VerifyEmail(ctx, m.Fields["token"], m.Fields["otp"])
	assert.Equal(t, "Token already used", err.Error())
}

func TestLogin_FailuresAreMasked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "carol", "carol@example.com", "password123")

	_, unknown := env.auth.Login(ctx, LoginRequest{Identifier: "nobody", Password: "password123"})
	_, wrong := env.auth.Login(ctx, LoginRequest{Identifier: "carol", Password: "wrong-password"})
	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, unknown, wrong)
	assert.Equal(t, "Invalid credentials", unknown.Error())

	logs, _, err := env.audits.List(ctx, repository.AuditFilter{Action: model.ActionLoginFailure}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestLogin_InactiveAndDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.registerVerified(t, "dave", "dave@example.com", "password123")

	_, err := env.user.SetUserActive(ctx, "", u.ID.String(), false)
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "dave", Password: "password123"})
	assert.ErrorIs(t, err, ErrAccountInactive)

	require.NoError(t, env.user.DeleteUser(ctx, "", u.ID.String()))
	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "dave", Password: "password123"})
	assert.ErrorIs(t, err, ErrAccountDeleted)
}

func TestRefresh_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "erin", "erin@example.com", "password123")
	login, err := env.auth.Login(ctx, LoginRequest{Identifier: "erin", Password: "password123"})
	require.NoError(t, err)

	pair, err := env.auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, pair.RefreshToken)

	_, err = env.auth.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = env.auth.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = env.auth.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentRotationSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "ruth", "ruth@example.com", "password123")
	login, err := env.auth.Login(ctx, LoginRequest{Identifier: "ruth", Password: "password123"})
	require.NoError(t, err)

	var wins, revoked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.Refresh(ctx, login.RefreshToken)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrTokenRevoked):
				revoked.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 7, revoked.Load())
}

func TestRefresh_PicksUpRoleChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.registerVerified(t, "frank", "frank@example.com", "password123")
	login, err := env.auth.Login(ctx, LoginRequest{Identifier: "frank", Password: "password123"})
	require.NoError(t, err)

	env.promote(t, u.ID.String())
	_, err = env.auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	me, err := env.auth.Me(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "admin", me.User.Role)
	assert.True(t, rbac.Satisfies([]string{rbac.PermRoleDelete}, me.Permissions))
}

func TestLogout_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	err := env.auth.Logout(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRegister_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "gina", "gina@example.com", "password123")

	_, err := env.auth.Register(ctx, RegisterRequest{Username: "gina", Email: "other@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = env.auth.Register(ctx, RegisterRequest{Username: "other", Email: "GINA@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.auth.Register(ctx, RegisterRequest{Username: "short", Email: "short@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegister_UsernameCannotShadowAnEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerVerified(t, "alice", "alice@example.com", "password123")

	_, err := env.auth.Register(ctx, RegisterRequest{Username: "alice@example.com", Email: "mallory@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrInvalidUsername)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// A row written before the rule existed still blocks the address it squats.
	role, err := env.roles.FindByName(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, env.users.Create(ctx, &model.User{
		Username: "legacy@example.com", Email: "legacy-owner@example.com",
		PasswordHash: "x", RoleID: role.ID, IsActive: true,
	}))
	_, err = env.auth.Register(ctx, RegisterRequest{Username: "newbie", Email: "legacy@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserExists)

	require.NoError(t, env.users.Create(ctx, &model.User{
		Username: "ALICE@example.com", Email: "squatter@example.com",
		PasswordHash: "x", RoleID: role.ID, IsActive: true,
	}))
	for i := 0; i < 5; i++ {
		login, err := env.auth.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: "password123"})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, login.User.ID)
	}
}

func TestRegister_ReactivatesDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.registerVerified(t, "hank", "hank@example.com", "password123")
	require.NoError(t, env.user.DeleteUser(ctx, "", u.ID.String()))

	res, err := env.auth.Register(ctx, RegisterRequest{Username: "hank2", Email: "hank@example.com", Password: "newpassword1"})
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, "hank2", res.User.Username)
	assert.False(t, res.User.IsDeleted)

	// Still verified, so no challenge went out and the new password works at once.
	assert.Equal(t, mail.TemplateVerifyEmail, env.mailer.last(t, "hank@example.com").Template)
	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "hank2", Password: "newpassword1"})
	assert.NoError(t, err)

	logs, _, err := env.audits.List(ctx, repository.AuditFilter{Action: model.ActionReactivate}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRegister_ReactivationOfUnverifiedSendsWelcomeBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.auth.Register(ctx, RegisterRequest{Username: "ivy", Email: "ivy@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, env.user.DeleteUser(ctx, "", res.User.ID.String()))

	again, err := env.auth.Register(ctx, RegisterRequest{Username: "ivy", Email: "ivy@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.True(t, again.Reactivated)
	m := env.mailer.last(t, "ivy@example.com")
	assert.Equal(t, mail.TemplateWelcomeBack, m.Template)
	require.NoError(t, env.auth.VerifyEmail(ctx, m.Fields["token"], m.Fields["otp"]))
}

func TestRegister_TwoDeletedRowsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.registerVerified(t, "jack", "jack@example.com", "password123")
	b := env.registerVerified(t, "jill", "jill@example.com", "password123")
	require.NoError(t, env.user.DeleteUser(ctx, "", a.ID.String()))
	require.NoError(t, env.user.DeleteUser(ctx, "", b.ID.String()))

	_, err := env.auth.Register(ctx, RegisterRequest{Username: "jill", Email: "jack@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "kate", "kate@example.com", "password123")

	require.NoError(t, env.auth.ForgotPassword(ctx, "kate@example.com"))
	require.NoError(t, env.auth.ForgotPassword(ctx, "nobody@example.com"))
	m := env.mailer.last(t, "kate@example.com")
	require.Equal(t, mail.TemplateResetPassword, m.Template)

	// A rejected password leaves the challenge usable.
	err := env.auth.ResetPassword(ctx, m.Fields["token"], m.Fields["otp"], "short")
	require.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, env.auth.ResetPassword(ctx, m.Fields["token"], m.Fields["otp"], "brandnewpass"))
	err = env.auth.ResetPassword(ctx, m.Fields["token"], m.Fields["otp"], "anotherpass1")
	assert.Equal(t, "Token already used", err.Error())

	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "kate", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, LoginRequest{Identifier: "kate", Password: "brandnewpass"})
	assert.NoError(t, err)
}

func TestPasswordReset_ConcurrentRedeemSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "liam", "liam@example.com", "password123")
	require.NoError(t, env.auth.ForgotPassword(ctx, "liam@example.com"))
	m := env.mailer.last(t, "liam@example.com")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.auth.ResetPassword(ctx, m.Fields["token"], m.Fields["otp"], "brandnewpass"); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, ErrInvalidChallenge) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, RegisterRequest{Username: "mia", Email: "mia@example.com", Password: "password123"})
	require.NoError(t, err)
	first := env.mailer.last(t, "mia@example.com")

	require.NoError(t, env.auth.ResendVerification(ctx, "mia@example.com"))
	second := env.mailer.last(t, "mia@example.com")
	assert.NotEqual(t, first.Fields["token"], second.Fields["token"])
	require.NoError(t, env.auth.VerifyEmail(ctx, second.Fields["token"], second.Fields["otp"]))

	require.NoError(t, env.auth.ResendVerification(ctx, "unknown@example.com"))
}

func TestAuditLogs_Paginated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerVerified(t, "noah", "noah@example.com", "password123")

	page, err := env.audit.GetAuditLogs(ctx, repository.AuditFilter{}, pagination.New(1, 1))
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.GreaterOrEqual(t, page.Total, int64(2))
	assert.Equal(t, "noah", page.Items[0].Username)
}
