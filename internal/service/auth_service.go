package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"adminauth/internal/mail"
	"adminauth/internal/metrics"
	"adminauth/internal/model"
	"adminauth/internal/otp"
	"adminauth/internal/repository"
	"adminauth/internal/token"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,excludes=@"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	// Identifier is an email address or a username.
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
	OTP   string `json:"otp" binding:"required,len=6,numeric"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	OTP         string `json:"otp" binding:"required,len=6,numeric"`
	NewPassword string `json:"new_password" binding:"required"`
}

type RegisterResult struct {
	User        *UserResponse `json:"user"`
	Reactivated bool          `json:"reactivated"`
}

type LoginResponse struct {
	token.Pair
	User *UserResponse `json:"user"`
}

type ProfileResponse struct {
	User        *UserResponse `json:"user"`
	Permissions []string      `json:"permissions"`
}

// PermissionLookup resolves the keys granted to a role, normally through the guard's cache.
type PermissionLookup interface {
	GrantedPermissions(ctx context.Context, role string) ([]string, error)
}

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	VerifyEmail(ctx context.Context, tok, code string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, tok, code, newPassword string) error
	Me(ctx context.Context, userID string) (*ProfileResponse, error)
}

type AuthDeps struct {
	Users        repository.UserRepository
	Roles        repository.RoleRepository
	Tx           repository.TransactionManager
	Issuer       *token.Issuer
	Blacklist    token.Blacklist
	Verification *otp.Manager
	Reset        *otp.Manager
	Mailer       mail.Mailer
	Hasher       *PasswordHasher
	Audit        AuditService
	Permissions  PermissionLookup
	Notifier     Notifier
	DefaultRole  string
	AppURL       string
	Now          func() time.Time
}

type authService struct {
	AuthDeps
}

func NewAuthService(deps AuthDeps) AuthService {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = "user"
	}
	if deps.Hasher == nil {
		deps.Hasher = NewPasswordHasher(0)
	}
	return &authService{AuthDeps: deps}
}

var errMissingIdentity = newError(ErrInvalidInput, "INVALID_INPUT", "Username and email are required")

// Register creates an account, or reactivates a soft-deleted one that matches the
// email or username. Mail delivery never decides the outcome.
func (s *authService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" {
		return nil, errMissingIdentity
	}
	// Login treats any identifier with '@' as an email, so usernames must not look like one.
	if strings.Contains(username, "@") {
		return nil, ErrInvalidUsername
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	var user *model.User
	reactivated := false
	err = s.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.Users.FindByEmailOrUsername(txCtx, email, username)
		if err != nil {
			return err
		}

		if len(existing) > 0 {
			// Two different deleted rows (one by email, one by username) cannot both be
			// folded into one account, so that is a conflict as well.
			if len(existing) > 1 || !existing[0].IsDeleted {
				return ErrUserExists
			}
			u := existing[0]
			u.IsDeleted = false
			u.PasswordHash = hash
			u.Username = username
			u.Email = email
			if err := s.Users.Update(txCtx, &u); err != nil {
				return err
			}
			user, err = s.Users.FindByID(txCtx, u.ID)
			reactivated = true
			return err
		}

		role, err := s.Roles.FindByName(txCtx, s.DefaultRole)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && role.IsDeleted) {
			return ErrDefaultRoleMissing
		}
		if err != nil {
			return err
		}

		user = &model.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			RoleID:       role.ID,
			IsActive:     true,
		}
		if err := s.Users.Create(txCtx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserExists
			}
			return err
		}
		user.Role = role
		return nil
	})
	if err != nil {
		metrics.AuthEvent("register", "failure")
		return nil, err
	}

	action, tmpl := model.ActionRegister, mail.TemplateVerifyEmail
	if reactivated {
		action, tmpl = model.ActionReactivate, mail.TemplateWelcomeBack
	}
	if !user.IsVerified() {
		s.sendChallenge(ctx, s.Verification, user, tmpl, "/verify-email")
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:    user.ID.String(),
		Action:     action,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
	})
	metrics.AuthEvent("register", "success")
	return &RegisterResult{User: toUserResponse(user), Reactivated: reactivated}, nil
}

// Login checks, in order: existence, deletion, lockout, verification, password.
// An unknown identifier and a wrong password produce the same error.
func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	identifier := strings.TrimSpace(req.Identifier)
	user, err := s.Users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.Hasher.Burn(req.Password)
		s.loginFailed(ctx, nil, identifier, "unknown_identifier")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	var refusal error
	switch {
	case user.IsDeleted:
		refusal = ErrAccountDeleted
	case !user.IsActive:
		refusal = ErrAccountInactive
	case !user.IsVerified():
		refusal = ErrEmailNotVerified
	case !s.Hasher.Compare(user.PasswordHash, req.Password):
		refusal = ErrInvalidCredentials
	}
	if refusal != nil {
		var svcErr *Error
		errors.As(refusal, &svcErr)
		s.loginFailed(ctx, user, identifier, strings.ToLower(svcErr.Code))
		return nil, refusal
	}

	now := s.Now()
	if err := s.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	pair, err := s.Issuer.IssuePair(subjectFor(user))
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:    user.ID.String(),
		Action:     model.ActionLoginSuccess,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
	})
	metrics.AuthEvent("login", "success")
	return &LoginResponse{Pair: *pair, User: toUserResponse(user)}, nil
}

func (s *authService) loginFailed(ctx context.Context, user *model.User, identifier, reason string) {
	entry := AuditEntry{
		Action:     model.ActionLoginFailure,
		EntityName: identifier,
		Details:    map[string]any{"reason": reason},
	}
	if user != nil {
		entry.ActorID = user.ID.String()
		entry.EntityID = user.ID.String()
	}
	s.Audit.Record(ctx, entry)
	metrics.AuthEvent("login", reason)
}

// Logout revokes the refresh token for the rest of its lifetime. A token that does not
// verify yields ErrInvalidRefreshToken; callers may still report success.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.Issuer.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.AuthEvent("logout", "invalid_token")
		return ErrInvalidRefreshToken
	}
	if err := s.Blacklist.Add(ctx, refreshToken, claims.ExpiresAt); err != nil {
		return err
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:  claims.UserID,
		Action:   model.ActionLogout,
		EntityID: claims.UserID,
	})
	s.Notifier.Notify(EventSessionRevoked, map[string]any{"user_id": claims.UserID})
	metrics.AuthEvent("logout", "success")
	return nil
}

// Refresh rotates a refresh token. The blacklist is consulted before the signature so a
// logged-out token is rejected as revoked even though it still verifies. The final
// revocation is atomic, so concurrent rotations of one token yield a single new pair.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	revoked, err := s.Blacklist.Contains(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		metrics.AuthEvent("refresh", "revoked")
		return nil, ErrTokenRevoked
	}

	claims, err := s.Issuer.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.AuthEvent("refresh", "invalid_token")
		return nil, ErrInvalidRefreshToken
	}
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.Users.FindByID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	switch {
	case user.IsDeleted:
		return nil, ErrAccountDeleted
	case !user.IsActive:
		return nil, ErrAccountInactive
	case !user.IsVerified():
		return nil, ErrEmailNotVerified
	}

	pair, err := s.Issuer.IssuePair(subjectFor(user))
	if err != nil {
		return nil, err
	}
	// Only the caller that revokes the old token gets to keep the new pair.
	added, err := s.Blacklist.Revoke(ctx, refreshToken, claims.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if !added {
		metrics.AuthEvent("refresh", "revoked")
		return nil, ErrTokenRevoked
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:  user.ID.String(),
		Action:   model.ActionTokenRefresh,
		EntityID: user.ID.String(),
	})
	metrics.AuthEvent("refresh", "success")
	return pair, nil
}

func (s *authService) VerifyEmail(ctx context.Context, tok, code string) error {
	user, err := s.redeem(ctx, s.Verification, tok, code)
	if err != nil {
		return err
	}

	if user.VerifiedAt == nil {
		now := s.Now()
		user.VerifiedAt = &now
		if err := s.Users.Update(ctx, user); err != nil {
			return err
		}
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:    user.ID.String(),
		Action:     model.ActionEmailVerified,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
	})
	return nil
}

// ResendVerification never reveals whether the address is registered.
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsDeleted || user.IsVerified() {
		return nil
	}
	s.sendChallenge(ctx, s.Verification, user, mail.TemplateVerifyEmail, "/verify-email")
	return nil
}

// ForgotPassword never reveals whether the address is registered.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.Users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsDeleted {
		return nil
	}
	s.sendChallenge(ctx, s.Reset, user, mail.TemplateResetPassword, "/reset-password")
	return nil
}

// ResetPassword validates the new password before redeeming, so a rejected password
// does not burn the challenge.
func (s *authService) ResetPassword(ctx context.Context, tok, code, newPassword string) error {
	hash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user, err := s.redeem(ctx, s.Reset, tok, code)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	if err := s.Users.Update(ctx, user); err != nil {
		return err
	}

	s.Audit.Record(ctx, AuditEntry{
		ActorID:    user.ID.String(),
		Action:     model.ActionPasswordReset,
		EntityID:   user.ID.String(),
		EntityName: user.Username,
	})
	return nil
}

func (s *authService) Me(ctx context.Context, userID string) (*ProfileResponse, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.FindByID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrUserNotFound
	}

	perms := []string{}
	if user.Role != nil && s.Permissions != nil {
		granted, err := s.Permissions.GrantedPermissions(ctx, user.Role.Name)
		if err != nil {
			return nil, err
		}
		if granted != nil {
			perms = granted
		}
	}
	return &ProfileResponse{User: toUserResponse(user), Permissions: perms}, nil
}

// redeem consumes a challenge before the caller applies its side effect, so two
// concurrent submissions cannot both succeed.
func (s *authService) redeem(ctx context.Context, m *otp.Manager, tok, code string) (*model.User, error) {
	purpose := string(m.Purpose())
	res := m.Consume(ctx, tok, code)
	if !res.Valid {
		if isChallengeFailure(res.Err) {
			metrics.OTPOutcome(purpose, "rejected")
			return nil, challengeError(res.Err)
		}
		return nil, res.Err
	}
	metrics.OTPOutcome(purpose, "redeemed")

	uid, err := uuid.Parse(res.UserID)
	if err != nil {
		return nil, challengeError(otp.ErrInvalidToken)
	}
	user, err := s.Users.FindByID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.IsDeleted {
		return nil, ErrAccountDeleted
	}
	return user, nil
}

// sendChallenge issues a challenge and mails it. Failures are logged only.
func (s *authService) sendChallenge(ctx context.Context, m *otp.Manager, user *model.User, tmpl mail.Template, path string) {
	ch, err := m.Create(ctx, user.ID.String())
	if err != nil {
		logWarn("failed to create %s challenge for user %s: %v", m.Purpose(), user.ID, err)
		return
	}
	metrics.OTPOutcome(string(m.Purpose()), "issued")

	fields := map[string]string{
		"username": user.Username,
		"otp":      ch.Code,
		"token":    ch.Token,
		"link":     s.AppURL + path + "?token=" + url.QueryEscape(ch.Token),
	}
	if err := s.Mailer.Send(ctx, user.Email, tmpl, fields); err != nil {
		logWarn("failed to send %s email to user %s: %v", tmpl, user.ID, err)
	}
}

func isChallengeFailure(err error) bool {
	return errors.Is(err, otp.ErrInvalidToken) ||
		errors.Is(err, otp.ErrWrongType) ||
		errors.Is(err, otp.ErrWrongCode) ||
		errors.Is(err, otp.ErrAlreadyUsed)
}

func subjectFor(user *model.User) token.Subject {
	s := token.Subject{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
	}
	if user.Role != nil {
		s.Role = user.Role.Name
	}
	return s
}
