package service

import "errors"

// Error kinds. Handlers map these to HTTP statuses with errors.Is.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error is a failure with a message safe to return to the client and a stable code.
type Error struct {
	Kind    error
	Code    string
	Message string

	base  *Error
	cause error
}

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.base != nil {
		errs = append(errs, e.base)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// WithDetail returns a copy whose message names the offending value. errors.Is still
// matches the original.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message + ": " + detail, base: e}
}

var (
	ErrInvalidCredentials  = newError(ErrUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	ErrInvalidRefreshToken = newError(ErrUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid or expired refresh token")
	ErrTokenRevoked        = newError(ErrUnauthorized, "TOKEN_REVOKED", "Refresh token has been revoked")

	ErrAccountDeleted   = newError(ErrForbidden, "ACCOUNT_DELETED", "Account has been deleted")
	ErrAccountInactive  = newError(ErrForbidden, "ACCOUNT_INACTIVE", "Account is inactive")
	ErrEmailNotVerified = newError(ErrForbidden, "EMAIL_NOT_VERIFIED", "Email address is not verified")
	ErrSystemRole       = newError(ErrForbidden, "SYSTEM_ROLE", "Built-in roles cannot be renamed or deleted")
	ErrSelfAction       = newError(ErrForbidden, "SELF_ACTION", "You cannot perform this action on your own account")

	ErrUserExists = newError(ErrConflict, "USER_EXISTS", "Username or email is already registered")
	ErrRoleExists = newError(ErrConflict, "ROLE_EXISTS", "Role name is already taken")
	ErrRoleInUse  = newError(ErrConflict, "ROLE_IN_USE", "Role is still assigned to users")

	ErrUserNotFound       = newError(ErrNotFound, "USER_NOT_FOUND", "User not found")
	ErrRoleNotFound       = newError(ErrNotFound, "ROLE_NOT_FOUND", "Role not found")
	ErrPermissionNotFound = newError(ErrNotFound, "PERMISSION_NOT_FOUND", "Permission not found")
	ErrDefaultRoleMissing = newError(ErrNotFound, "DEFAULT_ROLE_MISSING", "Default role is not configured")

	ErrWeakPassword            = newError(ErrInvalidInput, "WEAK_PASSWORD", "Password must be between 8 and 72 characters")
	ErrInvalidUsername         = newError(ErrInvalidInput, "INVALID_USERNAME", "Username must not contain '@'")
	ErrInvalidID               = newError(ErrInvalidInput, "INVALID_ID", "Invalid identifier")
	ErrPermissionNotAssignable = newError(ErrInvalidInput, "PERMISSION_NOT_ASSIGNABLE", "Permission does not exist or is not active")
	ErrInvalidRoleName         = newError(ErrInvalidInput, "INVALID_ROLE_NAME", "Role name must be 2-50 characters of letters, digits, '_' or '-'")
)

// challengeError wraps an OTP verification failure. The message is the specific
// reason ("Invalid OTP code", "Token already used", ...).
func challengeError(cause error) *Error {
	return &Error{Kind: ErrInvalidChallenge, Code: "INVALID_CHALLENGE", Message: cause.Error(), cause: cause}
}
