package token

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Subject is the identity embedded in an access token.
type Subject struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Pair is handed to the client after login or refresh. Expiries are epoch seconds.
type Pair struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
}

type AccessClaims struct {
	Subject
	ID        string
	ExpiresAt time.Time
}

// RefreshClaims deliberately carry nothing but the subject so a refresh token can
// never stand in for an access token.
type RefreshClaims struct {
	UserID    string
	ID        string
	ExpiresAt time.Time
}

type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer binds a Codec to the access and refresh secrets.
type Issuer struct {
	codec         *Codec
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(codec *Codec, cfg IssuerConfig) (*Issuer, error) {
	if codec == nil {
		codec = NewCodec()
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if bytes.Equal([]byte(cfg.AccessSecret), []byte(cfg.RefreshSecret)) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token ttl must be greater than zero")
	}
	return &Issuer{
		codec:         codec,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}, nil
}

func (i *Issuer) IssuePair(s Subject) (*Pair, error) {
	if s.UserID == "" {
		return nil, errors.New("subject is required")
	}

	access, accessExp, err := i.codec.Issue(jwt.MapClaims{
		"sub":      s.UserID,
		"username": s.Username,
		"email":    s.Email,
		"role":     s.Role,
		"typ":      TypeAccess,
	}, i.accessSecret, i.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := i.codec.Issue(jwt.MapClaims{
		"sub": s.UserID,
		"typ": TypeRefresh,
	}, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp.Unix(),
		RefreshTokenExpiresAt: refreshExp.Unix(),
	}, nil
}

func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims, err := i.codec.Verify(tokenString, i.accessSecret)
	if err != nil {
		return nil, err
	}
	if typ, _ := StringClaim(claims, "typ"); typ != TypeAccess {
		return nil, ErrInvalidToken
	}
	sub, ok := StringClaim(claims, "sub")
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &AccessClaims{Subject: Subject{UserID: sub}}
	out.Username, _ = StringClaim(claims, "username")
	out.Email, _ = StringClaim(claims, "email")
	out.Role, _ = StringClaim(claims, "role")
	out.ID, _ = StringClaim(claims, "jti")
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims, err := i.codec.Verify(tokenString, i.refreshSecret)
	if err != nil {
		return nil, err
	}
	if typ, _ := StringClaim(claims, "typ"); typ != TypeRefresh {
		return nil, ErrInvalidToken
	}
	sub, ok := StringClaim(claims, "sub")
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &RefreshClaims{UserID: sub}
	out.ID, _ = StringClaim(claims, "jti")
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// RefreshTTL is the configured refresh-token lifetime.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}
