package token

import (
	"errors"
	"fmt"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken is the only failure Verify reports. Bad signature, expiry and
// malformed input are deliberately indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

// ClockSkew is tolerated on iat and exp so replicas with slightly drifting clocks
// accept each other's tokens.
const ClockSkew = 5 * time.Second

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// Codec signs and verifies HS256 tokens carrying arbitrary claims and an expiry.
type Codec struct {
	now func() time.Time
}

func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

// WithClock returns a copy of the codec reading time from now. Used by tests to
// move tokens past their expiry without sleeping.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{now: now}
}

// Issue signs claims with secret. iat, exp and a unique jti are stamped on a copy
// of claims; the caller's map is left untouched.
func (c *Codec) Issue(claims jwt.MapClaims, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := c.now()
	expiresAt := time.Unix(now.Add(ttl).Unix(), 0)

	out := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		out[k] = v
	}
	out["iat"] = now.Unix()
	out["exp"] = expiresAt.Unix()
	if _, ok := out["jti"]; !ok {
		out["jti"] = newTokenID(now)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, out).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the decoded claims.
func (c *Codec) Verify(tokenString string, secret []byte) (jwt.MapClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || len(secret) == 0 {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(ClockSkew),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func newTokenID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// StringClaim returns claims[name] when it is a non-empty string.
func StringClaim(claims jwt.MapClaims, name string) (string, bool) {
	v, ok := claims[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
