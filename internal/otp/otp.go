package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"adminauth/internal/token"
)

type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// ChallengeTTL is fixed; neither flow lets callers pick a lifetime.
const ChallengeTTL = 15 * time.Minute

// Verification failures, checked in this order. The messages are what API clients see.
var (
	ErrInvalidToken = errors.New("Invalid or expired token")
	ErrWrongType    = errors.New("Invalid token type")
	ErrWrongCode    = errors.New("Invalid OTP code")
	ErrAlreadyUsed  = errors.New("Token already used")
)

var codeSpace = big.NewInt(1_000_000)

// Challenge is handed to the mailer. Code and Token travel together in the email.
type Challenge struct {
	Code      string
	Token     string
	ExpiresAt time.Time
}

type Result struct {
	Valid  bool
	UserID string
	Err    error
}

type Option func(*Manager)

// WithClock makes the manager and its token codec read time from now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.codec = m.codec.WithClock(now)
	}
}

// WithRandom swaps the code source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// Manager issues and redeems challenges for a single purpose. Email verification and
// password reset each get their own Manager and RecordStore.
type Manager struct {
	purpose Purpose
	secret  []byte
	codec   *token.Codec
	store   RecordStore
	now     func() time.Time
	random  io.Reader
}

func NewManager(purpose Purpose, secret string, store RecordStore, opts ...Option) (*Manager, error) {
	if purpose == "" {
		return nil, errors.New("otp purpose is required")
	}
	if secret == "" {
		return nil, errors.New("otp secret is required")
	}
	if store == nil {
		return nil, errors.New("otp record store is required")
	}
	m := &Manager{
		purpose: purpose,
		secret:  []byte(secret),
		codec:   token.NewCodec(),
		store:   store,
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Purpose() Purpose {
	return m.purpose
}

func (m *Manager) Create(ctx context.Context, userID string) (*Challenge, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	n, err := rand.Int(m.random, codeSpace)
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	signed, expiresAt, err := m.codec.Issue(jwt.MapClaims{
		"sub":     userID,
		"otpCode": code,
		"type":    string(m.purpose),
	}, m.secret, ChallengeTTL)
	if err != nil {
		return nil, err
	}

	if err := m.store.Put(ctx, signed, Record{ExpiresAt: expiresAt}); err != nil {
		return nil, fmt.Errorf("store otp record: %w", err)
	}
	return &Challenge{Code: code, Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks a challenge without consuming it.
func (m *Manager) Verify(ctx context.Context, tokenString, code string) Result {
	userID, err := m.checkClaims(tokenString, code)
	if err != nil {
		return Result{Err: err}
	}

	rec, found, err := m.store.Get(ctx, tokenString)
	if err != nil {
		return Result{Err: fmt.Errorf("load otp record: %w", err)}
	}
	if !found {
		return Result{Err: ErrInvalidToken}
	}
	if rec.Used {
		return Result{Err: ErrAlreadyUsed}
	}
	return Result{Valid: true, UserID: userID}
}

// Consume verifies and marks the challenge used in one step. Of any number of
// concurrent calls with the same token, at most one gets Valid.
func (m *Manager) Consume(ctx context.Context, tokenString, code string) Result {
	userID, err := m.checkClaims(tokenString, code)
	if err != nil {
		return Result{Err: err}
	}

	wasUsed, found, err := m.store.MarkUsed(ctx, tokenString)
	if err != nil {
		return Result{Err: fmt.Errorf("consume otp record: %w", err)}
	}
	if !found {
		return Result{Err: ErrInvalidToken}
	}
	if wasUsed {
		return Result{Err: ErrAlreadyUsed}
	}
	return Result{Valid: true, UserID: userID}
}

// MarkUsed flags the challenge as redeemed. Unknown tokens are ignored.
func (m *Manager) MarkUsed(ctx context.Context, tokenString string) error {
	_, _, err := m.store.MarkUsed(ctx, tokenString)
	return err
}

// CleanupExpired drops records past their expiry. Token verifiability is unaffected.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func (m *Manager) checkClaims(tokenString, code string) (string, error) {
	claims, err := m.codec.Verify(tokenString, m.secret)
	if err != nil {
		return "", ErrInvalidToken
	}
	if typ, _ := token.StringClaim(claims, "type"); typ != string(m.purpose) {
		return "", ErrWrongType
	}
	expected, _ := token.StringClaim(claims, "otpCode")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(code)) != 1 {
		return "", ErrWrongCode
	}
	userID, ok := token.StringClaim(claims, "sub")
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}
