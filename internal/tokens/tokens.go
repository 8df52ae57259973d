// Package tokens mints and verifies the LangChef API tokens handed to
// clients after a successful device authorization. Tokens are HS256 JWTs
// carrying the username as subject plus the email and provider identity.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, malformed, or expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the LangChef token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	AWSIdentityID string `json:"aws_identity_id,omitempty"`
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) { i.clock = fn }
}

// NewIssuer creates an issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{
		secret: secret,
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Mint issues a token for the given identity. It returns the signed token
// and its expiry.
func (i *Issuer) Mint(username, email, awsIdentityID string) (string, time.Time, error) {
	now := i.clock()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:         email,
		AWSIdentityID: awsIdentityID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Verify parses and validates a token, returning its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
