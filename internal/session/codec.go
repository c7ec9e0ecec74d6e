// Package session signs and verifies the compact tokens that carry a
// principal's session id between requests.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/campus-voting/internal/application"
)

// MinSecretLength is the shortest HMAC secret accepted by NewCodec.
const MinSecretLength = 16

var (
	// ErrInvalidToken is returned for tokens that fail signature, format or claim checks.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("session token expired")
)

type claims struct {
	SessionID string `json:"sid"`
	Kind      string `json:"knd"`
	jwt.RegisteredClaims
}

// Codec issues and parses HS256 tokens. It implements application.SessionCodec.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithIssuer sets the iss claim written and required by the codec.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock overrides the time source used for validation.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec returns a codec keyed with secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	c := &Codec{secret: []byte(secret), issuer: "campus-voting", now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs the claims. Subject, session id and expiry are required.
func (c *Codec) Issue(in application.SessionClaims) (string, error) {
	if in.Subject == "" || in.SessionID == "" || in.ExpiresAt.IsZero() {
		return "", fmt.Errorf("%w: subject, session id and expiry are required", ErrInvalidToken)
	}
	issued := in.IssuedAt
	if issued.IsZero() {
		issued = c.now()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: in.SessionID,
		Kind:      string(in.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.Subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(in.ExpiresAt),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the carried claims.
func (c *Codec) Parse(raw string) (application.SessionClaims, error) {
	if raw == "" {
		return application.SessionClaims{}, ErrInvalidToken
	}
	parsed := claims{}
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return application.SessionClaims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return application.SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kind := application.PrincipalKind(parsed.Kind)
	if parsed.Subject == "" || parsed.SessionID == "" {
		return application.SessionClaims{}, fmt.Errorf("%w: missing subject or session id", ErrInvalidToken)
	}
	if kind != application.PrincipalStudent && kind != application.PrincipalAdmin {
		return application.SessionClaims{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, parsed.Kind)
	}

	out := application.SessionClaims{
		Subject:   parsed.Subject,
		SessionID: parsed.SessionID,
		Kind:      kind,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Time
	}
	return out, nil
}

var _ application.SessionCodec = (*Codec)(nil)
