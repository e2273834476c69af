// Package auth verifies session tokens issued by the external identity
// provider and answers capability questions about a session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventdesk/internal/model"
)

var (
	ErrNoToken      = errors.New("no session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// CookieName is checked when no Authorization header is present.
const CookieName = "eventdesk_session"

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier. An empty issuer disables the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify parses token and returns the session it asserts. Tokens must carry
// an expiry and an email or subject.
func (v *Verifier) Verify(token string) (model.Session, error) {
	if token == "" {
		return model.Session{}, ErrNoToken
	}
	if len(v.secret) == 0 {
		return model.Session{}, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s := model.Session{
		Subject: c.Subject,
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	if s.Anonymous() {
		return model.Session{}, fmt.Errorf("%w: no subject or email", ErrInvalidToken)
	}
	return s, nil
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

type ctxKey struct{}

func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFrom returns the session attached to ctx, or an anonymous one.
func SessionFrom(ctx context.Context) model.Session {
	s, _ := ctx.Value(ctxKey{}).(model.Session)
	return s
}

// IsAdmin reports whether the session's email is on the allow-list.
func IsAdmin(allow []string, s model.Session) bool {
	if s.Email == "" {
		return false
	}
	for _, a := range allow {
		if strings.EqualFold(strings.TrimSpace(a), s.Email) {
			return true
		}
	}
	return false
}
