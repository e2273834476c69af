package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdesk/internal/model"
)

var testNow = time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)

func sign(t *testing.T, method jwt.SigningMethod, key any, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	v := NewVerifier("s3cret", "https://id.example.com")
	v.now = func() time.Time { return testNow }
	exp := testNow.Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    model.Session
		wantErr error
	}{
		{
			name: "valid",
			token: sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
				"sub": "user-1", "email": " Ana@Example.com", "iss": "https://id.example.com", "exp": exp,
			}),
			want: model.Session{Subject: "user-1", Email: "ana@example.com", ExpiresAt: time.Unix(exp, 0)},
		},
		{
			name: "expired",
			token: sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
				"sub": "user-1", "iss": "https://id.example.com", "exp": testNow.Add(-time.Minute).Unix(),
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "no expiry",
			token: sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
				"sub": "user-1", "iss": "https://id.example.com",
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
				"sub": "user-1", "iss": "https://id.example.com", "exp": exp,
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong issuer",
			token: sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
				"sub": "user-1", "iss": "https://evil.example.com", "exp": exp,
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong algorithm",
			token: sign(t, jwt.SigningMethodHS512, []byte("s3cret"), jwt.MapClaims{
				"sub": "user-1", "iss": "https://id.example.com", "exp": exp,
			}),
			wantErr: ErrInvalidToken,
		},
		{
			name: "no identity",
			token: sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{
				"iss": "https://id.example.com", "exp": exp,
			}),
			wantErr: ErrInvalidToken,
		},
		{name: "empty", token: "", wantErr: ErrNoToken},
		{name: "garbage", token: "not.a.jwt", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Subject, got.Subject)
			assert.Equal(t, tt.want.Email, got.Email)
			assert.True(t, tt.want.ExpiresAt.Equal(got.ExpiresAt))
		})
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	_, err := NewVerifier("", "").Verify("a.b.c")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, TokenFromRequest(r))
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	assert.True(t, SessionFrom(ctx).Anonymous())

	ctx = WithSession(ctx, model.Session{Email: "ana@example.com"})
	assert.Equal(t, "ana@example.com", SessionFrom(ctx).Email)
}

func TestIsAdmin(t *testing.T) {
	allow := []string{"Organizer@Example.com", " host@example.com "}

	assert.True(t, IsAdmin(allow, model.Session{Email: "organizer@example.com"}))
	assert.True(t, IsAdmin(allow, model.Session{Email: "host@example.com"}))
	assert.False(t, IsAdmin(allow, model.Session{Email: "guest@example.com"}))
	assert.False(t, IsAdmin(allow, model.Session{Subject: "organizer@example.com"}))
	assert.False(t, IsAdmin(nil, model.Session{Email: "organizer@example.com"}))
}
