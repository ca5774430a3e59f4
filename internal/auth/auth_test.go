package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storagetree/internal/domain"
)

type stubUsers map[uuid.UUID]*domain.User

func (s stubUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func newTestAuth(users stubUsers) *Authenticator {
	return NewAuthenticator(Config{JWTSecret: "0123456789abcdef0123"}, users, zap.NewNop())
}

func TestIssueAndParse(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleAdmin}
	a := newTestAuth(stubUsers{user.ID: user})

	token, expiresAt, err := a.IssueToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), expiresAt, time.Minute)

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestParseRejects(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleUser}
	a := newTestAuth(stubUsers{user.ID: user})

	other := NewAuthenticator(Config{JWTSecret: "another-secret-of-length"}, nil, zap.NewNop())
	forged, _, err := other.IssueToken(user)
	require.NoError(t, err)
	_, err = a.ParseToken(forged)
	assert.ErrorIs(t, err, errInvalidToken)

	expired := NewAuthenticator(Config{JWTSecret: "0123456789abcdef0123", TokenTTL: -time.Hour}, nil, zap.NewNop())
	expired.ttl = -time.Hour
	old, _, err := expired.IssueToken(user)
	require.NoError(t, err)
	_, err = a.ParseToken(old)
	assert.ErrorIs(t, err, errInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: user.ID.String()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ParseToken(unsigned)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestMiddleware(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Username: "bob", Role: domain.RoleUser, DiskSpace: 100, UsedSpace: 7}
	a := newTestAuth(stubUsers{user.ID: user})
	token, _, err := a.IssueToken(user)
	require.NoError(t, err)

	var seen domain.Principal
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, user.ID, seen.ID)
	assert.Equal(t, int64(7), seen.UsedSpace)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer abc",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"code":"UNAUTHORIZED","message":"authentication required"}`, rec.Body.String())
		})
	}

	t.Run("deleted user", func(t *testing.T) {
		ghost := &domain.User{ID: uuid.New(), Username: "ghost", Role: domain.RoleUser}
		token, _, err := a.IssueToken(ghost)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
