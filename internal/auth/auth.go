// Package auth проверяет JWT и кладет в контекст запроса domain.Principal.
// Личность пользователя ядро получает только отсюда и сам ее не выводит.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/logging"
)

type contextKey struct{}

var (
	errNoToken      = errors.New("no authorization header")
	errInvalidToken = errors.New("invalid token")
)

// UserLoader - источник актуальных данных пользователя (роль, квота)
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Claims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	issuer string
	users  UserLoader
	logger *zap.Logger
}

func NewAuthenticator(cfg Config, users UserLoader, logger *zap.Logger) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "storagetree"
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		issuer: issuer,
		users:  users,
		logger: logger,
	}
}

// IssueToken подписывает токен HS256 с sub = id пользователя
func (a *Authenticator) IssueToken(user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := &Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

func (a *Authenticator) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	return claims, nil
}

// VerifyToken разбирает заголовок Authorization и загружает пользователя
func (a *Authenticator) VerifyToken(r *http.Request) (domain.Principal, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if header == "" || !ok || tokenStr == "" {
		return domain.Principal{}, errNoToken
	}

	claims, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Principal{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: bad subject", errInvalidToken)
	}

	user, err := a.users.GetUser(r.Context(), userID)
	if err != nil {
		return domain.Principal{}, err
	}
	return user.Principal(), nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.VerifyToken(r)
		if err != nil {
			logging.WithContext(r.Context(), a.logger).Debug("authentication failed", zap.Error(err))
			if !errors.Is(err, errNoToken) && !errors.Is(err, errInvalidToken) && !errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, string(domain.CodeInternal), "failed to load user")
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(domain.Principal)
	return p, ok
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body, _ := sonic.Marshal(map[string]string{"code": code, "message": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
