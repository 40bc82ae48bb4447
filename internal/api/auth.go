package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/property-scanner/internal/config"
	apperrors "github.com/property-scanner/internal/errors"
)

// Role is the caller's authorization level
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

func (r Role) valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal has the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Claims are the JWT claims the API accepts. The user id travels in sub.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 bearer tokens
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

// NewJWTAuthenticator creates an authenticator from config
func NewJWTAuthenticator(cfg *config.AuthConfig) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// GenerateToken signs a token for userID with role, valid for ttl
func (a *JWTAuthenticator) GenerateToken(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate validates tokenString and returns the principal it names
func (a *JWTAuthenticator) Authenticate(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, apperrors.NewUnauthorizedError("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperrors.NewUnauthorizedError("token expired")
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperrors.NewUnauthorizedError("malformed token")
		default:
			return nil, apperrors.NewUnauthorizedError("invalid token")
		}
	}
	if !token.Valid {
		return nil, apperrors.NewUnauthorizedError("invalid token")
	}

	if claims.Subject == "" {
		return nil, apperrors.NewUnauthorizedError("token has no subject")
	}
	if !claims.Role.valid() {
		return nil, apperrors.NewUnauthorizedError("token has no valid role")
	}

	return &Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

type principalKey struct{}

// WithPrincipal stores the principal on ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated caller, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// AuthMiddleware rejects requests without a valid bearer token
func AuthMiddleware(auth *JWTAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				respondError(w, r, apperrors.NewUnauthorizedError("missing bearer token"))
				return
			}

			principal, err := auth.Authenticate(strings.TrimSpace(tokenString))
			if err != nil {
				respondError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// requireRole returns a Forbidden error unless the caller holds one of roles
func requireRole(r *http.Request, roles ...Role) (*Principal, error) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		return nil, apperrors.NewUnauthorizedError("not authenticated")
	}
	for _, role := range roles {
		if p.Role == role {
			return p, nil
		}
	}
	return nil, apperrors.NewForbiddenError(fmt.Sprintf("role %s may not perform this action", p.Role))
}
