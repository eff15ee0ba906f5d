package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by an access token.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService mints and validates access tokens for authenticated API
// callers.
type TokenService struct {
	secretKey    []byte
	accessExpiry time.Duration
	keys         *KeyStore
}

// NewTokenService creates a token service backed by a static key store.
func NewTokenService(secretKey string, accessExpiry time.Duration, keys *KeyStore) *TokenService {
	return &TokenService{
		secretKey:    []byte(secretKey),
		accessExpiry: accessExpiry,
		keys:         keys,
	}
}

// GenerateAccessToken issues a token for the given caller identity.
func (s *TokenService) GenerateAccessToken(name, role string) (string, error) {
	claims := &Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   name,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateAccessToken validates a token and returns its claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

type contextKey string

// IdentityContextKey is the context key for the authenticated identity.
const IdentityContextKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Name string
	Role string
}

// GetIdentity retrieves the caller identity from the context.
func GetIdentity(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok
}

// Middleware authenticates requests via a Bearer JWT or an X-API-Key header.
// When the service has no key store configured, authentication is disabled
// and callers run as an anonymous admin.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keys == nil || !s.keys.Enabled() {
			ctx := context.WithValue(r.Context(), IdentityContextKey, &Identity{Name: "anonymous", Role: RoleAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if key := r.Header.Get("X-API-Key"); key != "" {
			entry, ok := s.keys.Lookup(key)
			if !ok {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityContextKey, &Identity{Name: entry.Name, Role: entry.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header or X-API-Key required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}
		claims, err := s.ValidateAccessToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), IdentityContextKey, &Identity{Name: claims.Name, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Roles, most permissive first. Admins and writers may mutate the ledger;
// readers may only query.
const (
	RoleAdmin  = "admin"
	RoleWriter = "writer"
	RoleReader = "reader"
)

// CanWrite checks if the role may execute scripts that mutate the ledger.
func CanWrite(role string) bool {
	return role == RoleAdmin || role == RoleWriter
}
