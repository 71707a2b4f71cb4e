package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedAdminContextKey = ContextKey("authenticatedAdmin")

// AuthenticatedAdmin is the operator behind an admin API request.
type AuthenticatedAdmin struct {
	Subject string
}

// AuthMiddleware accepts HS256 bearer tokens signed with secret.
// An empty secret rejects every request.
func AuthMiddleware(secret []byte, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if len(secret) == 0 {
				logger.WarnContext(ctx, "Admin API request rejected: no signing secret configured")
				writeError(w, http.StatusUnauthorized, "Admin API is disabled", "")
				return
			}
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(ctx, "Authorization header missing")
				writeError(w, http.StatusUnauthorized, "Authorization header required", "")
				return
			}

			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || scheme != "Bearer" || tokenString == "" {
				logger.WarnContext(ctx, "Invalid Authorization header format")
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format", "")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.WarnContext(ctx, "Token validation failed", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", "")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				logger.WarnContext(ctx, "Token has no subject")
				writeError(w, http.StatusUnauthorized, "Invalid token claims", "")
				return
			}

			ctx = context.WithValue(ctx, AuthenticatedAdminContextKey, AuthenticatedAdmin{Subject: subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
