package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// TokenValidator decouples the middleware from the user package.
type TokenValidator interface {
	ValidateToken(tokenString string) (int, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle rejects requests without a valid token. It runs before the
// websocket upgrade, so unauthenticated sockets are never accepted.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on a websocket handshake.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			apperrors.WriteJSON(w, apperrors.NewAPIError("Missing authentication token", http.StatusUnauthorized))
			return
		}

		userID, username, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.NewAPIError("Invalid token", http.StatusUnauthorized))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, username)))
	})
}

func WithUser(ctx context.Context, userID int, username string) context.Context {
	ctx = context.WithValue(ctx, UserKey, userID)
	return context.WithValue(ctx, UsernameKey, username)
}

// UserFromContext returns the authenticated caller set by Handle.
func UserFromContext(ctx context.Context) (int, string, bool) {
	userID, ok := ctx.Value(UserKey).(int)
	username, ok2 := ctx.Value(UsernameKey).(string)
	if !ok || !ok2 || userID <= 0 {
		return 0, "", false
	}
	return userID, username, true
}
