package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/contextkeys"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
)

// CodeTokenExpired tells clients to call /api/auth/refresh
const CodeTokenExpired = "TOKEN_EXPIRED"

const (
	msgAuthRequired = "Authentication required. Please provide a valid token."
	msgTokenExpired = "Token has expired. Please refresh your session."
	msgTokenInvalid = "Invalid token. Please log in again."
	msgUserMissing  = "User not found. Token is invalid."
)

// AuthMiddleware verifies bearer access tokens and loads the caller
type AuthMiddleware struct {
	issuer *auth.TokenIssuer
	users  storage.UserStore
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(issuer *auth.TokenIssuer, users storage.UserStore) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer, users: users}
}

// Handler wraps an HTTP handler with authentication. On success the claims,
// the user ID and the loaded user are stored on the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, msgAuthRequired)
			return
		}

		claims, err := m.issuer.ParseAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, CodeTokenExpired, msgTokenExpired)
				return
			}
			httputil.WriteUnauthorized(w, msgTokenInvalid)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			httputil.WriteUnauthorized(w, msgTokenInvalid)
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httputil.WriteUnauthorized(w, msgUserMissing)
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("Failed to load authenticated user")
			httputil.WriteInternalError(w)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, userID)
		ctx = context.WithValue(ctx, userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type userKey struct{}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// ClaimsFromContext returns the verified access token claims
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextkeys.AuthKey).(*auth.Claims)
	return claims, ok
}

// UserFromContext returns the user loaded by AuthMiddleware
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(userKey{}).(*auth.User)
	return user, ok
}
