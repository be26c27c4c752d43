package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/contextkeys"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/middleware"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
)

const msgInvalidCredentials = "Invalid email or password"

// AuthHandlers handles registration, login and token refresh
type AuthHandlers struct {
	users   storage.UserStore
	issuer  *auth.TokenIssuer
	hasher  *auth.PasswordHasher
	metrics *observability.Metrics
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(users storage.UserStore, issuer *auth.TokenIssuer, hasher *auth.PasswordHasher, metrics *observability.Metrics) *AuthHandlers {
	return &AuthHandlers{
		users:   users,
		issuer:  issuer,
		hasher:  hasher,
		metrics: metrics,
	}
}

// RegisterRoutes registers authentication routes. Credential endpoints go on
// public, which the server rate limits; the rest on protected.
func (h *AuthHandlers) RegisterRoutes(public, protected *mux.Router) {
	public.HandleFunc("/api/auth/register", h.register).Methods("POST")
	public.HandleFunc("/api/auth/login", h.login).Methods("POST")
	public.HandleFunc("/api/auth/refresh", h.refresh).Methods("POST")

	protected.HandleFunc("/api/auth/logout", h.logout).Methods("POST")
	protected.HandleFunc("/api/auth/me", h.me).Methods("GET")
}

type authPayload struct {
	User   *auth.User     `json:"user,omitempty"`
	Tokens auth.TokenPair `json:"tokens"`
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	in, err := req.Normalize()
	if err != nil {
		h.record("register", "invalid")
		writeError(w, r, err, "")
		return
	}

	ctx := r.Context()
	field, err := h.users.ExistsByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if field != "" {
		h.record("register", "conflict")
		writeError(w, r, &storage.ConflictError{Field: field}, "")
		return
	}

	hash, err := h.hasher.Hash(in.Password)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	user := &auth.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			h.record("register", "conflict")
		}
		writeError(w, r, err, "")
		return
	}

	tokens, err := h.issueAndStore(r, user.ID)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	h.record("register", "success")
	observability.FromContext(ctx).WithField("user_id", user.ID).Info("User registered")
	httputil.WriteCreated(w, "Registration successful", authPayload{User: user, Tokens: tokens})
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	in, err := req.Normalize()
	if err != nil {
		h.record("login", "invalid")
		writeError(w, r, err, "")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), in.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.record("login", "failure")
			httputil.WriteUnauthorized(w, msgInvalidCredentials)
			return
		}
		writeError(w, r, err, "")
		return
	}
	if !h.hasher.Compare(user.PasswordHash, in.Password) {
		h.record("login", "failure")
		httputil.WriteUnauthorized(w, msgInvalidCredentials)
		return
	}

	tokens, err := h.issueAndStore(r, user.ID)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	h.record("login", "success")
	httputil.WriteData(w, http.StatusOK, "Login successful", authPayload{User: user, Tokens: tokens})
}

// refresh handles POST /api/auth/refresh. The presented token must match the
// hash stored at the last issue; a fresh pair replaces it.
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteValidationErrors(w, "Refresh token is required", auth.ValidationErrors{
			{Field: "refreshToken", Message: "Refresh token is required"},
		})
		return
	}

	claims, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		h.record("refresh", "failure")
		writeError(w, r, err, "")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		h.record("refresh", "failure")
		writeError(w, r, err, "")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.record("refresh", "failure")
			httputil.WriteUnauthorized(w, "Invalid refresh token")
			return
		}
		writeError(w, r, err, "")
		return
	}
	if !sameHash(user.RefreshTokenHash, auth.HashToken(req.RefreshToken)) {
		h.record("refresh", "failure")
		httputil.WriteUnauthorized(w, "Invalid refresh token")
		return
	}

	tokens, err := h.issueAndStore(r, user.ID)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	h.record("refresh", "success")
	httputil.WriteSuccess(w, authPayload{Tokens: tokens})
}

// logout handles POST /api/auth/logout. It succeeds even when clearing the
// stored token fails.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := contextkeys.GetUserID(r.Context()); ok {
		if err := h.users.SetRefreshTokenHash(r.Context(), userID, nil); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("Failed to clear refresh token on logout")
		}
	}
	httputil.WriteData(w, http.StatusOK, "Logout successful", nil)
}

// me handles GET /api/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required. Please provide a valid token.")
		return
	}
	httputil.WriteSuccess(w, map[string]*auth.User{"user": user})
}

func (h *AuthHandlers) issueAndStore(r *http.Request, userID int64) (auth.TokenPair, error) {
	tokens, err := h.issuer.Issue(userID)
	if err != nil {
		return auth.TokenPair{}, err
	}
	hash := auth.HashToken(tokens.RefreshToken)
	if err := h.users.SetRefreshTokenHash(r.Context(), userID, &hash); err != nil {
		return auth.TokenPair{}, err
	}
	return tokens, nil
}

func (h *AuthHandlers) record(endpoint, outcome string) {
	if h.metrics != nil {
		h.metrics.AuthAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
	}
}

func sameHash(stored *string, presented string) bool {
	if stored == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}
