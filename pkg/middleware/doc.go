// Package middleware provides HTTP middleware for authentication and rate
// limiting.
//
// AuthMiddleware expects "Authorization: Bearer <access token>". It verifies
// the token, loads the user and stores claims, user ID and user on the
// request context. Expired tokens are rejected with the TOKEN_EXPIRED code so
// clients know to refresh.
//
//	authn := middleware.NewAuthMiddleware(issuer, users)
//	protected.Use(authn.Handler)
//
// RateLimiter is an in-memory token bucket keyed by client IP. It guards the
// login, register and refresh endpoints.
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), metrics)
//	limiter.StartCleanup(ctx, time.Minute)
//	public.Handle("/api/auth/login", limiter.Handler(login))
package middleware
