// Package api implements the Unwind REST API.
//
// # Routes
//
//	POST   /api/auth/register        create an account, returns user and tokens
//	POST   /api/auth/login           returns user and tokens
//	POST   /api/auth/refresh         rotates the refresh token
//	POST   /api/auth/logout          clears the stored refresh token
//	GET    /api/auth/me              current user
//	POST   /api/usage                record minutes on an app for a date
//	GET    /api/usage                list, filters: startDate endDate appName limit offset
//	GET    /api/usage/{id}
//	PUT    /api/usage/{id}
//	DELETE /api/usage/{id}
//	GET    /api/analytics/dashboard  risk score, weekly and monthly stats, recommendations
//	GET    /api/analytics/stats
//	GET    /api/analytics/risk-score
//	GET    /api/analytics/risk-history?days=N
//	GET    /health/live, /health/ready, /metrics
//
// Register, login and refresh are rate limited per client IP. Everything
// under /api except those three requires a bearer access token.
//
// # Errors
//
// Validation failures are 400 with an errors array, missing or foreign rows
// are 404, unique violations are 409 and unexpected failures are 500 with a
// generic message.
package api
