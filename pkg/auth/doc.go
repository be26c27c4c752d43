// Package auth provides password hashing, JWT issuance and credential
// validation for Unwind accounts.
//
// # Tokens
//
// TokenIssuer signs two HS256 token kinds with separate secrets:
//
//	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
//		AccessSecret:  cfg.Auth.AccessSecret,
//		RefreshSecret: cfg.Auth.RefreshSecret,
//	})
//	pair, err := issuer.Issue(user.ID)
//
// Access tokens live 15 minutes and refresh tokens 7 days by default. The
// subject claim holds the user ID and every token carries a random jti, so
// two tokens issued in the same second still differ.
//
// Only the SHA-256 of the current refresh token is stored (HashToken). A
// refresh rotates it, which makes the previous refresh token unusable.
//
// # Passwords
//
// PasswordHasher wraps bcrypt. Compare never panics and treats an empty or
// malformed hash as a mismatch.
package auth
