package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	issuer = "unwind"
)

var (
	// ErrInvalidToken covers malformed, forged and wrong-kind tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind separates access from refresh tokens
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims are carried by both token kinds. Subject is the user ID.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// TokenConfig configures a TokenIssuer
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenIssuer signs and parses HS256 access and refresh tokens. The two kinds
// use distinct secrets so a refresh token is never accepted as an access
// token.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer validates the secrets and applies default lifetimes
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// Issue signs a new access/refresh pair for userID
func (ti *TokenIssuer) Issue(userID int64) (TokenPair, error) {
	access, err := ti.sign(userID, KindAccess, ti.accessTTL, ti.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := ti.sign(userID, KindRefresh, ti.refreshTTL, ti.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (ti *TokenIssuer) sign(userID int64, kind TokenKind, ttl time.Duration, secret []byte) (string, error) {
	now := ti.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// ParseAccess verifies an access token
func (ti *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return ti.parse(token, KindAccess, ti.accessSecret)
}

// ParseRefresh verifies a refresh token
func (ti *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return ti.parse(token, KindRefresh, ti.refreshSecret)
}

func (ti *TokenIssuer) parse(token string, kind TokenKind, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// HashToken returns the SHA-256 hex digest used to store refresh tokens
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
