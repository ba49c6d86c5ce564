// Package auth - jwt.go issues, refreshes and verifies the signed bearer tokens
// handed out by the credential endpoints. Tokens are HS256 JWTs carrying a
// token_type claim so a refresh token can never be used where an access token
// is expected.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// minSecretLength is the recommended HMAC key length in characters.
const minSecretLength = 32

var (
	// ErrInvalidToken covers bad signatures, malformed strings and expired tokens.
	ErrInvalidToken = errors.New("token is invalid or expired")
	// ErrWrongTokenType is returned when a token of the other type is presented.
	ErrWrongTokenType = errors.New("token has wrong type")
)

// Claims represents the JWT claims structure
type Claims struct {
	TokenType TokenType `json:"token_type"`
	UserID    int64     `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenService issues and checks bearer tokens. The API depends on this
// interface rather than on a concrete signer.
type TokenService interface {
	// Issue returns a fresh access and refresh token for userID.
	Issue(userID int64) (*TokenPair, error)
	// Refresh validates a refresh token and returns a new access token for its user.
	Refresh(refreshToken string) (string, *Claims, error)
	// Verify validates a token of either type and returns its claims.
	Verify(token string) (*Claims, error)
}

// JWTConfig configures a JWTService.
type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// JWTService is the HS256 TokenService.
type JWTService struct {
	secret          []byte
	issuer          string
	accessLifetime  time.Duration
	refreshLifetime time.Duration
	now             func() time.Time
}

var _ TokenService = (*JWTService)(nil)

// NewJWTService creates a token service. The secret must already be resolved
// (see ResolveSecret).
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessLifetime <= 0 || cfg.RefreshLifetime <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &JWTService{
		secret:          []byte(cfg.Secret),
		issuer:          cfg.Issuer,
		accessLifetime:  cfg.AccessLifetime,
		refreshLifetime: cfg.RefreshLifetime,
		now:             time.Now,
	}, nil
}

// Issue creates an access and a refresh token for an authenticated user
func (s *JWTService) Issue(userID int64) (*TokenPair, error) {
	access, err := s.sign(userID, AccessToken, s.accessLifetime)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, RefreshToken, s.refreshLifetime)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token
func (s *JWTService) Refresh(refreshToken string) (string, *Claims, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return "", nil, err
	}
	if claims.TokenType != RefreshToken {
		return "", nil, ErrWrongTokenType
	}

	access, err := s.sign(claims.UserID, AccessToken, s.accessLifetime)
	if err != nil {
		return "", nil, err
	}
	return access, claims, nil
}

// Verify parses and validates a token of either type
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != AccessToken && claims.TokenType != RefreshToken {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *JWTService) sign(userID int64, typ TokenType, lifetime time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		TokenType: typ,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return tokenString, nil
}

// isDevMode reports whether the process runs in a development environment.
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// GenerateSecret creates a cryptographically secure random signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, minSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ResolveSecret checks the configured JWT secret.
// In production an empty secret is an error. In dev mode a random secret is
// generated and a warning logged; tokens then do not survive a restart.
func ResolveSecret(configured string) (string, error) {
	if configured == "" {
		if !isDevMode() {
			return "", errors.New("auth.jwt_secret (ORGAPI_AUTH_JWT_SECRET) is required in production; " +
				"generate one with: orgapi genkey")
		}
		secret, err := GenerateSecret()
		if err != nil {
			return "", err
		}
		slog.Warn("auth.jwt_secret not set, using auto-generated secret for development; tokens will not persist across restarts")
		return secret, nil
	}

	if len(configured) < minSecretLength {
		slog.Warn("auth.jwt_secret is shorter than recommended", "min_length", minSecretLength)
	}
	return configured, nil
}
