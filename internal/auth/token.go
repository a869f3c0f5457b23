// ABOUTME: JWT token issue and verification for authenticating API requests
// ABOUTME: Uses HS256 signing with configurable secret and lifetime

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenLifetime is how long issued tokens stay valid.
const TokenLifetime = 24 * time.Hour

// TokenManager issues and verifies bearer tokens.
type TokenManager interface {
	Generate(userID string) (string, error)
	Verify(tokenString string) (userID string, err error)
}

// JWTManager implements TokenManager using HS256 signed JWTs.
type JWTManager struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTManager creates a token manager with the given secret and the
// default token lifetime.
func NewJWTManager(secret []byte) *JWTManager {
	return &JWTManager{secret: secret, lifetime: TokenLifetime}
}

// Generate creates a new JWT for the given user id.
func (m *JWTManager) Generate(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(m.lifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and extracts the user id from the "sub" claim.
// The role is deliberately not carried in the token; middleware re-reads it
// from the store on every request so a role change takes effect immediately.
func (m *JWTManager) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
