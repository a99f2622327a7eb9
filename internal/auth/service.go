// Package auth guards the one privileged endpoint the monitor exposes
// (killing a process, spec §6's POST /api/processes/:pid/kill): a single
// shared secret exchanged for a short-lived bearer token, no user model,
// no session store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidSecret is returned when the presented admin secret does not
	// match the configured bcrypt hash.
	ErrInvalidSecret = errors.New("auth: invalid secret")
	// ErrInvalidToken covers every way a bearer token can fail validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// tokenTTL is how long an issued bearer token is valid for.
const tokenTTL = 1 * time.Hour

// Claims is the sole JWT payload the monitor ever issues: there is exactly
// one privileged role, so there is nothing else to carry.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates the admin bearer token from a single
// bcrypt-hashed secret held in configuration.
type Service struct {
	jwtSecret  []byte
	secretHash []byte
}

// NewService builds a Service. secretHash must be a bcrypt hash produced
// ahead of time (see HashSecret) and stored in config, never the plaintext
// secret itself.
func NewService(jwtSecret, secretHash string) *Service {
	return &Service{jwtSecret: []byte(jwtSecret), secretHash: []byte(secretHash)}
}

// IssueToken exchanges the shared admin secret for a short-lived bearer
// token, once bcrypt confirms it matches the configured hash.
func (s *Service) IssueToken(presentedSecret string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(presentedSecret)); err != nil {
		return "", ErrInvalidSecret
	}

	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "macscope",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashSecret is the companion to NewService's secretHash parameter:
// operators run this once (e.g. via `monitor hash-secret`) to turn a
// plaintext admin secret into the hash configuration stores.
func HashSecret(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
