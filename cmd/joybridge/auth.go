package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks HS256 bearer tokens presented by sample subscribers.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier from a shared secret.
func NewTokenVerifier(secret []byte) (*TokenVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	return &TokenVerifier{secret: secret}, nil
}

// LoadTokenVerifier reads the shared secret from path. Surrounding whitespace is ignored.
func LoadTokenVerifier(path string) (*TokenVerifier, error) {
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("read token secret: %w", err)
	}
	return NewTokenVerifier([]byte(strings.TrimSpace(string(b))))
}

// VerifyToken parses and validates a token. Tokens must carry an exp claim.
func (v *TokenVerifier) VerifyToken(tokenString string) (*jwt.RegisteredClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("token cannot be empty")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// VerifyRequest extracts the token from the Authorization header or the
// "token" query parameter (browsers cannot set headers on WebSocket upgrades).
func (v *TokenVerifier) VerifyRequest(r *http.Request) (*jwt.RegisteredClaims, error) {
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return nil, errors.New("authorization header must use the Bearer scheme")
		}
		token = strings.TrimPrefix(h, prefix)
	}
	return v.VerifyToken(token)
}

// SignToken issues an HS256 token for subject valid for ttl.
func SignToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
