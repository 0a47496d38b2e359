// Package auth issues and validates the bearer tokens that guard admin
// routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/config"
)

// TokenType distinguishes admin tokens from any other token signed with
// the same secret.
type TokenType string

// AdminTokenType marks tokens that may call the admin API.
const AdminTokenType TokenType = "admin"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrNoSecret         = errors.New("admin token secret is not configured")
)

// Claims are the JWT claims of an admin token. The subject names the
// operator.
type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Operator returns the operator the token was issued to
func (c *Claims) Operator() string { return c.Subject }

// TokenService signs and verifies HS256 admin tokens
type TokenService struct {
	key    []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService returns a TokenService for cfg. Tokens live twelve hours
// unless cfg sets an expiry.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	s := &TokenService{
		key:    []byte(cfg.AdminSecret),
		expiry: cfg.TokenExpiry,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	if s.expiry <= 0 {
		s.expiry = 12 * time.Hour
	}
	return s
}

// GenerateAdminToken signs an admin token for operator
func (s *TokenService) GenerateAdminToken(operator string) (string, error) {
	if len(s.key) == 0 {
		return "", ErrNoSecret
	}
	issued := s.now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: AdminTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.expiry)),
		},
	}).SignedString(s.key)
}

// ValidateAdminToken verifies signature, issuer and expiry and returns the
// claims. Parse failures wrap both ErrInvalidToken and the jwt error.
func (s *TokenService) ValidateAdminToken(raw string) (*Claims, error) {
	if len(s.key) == 0 {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Type != AdminTokenType {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// Expiry returns the admin token lifetime
func (s *TokenService) Expiry() time.Duration { return s.expiry }
