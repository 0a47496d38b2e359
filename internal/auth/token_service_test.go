package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"pgregory.net/rapid"

	"github.com/welldanyogia/feedback-forms/internal/config"
)

const testSecret = "test-admin-secret-key-32-chars!!"

func newTestTokenService() *TokenService {
	return NewTokenService(config.JWTConfig{
		AdminSecret: testSecret,
		TokenExpiry: time.Hour,
		Issuer:      "test-issuer",
	})
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := svc.ValidateAdminToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Operator() != "ops" {
		t.Errorf("expected operator ops, got %q", claims.Operator())
	}
	if claims.Type != AdminTokenType {
		t.Errorf("expected admin type, got %q", claims.Type)
	}
	if claims.ID == "" {
		t.Error("expected jti claim")
	}
}

func TestValidate_Expired(t *testing.T) {
	svc := newTestTokenService()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := svc.ValidateAdminToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidate_WrongType(t *testing.T) {
	svc := newTestTokenService()
	claims := Claims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := svc.ValidateAdminToken(token); !errors.Is(err, ErrInvalidTokenType) {
		t.Errorf("expected ErrInvalidTokenType, got %v", err)
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	other := NewTokenService(config.JWTConfig{AdminSecret: testSecret, Issuer: "someone-else"})
	token, err := other.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := newTestTokenService().ValidateAdminToken(token); err == nil {
		t.Error("expected issuer mismatch to fail")
	}
}

func TestValidate_NoneAlgorithmRejected(t *testing.T) {
	claims := Claims{Type: AdminTokenType, RegisteredClaims: jwt.RegisteredClaims{Issuer: "test-issuer"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := newTestTokenService().ValidateAdminToken(token); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}

func TestNoSecret(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{})

	if _, err := svc.GenerateAdminToken("ops"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
	if _, err := svc.ValidateAdminToken("anything"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
	if svc.Expiry() != 12*time.Hour {
		t.Errorf("expected default expiry, got %v", svc.Expiry())
	}
}

// Feature: admin-auth, Property 1: Token Expiration Correctness
// *For any* operator, a generated admin token expires exactly the configured
// expiry after it was issued.
func TestProperty1_TokenExpirationCorrectness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		operator := rapid.StringMatching(`[a-z]{3,12}`).Draw(t, "operator")
		hours := rapid.IntRange(1, 72).Draw(t, "hours")

		svc := NewTokenService(config.JWTConfig{
			AdminSecret: testSecret,
			TokenExpiry: time.Duration(hours) * time.Hour,
			Issuer:      "test-issuer",
		})
		issued := time.Now().Truncate(time.Second)
		svc.now = func() time.Time { return issued }

		token, err := svc.GenerateAdminToken(operator)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		claims, err := svc.ValidateAdminToken(token)
		if err != nil {
			t.Fatalf("failed to validate token: %v", err)
		}

		if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != time.Duration(hours)*time.Hour {
			t.Errorf("expected lifetime %dh, got %v", hours, got)
		}
		if claims.Operator() != operator {
			t.Errorf("expected operator %q, got %q", operator, claims.Operator())
		}
	})
}

// Feature: admin-auth, Property 2: Tampered Tokens Are Rejected
// *For any* valid token, changing any character of its signature makes it
// invalid.
func TestProperty2_TamperedTokensAreRejected(t *testing.T) {
	svc := newTestTokenService()
	token, err := svc.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	sigStart := strings.LastIndex(token, ".") + 1

	rapid.Check(t, func(t *rapid.T) {
		pos := rapid.IntRange(sigStart, len(token)-2).Draw(t, "pos")
		replacement := rapid.SampledFrom([]byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_")).Draw(t, "char")
		if token[pos] == replacement {
			return
		}

		tampered := token[:pos] + string(replacement) + token[pos+1:]
		if _, err := svc.ValidateAdminToken(tampered); err == nil {
			t.Errorf("tampered token at %d was accepted", pos)
		}
	})
}
