package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"pgregory.net/rapid"

	"github.com/welldanyogia/feedback-forms/internal/auth"
	"github.com/welldanyogia/feedback-forms/internal/config"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(config.JWTConfig{
		AdminSecret: "test-admin-secret-key-32-chars!!",
		TokenExpiry: 15 * time.Minute,
		Issuer:      "test-issuer",
	})
}

// Helper to create a test handler that records if it was called
func testHandler() (http.Handler, *bool) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		operator, ok := ExtractOperator(r.Context())
		if !ok || operator == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(operator))
	})
	return handler, &called
}

// Feature: admin-auth, Property 3: Missing Auth Header Returns 401
// *For any* request to an admin endpoint without Authorization header,
// the system should return 401 with AUTH_TOKEN_MISSING code.
func TestProperty3_MissingAuthHeaderReturns401(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := "/" + rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "path")
		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "DELETE"}).Draw(t, "method")

		middleware := NewAuthMiddleware(newTestTokenService())
		handler, called := testHandler()

		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()
		middleware.Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
		if *called {
			t.Error("handler should not be called when auth header is missing")
		}

		var response ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if response.Error.Code != "AUTH_TOKEN_MISSING" {
			t.Errorf("expected error code AUTH_TOKEN_MISSING, got %s", response.Error.Code)
		}
		if response.Success {
			t.Error("success should be false")
		}
	})
}

// Feature: admin-auth, Property 4: Invalid Token Returns 401
// *For any* request with a malformed, foreign or non-bearer token, the
// system should return 401 and never reach the handler.
func TestProperty4_InvalidTokenReturns401(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		middleware := NewAuthMiddleware(newTestTokenService())
		handler, called := testHandler()

		invalidTokenType := rapid.IntRange(0, 4).Draw(t, "invalidTokenType")

		var authHeader string
		switch invalidTokenType {
		case 0:
			authHeader = "Bearer " + rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "randomToken")
		case 1:
			authHeader = rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "tokenWithoutBearer")
		case 2:
			authHeader = "Bearer "
		case 3:
			authHeader = "Basic " + rapid.StringMatching(`[a-zA-Z0-9]{20,50}`).Draw(t, "basicToken")
		case 4:
			wrongService := auth.NewTokenService(config.JWTConfig{
				AdminSecret: "wrong-secret-key-that-is-32char!",
				Issuer:      "test-issuer",
			})
			token, _ := wrongService.GenerateAdminToken(rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "operator"))
			authHeader = "Bearer " + token
		}

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		middleware.Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d for token type %d", rec.Code, invalidTokenType)
		}
		if *called {
			t.Errorf("handler should not be called for invalid token type %d", invalidTokenType)
		}

		var response ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if response.Error.Code != "AUTH_TOKEN_INVALID" && response.Error.Code != "AUTH_TOKEN_MISSING" {
			t.Errorf("unexpected error code %s", response.Error.Code)
		}
	})
}

func TestValidTokenPassesThrough(t *testing.T) {
	tokens := newTestTokenService()
	token, err := tokens.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	handler, called := testHandler()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	NewAuthMiddleware(tokens).Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("expected handler to run, got %d", rec.Code)
	}
	if rec.Body.String() != "ops" {
		t.Errorf("expected operator ops in context, got %q", rec.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		problem bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
	}
	for _, tt := range tests {
		token, problem := bearerToken(tt.header)
		if token != tt.token || (problem != "") != tt.problem {
			t.Errorf("bearerToken(%q) = %q, %q", tt.header, token, problem)
		}
	}
}

func TestUnauthorizedSetsChallenge(t *testing.T) {
	handler, called := testHandler()
	rec := httptest.NewRecorder()
	NewAuthMiddleware(newTestTokenService()).Authenticate(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	if *called {
		t.Fatal("handler should not run")
	}
	if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request inside the window should be refused")
	}
	if !rl.Allow("b") {
		t.Error("keys are limited independently")
	}
	if got := rl.Remaining("a"); got != 0 {
		t.Errorf("expected 0 remaining, got %d", got)
	}
	if got := rl.Reset("a"); !got.Equal(clock.Add(time.Minute)) {
		t.Errorf("unexpected reset %v", got)
	}

	clock = clock.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Error("request after the window should pass")
	}
	if got := rl.Remaining("a"); got != 1 {
		t.Errorf("expected 1 remaining, got %d", got)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := rl.Limit(ByOperator)(next)

	request := func(operator string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback/export/archive", nil)
		req = req.WithContext(context.WithValue(req.Context(), OperatorKey, operator))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := request("ops")
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "1" || first.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected headers %v", first.Header())
	}

	second := request("ops")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var response ErrorResponse
	if err := json.Unmarshal(second.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Error.Code != "TOO_MANY_REQUESTS" {
		t.Errorf("unexpected code %s", response.Error.Code)
	}

	if other := request("auditor"); other.Code != http.StatusNoContent {
		t.Errorf("other operator should pass, got %d", other.Code)
	}
}

func TestByOperator_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	if got := ByOperator(req); got != "ip:203.0.113.7:4000" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	var correlationID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID, _ = r.Context().Value(chimw.RequestIDKey).(string)
		w.WriteHeader(http.StatusBadRequest)
	})
	h := chimw.RequestID(StructuredLogger(log)(next))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/privacy/erase?email=john@example.com", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("expected a warning for 4xx, got %s", out)
	}
	if !strings.Contains(out, correlationID) || correlationID == "" {
		t.Errorf("expected correlation id %q in %s", correlationID, out)
	}
	if strings.Contains(out, "john@example.com") {
		t.Errorf("query string leaked into log: %s", out)
	}
}
