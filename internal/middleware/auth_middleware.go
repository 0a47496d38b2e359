package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/welldanyogia/feedback-forms/internal/auth"
)

// ContextKey keys values this package stores in a request context
type ContextKey string

// OperatorKey is the context key for the authenticated operator
const OperatorKey ContextKey = "operator"

// ErrorResponse is the error envelope shared with the api package
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// AdminTokenValidator validates admin bearer tokens
type AdminTokenValidator interface {
	ValidateAdminToken(token string) (*auth.Claims, error)
}

// AuthMiddleware guards admin routes with an admin bearer token
type AuthMiddleware struct {
	tokens AdminTokenValidator
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokens AdminTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate requires a valid admin bearer token and stores the token's
// operator in the request context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, problem := bearerToken(r.Header.Get("Authorization"))
		if problem != "" {
			code := "AUTH_TOKEN_INVALID"
			if problem == errHeaderMissing {
				code = "AUTH_TOKEN_MISSING"
			}
			unauthorized(w, code, problem)
			return
		}

		claims, err := m.tokens.ValidateAdminToken(token)
		if err != nil {
			unauthorized(w, "AUTH_TOKEN_INVALID", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), OperatorKey, claims.Operator())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

const errHeaderMissing = "Authorization header is required"

// bearerToken extracts the token from an Authorization header value. The
// second result describes what is wrong with the header, if anything.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", errHeaderMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "Token is empty"
	}
	return token, ""
}

func unauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="feedback-admin"`)
	writeError(w, http.StatusUnauthorized, code, message, nil)
}

// ExtractOperator extracts the operator from the request context
func ExtractOperator(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(OperatorKey).(string)
	return operator, ok
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message, Details: details},
		Timestamp: time.Now().UTC(),
	})
}
