// Package middleware provides HTTP middleware for operator authentication.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// operatorKey is the context key for storing the authenticated operator.
const operatorKey ContextKey = "operator"

// TokenValidator validates a bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (OperatorGetter, error)
}

// OperatorGetter extracts the operator name from token claims.
type OperatorGetter interface {
	GetOperator() string
}

// RequireOperator rejects requests without a valid operator bearer token and
// adds the operator name to the request context.
func RequireOperator(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil || claims.GetOperator() == "" {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.GetOperator())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken parses "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], parts[1] != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unauthorized"})
}

// GetOperator extracts the authenticated operator from the request context.
func GetOperator(r *http.Request) (string, error) {
	op, ok := r.Context().Value(operatorKey).(string)
	if !ok || op == "" {
		return "", fmt.Errorf("operator not found in request context")
	}
	return op, nil
}
