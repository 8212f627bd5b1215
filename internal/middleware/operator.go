package middleware

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// OperatorKey is the context key for the operator name attached to a request.
const OperatorKey contextKey = "operator"

// OperatorHeader names the operator performing a request. It is recorded on
// published sheets and payments, and is not an authentication mechanism.
const OperatorHeader = "X-Operator"

// GetOperator extracts the operator name from the context.
// Returns empty string if not found.
func GetOperator(ctx context.Context) string {
	operator, _ := ctx.Value(OperatorKey).(string)
	return operator
}

// WithOperator returns a copy of ctx carrying the operator name.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

// Operator copies the X-Operator header into the request context.
func Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if operator := strings.TrimSpace(r.Header.Get(OperatorHeader)); operator != "" {
			r = r.WithContext(WithOperator(r.Context(), operator))
		}
		next.ServeHTTP(w, r)
	})
}
