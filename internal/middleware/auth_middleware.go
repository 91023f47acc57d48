package middleware

import (
	"context"
	"net/http"
	"strings"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/pkg/jwt"
	"signage-fleet-server/pkg/response"
)

type contextKey string

const (
	OperatorKey contextKey = "operator"
	DeviceKey   contextKey = "device"
)

// AuthMiddleware admits management API callers bearing an operator token.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateOperatorToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			op := domain.Operator{
				UserID:    claims.UserID,
				CompanyID: claims.CompanyID,
				Role:      claims.Role,
			}
			ctx := context.WithValue(r.Context(), OperatorKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOperator(r *http.Request) (domain.Operator, bool) {
	op, ok := r.Context().Value(OperatorKey).(domain.Operator)
	return op, ok
}
