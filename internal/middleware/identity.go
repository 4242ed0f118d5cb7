// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

// OwnerIDKey is the context key for the caller's owner ID.
const OwnerIDKey ContextKey = "owner_id"

// UserIDHeader carries the caller identity when no bearer token is sent.
const UserIDHeader = "X-User-Id"

var errInvalidToken = errors.New("invalid token")

// Claims represents JWT claims. The subject is the owner ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Identity resolves the owner of each request. A bearer token is honoured
// when jwtSecret is set, otherwise the X-User-Id header is used, otherwise
// defaultOwner.
func Identity(jwtSecret string, defaultOwner uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ownerID := defaultOwner

			authHeader := r.Header.Get("Authorization")
			switch {
			case jwtSecret != "" && authHeader != "":
				claims, err := parseBearer(authHeader, jwtSecret)
				if err != nil {
					writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, err.Error(), nil)
					return
				}
				id, err := uuid.Parse(claims.Subject)
				if err != nil {
					writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "token subject is not a valid user ID", nil)
					return
				}
				ownerID = id

			case r.Header.Get(UserIDHeader) != "":
				id, err := ParseUserID(r.Header.Get(UserIDHeader))
				if err != nil {
					writeError(w, http.StatusUnprocessableEntity, model.CodeValidation, "Request validation failed",
						[]fieldError{{Field: UserIDHeader, Message: err.Error()}})
					return
				}
				ownerID = id
			}

			recordOwner(ctx, ownerID)
			ctx = context.WithValue(ctx, OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(header, secret string) (*Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errors.New("invalid authorization header format")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// GetOwnerID gets the owner ID from context.
func GetOwnerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(OwnerIDKey).(uuid.UUID)
	return id, ok
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.NewErrorResponse(code, message, details))
}
