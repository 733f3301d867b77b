// internal/api/middleware.go
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coursio/internal/constants"
	"coursio/internal/models"
	"coursio/internal/storage"
)

// UserContextKey is the context key under which the authenticated user is
// stored for downstream handlers.
var UserContextKey = &contextKey{"User"}

type contextKey struct {
	name string
}

// IssueSessionToken builds a signed bearer token: base64(userID|expiry)
// followed by an HMAC-SHA256 signature over the payload.
func IssueSessionToken(secret, userID string, ttl time.Duration) string {
	payload := fmt.Sprintf("%s|%d", userID, time.Now().Add(ttl).Unix())
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + signPayload(secret, encoded)
}

func signPayload(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// parseSessionToken validates the signature and expiry and returns the user
// ID carried by the token.
func parseSessionToken(secret, token string) (string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed token")
	}
	expected := signPayload(secret, parts[0])
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return "", fmt.Errorf("invalid token signature")
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("malformed token payload: %w", err)
	}
	fields := strings.SplitN(string(raw), "|", 2)
	if len(fields) != 2 {
		return "", fmt.Errorf("malformed token payload")
	}
	expiry, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed token expiry: %w", err)
	}
	if time.Now().Unix() > expiry {
		return "", fmt.Errorf("token expired")
	}
	return fields[0], nil
}

// AuthMiddleware validates the Authorization bearer token and loads the
// account into the request context. Deleted accounts are rejected even with
// a valid token.
func AuthMiddleware(secret string, users storage.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" || token == authHeader {
				http.Error(w, "Unauthorized: Missing bearer token", http.StatusUnauthorized)
				return
			}

			userID, err := parseSessionToken(secret, token)
			if err != nil {
				log.Printf("AuthMiddleware: invalid session token: %v", err)
				http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
				return
			}

			user, err := users.UserByID(userID)
			if err != nil {
				log.Printf("AuthMiddleware: user %s not found: %v", userID, err)
				http.Error(w, "Unauthorized: User not found", http.StatusUnauthorized)
				return
			}
			if user.Status == constants.ACCOUNT_STATUS_DELETED {
				http.Error(w, "Unauthorized: Account deleted", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleMiddleware restricts a route group to the given roles. Admins pass
// everywhere.
func RoleMiddleware(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(UserContextKey).(models.User)
			if !ok {
				http.Error(w, "Forbidden: User data not found in context", http.StatusForbidden)
				return
			}

			if user.Role == constants.ROLE_ADMIN {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
		})
	}
}

// currentUser returns the authenticated user placed in the context by
// AuthMiddleware.
func currentUser(r *http.Request) (models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(models.User)
	return user, ok
}
