package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"docshare/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "userID"

// UserID returns the caller identity stored by Identity, or "".
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// Identity resolves the caller and stores it in the request context.
//
// With a non-empty secret an HMAC-signed bearer token is required and its "sub" claim
// is the caller. The token may come from the "token" query parameter because the
// browser WebSocket API cannot set headers. Without a secret the "userId" query
// parameter is trusted as is; that mode is for local development only.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if secret == "" {
				userID = strings.TrimSpace(r.URL.Query().Get("userId"))
			} else {
				var err error
				userID, err = subjectFromRequest(r, secret)
				if err != nil {
					logger.Sugar.Infof("Invalid token: %v", err)
					http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
					return
				}
			}

			if userID == "" {
				http.Error(w, "Unauthorized: No user identity provided", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func subjectFromRequest(r *http.Request, secret string) (string, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		authHeader := r.Header.Get("Authorization")
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if tokenString == "" {
		return "", fmt.Errorf("no token provided")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("parse token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("user ID (sub) claim is missing or invalid")
	}
	return sub, nil
}
