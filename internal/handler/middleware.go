package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"guardian-service/internal/util"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserID returns the authenticated user id attached by BearerAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// BearerAuth validates "Bearer <userID>:<signature>" tokens, where the
// signature is hex HMAC-SHA256 of the user id under the signing secret.
// An empty secret disables the surface entirely rather than leaving it
// open.
func BearerAuth(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signingSecret == "" {
				respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication not configured"})
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}

			userID, signature, ok := strings.Cut(token, ":")
			if !ok || userID == "" {
				respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "malformed bearer token"})
				return
			}

			mac := hmac.New(sha256.New, []byte(signingSecret))
			mac.Write([]byte(userID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(signature), []byte(expected)) {
				util.Warn("Rejected bearer token", zap.String("user_id", userID))
				respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid bearer token"})
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerMiddleware logs every request with its status and duration.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
