package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signUser(userID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID))
	return userID + ":" + hex.EncodeToString(mac.Sum(nil))
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-signing-secret"

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantUser   string
	}{
		{
			"valid token",
			secret,
			"Bearer " + signUser("user-1", secret),
			http.StatusOK,
			"user-1",
		},
		{
			"missing header",
			secret,
			"",
			http.StatusUnauthorized,
			"",
		},
		{
			"not a bearer scheme",
			secret,
			"Basic dXNlcjpwYXNz",
			http.StatusUnauthorized,
			"",
		},
		{
			"missing signature",
			secret,
			"Bearer user-1",
			http.StatusUnauthorized,
			"",
		},
		{
			"signature for another user",
			secret,
			"Bearer user-2:" + signUser("user-1", secret)[len("user-1")+1:],
			http.StatusUnauthorized,
			"",
		},
		{
			"signed with wrong secret",
			secret,
			"Bearer " + signUser("user-1", "other-secret"),
			http.StatusUnauthorized,
			"",
		},
		{
			"auth not configured",
			"",
			"Bearer " + signUser("user-1", secret),
			http.StatusUnauthorized,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/user-info", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			BearerAuth(tt.secret)(next).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			}
		})
	}
}
