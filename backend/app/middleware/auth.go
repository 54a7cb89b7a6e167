package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"sitevault/protocol"
)

// Auth checks the shared access key on every request. The key travels in the
// X-Access-Key header, or in the "key" query parameter for endpoints fetched
// by plain download tools.
type Auth struct {
	// Key is the plaintext shared secret.
	Key string
	// KeyHash, when set, is a bcrypt hash checked instead of Key so the
	// config file never carries the secret itself.
	KeyHash string
}

func (a *Auth) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(protocol.AccessKeyHeader)
		if key == "" {
			key = r.URL.Query().Get("key")
		}
		if !a.valid(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "invalid access key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) valid(key string) bool {
	if key == "" {
		return false
	}
	if a.KeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.KeyHash), []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.Key), []byte(key)) == 1
}
