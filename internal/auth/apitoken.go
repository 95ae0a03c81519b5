// Package auth guards mutating endpoints with a static API token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// HashToken computes the SHA-256 hex digest of a raw token. Configuration
// stores the hash so the raw token never lives in the environment of
// long-running processes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Middleware returns an HTTP middleware that requires
// "Authorization: Bearer <token>" where sha256(token) matches tokenHash.
// An empty tokenHash disables the check, for local development.
func Middleware(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || !tokenMatches(raw, tokenHash) {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(raw, tokenHash string) bool {
	sum := HashToken(raw)
	return subtle.ConstantTimeCompare([]byte(sum), []byte(tokenHash)) == 1
}
