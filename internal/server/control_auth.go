package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/me/pmcore/pkg/model"
)

// ControlKeyHeader carries the key for mutating calls.
const ControlKeyHeader = "X-Control-Key"

// hashKey creates a short hash of the key for logging purposes.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8])
}

// controlAuthMiddleware checks the X-Control-Key header on calls that change
// kernel state. With no key configured every caller is allowed.
func controlAuthMiddleware(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqID := RequestIDFromContext(r.Context())

			got := r.Header.Get(ControlKeyHeader)
			if got == "" {
				respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
					Code:    model.ErrUnauthorized,
					Message: "control key required (" + ControlKeyHeader + " header missing)",
				})
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				logger.Warn("invalid control key", "key_hash", hashKey(got), "path", r.URL.Path)
				respondError(w, reqID, http.StatusUnauthorized, &model.APIError{
					Code:    model.ErrUnauthorized,
					Message: "invalid control key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
