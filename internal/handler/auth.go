package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// requireToken checks the bearer token against want. An empty want lets
// every request through.
func (h *Handler) requireToken(want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if want == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got == "" {
				slog.Warn("token missing", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "token missing")
				return
			}
			if len(got) != len(want) || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				slog.Warn("token mismatch", "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
