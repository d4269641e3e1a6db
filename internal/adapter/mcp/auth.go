package mcp

import (
	"net/http"
	"strings"
)

// AuthMiddleware guards the MCP listener with a static key. An empty key
// disables the check so local setups can run open. Clients may send
// either "Authorization: Bearer <key>" or the bare key.
func AuthMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			key = header
		}
		if key != apiKey {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
