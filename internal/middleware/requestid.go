// Package middleware provides HTTP middleware for Redline.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an ID for log correlation. A caller
// may supply one via X-Request-ID; otherwise a fresh UUID is issued. The
// ID travels in the request context and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
