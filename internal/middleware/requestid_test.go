package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/logger"
)

func TestRequestID_Generated(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	respID := rec.Header().Get("X-Request-ID")
	if respID == "" {
		t.Fatal("expected X-Request-ID on the response")
	}
	if _, err := uuid.Parse(respID); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", respID, err)
	}
	if ctxID != respID {
		t.Errorf("context id %q, response id %q", ctxID, respID)
	}
}

func TestRequestID_CallerSupplied(t *testing.T) {
	const supplied = "trace-7f3a"

	var ctxID string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-ID", supplied)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ctxID != supplied {
		t.Errorf("context id = %q, want %q", ctxID, supplied)
	}
	if got := rec.Header().Get("X-Request-ID"); got != supplied {
		t.Errorf("response id = %q, want %q", got, supplied)
	}
}
