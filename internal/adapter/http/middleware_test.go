package http

import (
	"bufio"
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"X-XSS-Protection":       "0",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	w := httptest.NewRecorder()
	CORS("https://app.example.com")(next).ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/reviews", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if called {
		t.Error("preflight reached the inner handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization, Last-Event-ID" {
		t.Errorf("allow-headers = %q", got)
	}
}

func TestCORSPassesThroughNonPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	CORS("*")(next).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if !called || w.Code != http.StatusTeapot {
		t.Fatalf("called=%v status=%d, want handler to run", called, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(old)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	w := httptest.NewRecorder()
	Logger(next).ServeHTTP(w, httptest.NewRequest("GET", "/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("status=404")) {
		t.Errorf("log line missing status: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("path=/missing")) {
		t.Errorf("log line missing path: %s", buf.String())
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	if rw.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d/%d, want 418", rw.status, rec.Code)
	}
}

func TestResponseWriterFlushDelegates(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.Flush()
	if !rec.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
}

// bareWriter implements only the core ResponseWriter methods.
type bareWriter struct {
	header http.Header
}

func (b *bareWriter) Header() http.Header         { return b.header }
func (b *bareWriter) Write(p []byte) (int, error) { return len(p), nil }
func (b *bareWriter) WriteHeader(int)             {}

func TestResponseWriterFlushWithoutFlusher(t *testing.T) {
	rw := &responseWriter{ResponseWriter: &bareWriter{header: http.Header{}}, status: http.StatusOK}
	rw.Flush() // must not panic
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: &bareWriter{header: http.Header{}}, status: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Fatal("expected an error from Hijack on a plain writer")
	}
}

var errHijacked = errors.New("hijacked")

type hijackWriter struct {
	bareWriter
	called bool
}

func (h *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.called = true
	return nil, nil, errHijacked
}

func TestResponseWriterHijackDelegates(t *testing.T) {
	hw := &hijackWriter{bareWriter: bareWriter{header: http.Header{}}}
	rw := &responseWriter{ResponseWriter: hw, status: http.StatusOK}

	_, _, err := rw.Hijack()
	if !hw.called {
		t.Fatal("hijack did not reach the underlying writer")
	}
	if !errors.Is(err, errHijacked) {
		t.Fatalf("err = %v, want errHijacked", err)
	}
}
