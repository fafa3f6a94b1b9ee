package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSOriginHandling(t *testing.T) {
	tests := []struct {
		name      string
		origins   []string
		origin    string
		wantAllow string
	}{
		{"empty list allows any origin", nil, "https://app.example.com", "https://app.example.com"},
		{"wildcard allows any origin", []string{"*"}, "https://app.example.com", "https://app.example.com"},
		{"listed origin allowed", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"case-insensitive match", []string{"https://App.Example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin gets no header", []string{"https://app.example.com"}, "https://evil.example.com", ""},
		{"no origin header gets no header", []string{"https://app.example.com"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORS(tt.origins)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()

	CORS(nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called, "preflight must not reach the next handler")
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
