package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", seen)
	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Request-Id"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", 65))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, seen, "oversized client id is replaced, not dropped")
	assert.NotEqual(t, strings.Repeat("x", 65), seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
}
