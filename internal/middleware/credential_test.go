package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tutoring-chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
	}{
		{"none", func(r *http.Request) {}, ""},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"scheme is case insensitive", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"query parameter", func(r *http.Request) { r.URL.RawQuery = "token=from-query" }, "from-query"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"}) }, "from-cookie"},
		{"header wins over query and cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer from-header")
			r.URL.RawQuery = "token=from-query"
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"})
		}, "from-header"},
		{"query wins over cookie", func(r *http.Request) {
			r.URL.RawQuery = "token=from-query"
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"})
		}, "from-query"},
		{"other scheme falls through", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			r.URL.RawQuery = "token=from-query"
		}, "from-query"},
		{"empty bearer falls through", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer  ")
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "from-cookie"})
		}, "from-cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.prepare(r)
			assert.Equal(t, tt.want, ExtractCredential(r))
		})
	}
}

func TestRequireCredential(t *testing.T) {
	var seen string
	handler := RequireCredential()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetCredential(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

		require.Equal(t, http.StatusUnauthorized, rr.Code)
		var body domain.ErrorPayload
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.Equal(t, domain.ReasonInvalidCredential, body.Reason)
	})

	t.Run("present", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws?token=tok", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "tok", seen)
	})
}

func TestGetCredential(t *testing.T) {
	_, ok := GetCredential(context.Background())
	assert.False(t, ok)

	got, ok := GetCredential(WithCredential(context.Background(), "tok"))
	assert.True(t, ok)
	assert.Equal(t, "tok", got)

	_, ok = GetCredential(context.WithValue(context.Background(), CredentialKey, 42))
	assert.False(t, ok, "wrong type")
}
