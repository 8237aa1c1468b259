package middleware

import (
	"context"
	"net/http"
	"strings"

	"tutoring-chat/internal/domain"
)

type contextKey string

const (
	CredentialKey contextKey = "credential"

	// TokenQueryParam and TokenCookie are the fallbacks for browsers, which
	// cannot set headers on a websocket upgrade.
	TokenQueryParam = "token"
	TokenCookie     = "access_token"
)

// ExtractCredential returns the bearer credential of r, looking at the
// Authorization header, then the token query parameter, then the
// access_token cookie.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// RequireCredential rejects requests without a credential before they reach
// next. Verification is left to the handler.
func RequireCredential() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := ExtractCredential(r)
			if credential == "" {
				WriteError(w, http.StatusUnauthorized, domain.ErrInvalidCredential)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCredential(r.Context(), credential)))
		})
	}
}

func GetCredential(ctx context.Context) (string, bool) {
	credential, ok := ctx.Value(CredentialKey).(string)
	return credential, ok
}

func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, CredentialKey, credential)
}
