// Package csrf guards the editor forms and the viewer and admin JSON APIs
// with a double-submit token.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/jw6ventures/bookings/internal/config"
	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
)

type contextKey struct{}

const (
	csrfCookieName = "booking_csrf"
	// HeaderName carries the token on JSON requests.
	HeaderName = "X-CSRF-Token"
	// FieldName carries the token on form posts.
	FieldName = "_csrf"

	tokenBytes = 32
)

// Middleware issues the token cookie and checks it on mutating requests.
// Form posts send it in FieldName; API clients echo it in HeaderName and
// receive JSON errors.
func Middleware(cfg *config.Config) func(http.Handler) http.Handler {
	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := cookieToken(r)
			if !ok {
				var err error
				token, err = generateToken()
				if err != nil {
					fail(w, r, httperrors.Internal("failed to issue csrf token", err))
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if isStateChanging(r.Method) && !matches(submitted(r), token) {
				fail(w, r, httperrors.Forbidden("invalid csrf token"))
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the CSRF token associated with the request.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

// cookieToken returns the cookie token when it has the shape this package
// issues. Anything else is replaced with a fresh token.
func cookieToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(csrfCookieName)
	if err != nil {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil || len(raw) != tokenBytes {
		return "", false
	}
	return c.Value, true
}

func submitted(r *http.Request) string {
	if v := r.Header.Get(HeaderName); v != "" {
		return v
	}
	if isForm(r) {
		return r.PostFormValue(FieldName)
	}
	return ""
}

func matches(provided, token string) bool {
	return provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}

func fail(w http.ResponseWriter, r *http.Request, err *httperrors.Error) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httperrors.WriteJSON(w, r, err)
		return
	}
	if err.Cause != nil {
		httperrors.LogError(r, err.Message, err.Cause)
	}
	http.Error(w, err.Message, err.HTTPStatus())
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
