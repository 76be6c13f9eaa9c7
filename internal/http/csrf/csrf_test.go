package csrf

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jw6ventures/bookings/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(TokenFromContext(r.Context())))
	})
}

func issuedToken(t *testing.T) string {
	t.Helper()
	tok, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}
	return tok
}

func TestMiddlewareIssuesTokenOnSafeRequest(t *testing.T) {
	h := Middleware(&config.Config{BaseURL: "http://localhost:8080"})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != csrfCookieName {
		t.Fatalf("expected csrf cookie, got %+v", cookies)
	}
	if cookies[0].Secure {
		t.Fatal("cookie should not be Secure for http base URL")
	}
	if rec.Body.String() != cookies[0].Value {
		t.Fatal("token in context should match cookie")
	}
}

func TestMiddlewareReplacesMalformedCookie(t *testing.T) {
	h := Middleware(&config.Config{BaseURL: "https://bookings.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/availability", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "tok" {
		t.Fatalf("expected a fresh token cookie, got %+v", cookies)
	}
	if !cookies[0].Secure {
		t.Fatal("cookie should be Secure for https base URL")
	}
}

func TestMiddlewareRejectsMissingOrWrongToken(t *testing.T) {
	h := Middleware(&config.Config{BaseURL: "https://bookings.example.com"})(okHandler())
	tok := issuedToken(t)

	for name, provided := range map[string]string{"missing": "", "wrong": issuedToken(t)} {
		t.Run(name, func(t *testing.T) {
			form := url.Values{FieldName: {provided}}
			req := httptest.NewRequest(http.MethodPost, "/availability/1", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rec.Code)
			}
		})
	}
}

func TestMiddlewareAnswersAPIWithJSON(t *testing.T) {
	h := Middleware(&config.Config{BaseURL: "https://bookings.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/apps/toggle", strings.NewReader(`{"_csrf":"ignored"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: issuedToken(t)})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON error, got content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestMiddlewareAcceptsHeaderOrFormToken(t *testing.T) {
	h := Middleware(&config.Config{BaseURL: "https://bookings.example.com"})(okHandler())
	tok := issuedToken(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/apps/toggle", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok})
	req.Header.Set(HeaderName, tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("header token: expected 200, got %d", rec.Code)
	}

	form := url.Values{FieldName: {tok}}
	req = httptest.NewRequest(http.MethodPost, "/availability/1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("form token: expected 200, got %d", rec.Code)
	}
}
