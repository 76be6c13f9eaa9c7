package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jw6ventures/bookings/internal/auth"
	"github.com/jw6ventures/bookings/internal/config"
)

type fakeHealth struct {
	err error
}

func (f fakeHealth) HealthCheck(ctx context.Context) error { return f.err }

func newTestRouter(t *testing.T, cfg *config.Config, health error) *Router {
	t.Helper()
	router := NewRouter(cfg, Services{Health: fakeHealth{err: health}, Auth: &auth.Service{}})
	t.Cleanup(router.Stop)
	return router
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		healthErr error
		want      int
	}{
		{name: "liveness", path: "/healthz", want: http.StatusOK},
		{name: "ready", path: "/readyz", want: http.StatusOK},
		{name: "database down", path: "/readyz", healthErr: errors.New("dial tcp: refused"), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &config.Config{}, tt.healthErr)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpointFollowsConfig(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		router := newTestRouter(t, &config.Config{PrometheusEnabled: enabled}, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if enabled && w.Code != http.StatusOK {
			t.Errorf("metrics enabled: status = %d, want 200", w.Code)
		}
		if !enabled && w.Code != http.StatusNotFound {
			t.Errorf("metrics disabled: status = %d, want 404", w.Code)
		}
	}
}

func TestOverrideMethod(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		form   url.Values
		want   string
	}{
		{name: "form field", method: http.MethodPost, target: "/", form: url.Values{"_method": {"delete"}}, want: http.MethodDelete},
		{name: "query parameter", method: http.MethodPost, target: "/?_method=PUT", want: http.MethodPut},
		{name: "unsupported override", method: http.MethodPost, target: "/?_method=PATCH", want: http.MethodPost},
		{name: "only on post", method: http.MethodGet, target: "/?_method=DELETE", want: http.MethodGet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := overrideMethod(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Method
			}))
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.form.Encode()))
			if tt.form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("method = %s, want %s", got, tt.want)
			}
		})
	}
}
