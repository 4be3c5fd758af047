package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"uberfix/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	prod := config.Config{SecurityMode: config.SecurityModeProduction, APIToken: "s3cret"}

	cases := []struct {
		name   string
		cfg    config.Config
		header string
		status int
	}{
		{name: "development skips auth", cfg: config.Config{SecurityMode: config.SecurityModeDevelopment}, status: http.StatusOK},
		{name: "production without header", cfg: prod, status: http.StatusUnauthorized},
		{name: "production with wrong token", cfg: prod, header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "production without bearer prefix", cfg: prod, header: "s3cret", status: http.StatusUnauthorized},
		{name: "production with token", cfg: prod, header: "Bearer s3cret", status: http.StatusOK},
		{name: "production with empty configured token", cfg: config.Config{SecurityMode: config.SecurityModeProduction}, header: "Bearer ", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/stages", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(tc.cfg)(okHandler()).ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				require.JSONEq(t, `{"ok":false,"message":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limited := NewRateLimiter(0.001, 2).Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stages", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterDisabled(t *testing.T) {
	unlimited := NewRateLimiter(0, 0).Middleware(okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		unlimited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}
