package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/auth"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
)

type fakeValidator struct {
	valid map[string]auth.Identity
	err   error
}

func (f fakeValidator) Validate(ctx context.Context, raw string) (*auth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id, ok := f.valid[raw]; ok {
		return &id, nil
	}
	return nil, fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)
}

func newRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", JWTRequired(v, logger.NewNop()), func(c *gin.Context) {
		user, ok := GetUserFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": user.Username, "token": GetTokenFromContext(c)})
	})
	return r
}

func TestJWTRequired(t *testing.T) {
	v := fakeValidator{valid: map[string]auth.Identity{"good": {UserID: 1, Username: "admin"}}}
	router := newRouter(v)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
	}

	var unauthorizedBody string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"username":"admin","token":"good"}`, w.Body.String())
				return
			}
			// Every rejection looks the same to the caller.
			if unauthorizedBody == "" {
				unauthorizedBody = w.Body.String()
			}
			assert.Equal(t, unauthorizedBody, w.Body.String())
		})
	}
}

func TestJWTRequired_StoreFailure(t *testing.T) {
	router := newRouter(fakeValidator{err: apperr.Wrap(apperr.ErrPersistence, errors.New("redis down"), "check")})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewNop()
	r := gin.New()
	r.Use(Metrics(m), RequestLogger(logger.NewNop()))
	r.GET("/api/session/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/session/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/session/:id", "GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "GET", "404")))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/api/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
