package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/test", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestCORSWithConfig(t *testing.T) {
	newRouter := func(cfg CORSConfig) *gin.Engine {
		router := gin.New()
		router.Use(CORSWithConfig(cfg))
		router.GET("/test", okHandler)
		return router
	}

	t.Run("default config sets no headers", func(t *testing.T) {
		w := corsRequest(newRouter(DefaultCORSConfig()), http.MethodGet, "https://evil.example")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("whitelisted origin with credentials", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://books.example"}
		cfg.AllowCredentials = true
		w := corsRequest(newRouter(cfg), http.MethodGet, "https://books.example")
		assert.Equal(t, "https://books.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		cfg.AllowCredentials = true
		w := corsRequest(newRouter(cfg), http.MethodGet, "https://any.example")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight is answered with 204", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://books.example"}
		w := corsRequest(newRouter(cfg), http.MethodOptions, "https://books.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")

		w = corsRequest(newRouter(cfg), http.MethodOptions, "https://other.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(Secure())
	router.GET("/test", okHandler)

	w := serve(router, http.MethodGet, "/test")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Security-Policy"), "default-src 'none'"))
}

func TestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(50 * time.Millisecond))
	var deadline time.Time
	var hasDeadline bool
	router.GET("/test", func(c *gin.Context) {
		deadline, hasDeadline = c.Request.Context().Deadline()
		<-c.Request.Context().Done()
		assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		c.Status(http.StatusGatewayTimeout)
	})

	w := serve(router, http.MethodGet, "/test")
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodyLimit(100))
	router.POST("/test", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string, declared bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		if !declared {
			req.ContentLength = -1
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, post(`{"a":1}`, true).Code)

	w := post(`{"a":"`+strings.Repeat("x", 200)+`"}`, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")

	// Without Content-Length the reader cuts the body off and binding fails
	assert.Equal(t, http.StatusBadRequest, post(`{"a":"`+strings.Repeat("x", 200)+`"}`, false).Code)
}
