package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/ledgerbook/backend/internal/infrastructure/lock"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/memory"
	"github.com/ledgerbook/backend/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("bills", "/bills")
		assert.Equal(t, "bills", g.Name())
		assert.Equal(t, "/bills", g.Prefix())
		assert.Zero(t, g.Len())
	})

	t.Run("registers methods", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g.GET("/items", ok).POST("/items", ok).DELETE("/items/:id", ok)
		assert.Equal(t, 3, g.Len())
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/v1/test/items"},
			{http.MethodPost, "/api/v1/test/items"},
			{http.MethodDelete, "/api/v1/test/items/1"},
		} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusOK, w.Code, tc.method)
			assert.Equal(t, tc.method, w.Body.String())
		}
	})

	t.Run("group middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test").Use(func(c *gin.Context) {
			c.Header("X-Group", "test")
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/items", nil))
		assert.Equal(t, "test", w.Header().Get("X-Group"))
	})
}

func newTestEngine(t *testing.T, httpCfg config.HTTPConfig) *gin.Engine {
	t.Helper()
	store := memory.New()
	payments := ledgerapp.NewPaymentService(store, store, lock.NewLocalPartyLocker(time.Second), zap.NewNop())
	bills := ledgerapp.NewBillService(store, payments, zap.NewNop())
	reports := ledgerapp.NewReportService(store, zap.NewNop())

	engine, stop, err := NewEngine(Options{
		Logger:         zap.NewNop(),
		HTTP:           httpCfg,
		ServiceName:    "ledgerbook-test",
		RequestTimeout: 5 * time.Second,
		NewRequestID:   func() string { return "req-fixed" },
	}, Handlers{
		Parties:  handler.NewPartyHandler(bills, payments, reports),
		Bills:    handler.NewBillHandler(bills),
		Payments: handler.NewPaymentHandler(payments),
		Reports:  handler.NewReportHandler(reports),
		System:   handler.NewSystemHandler(nil, "test"),
	})
	require.NoError(t, err)
	t.Cleanup(stop)
	return engine
}

func TestNewEngine_RegistersLedgerRoutes(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 1 << 20})

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /api/v1/system/health",
		"POST /api/v1/parties",
		"GET /api/v1/parties/:id/advance",
		"GET /api/v1/parties/:id/payments",
		"POST /api/v1/bills",
		"GET /api/v1/bills/:id/outstanding",
		"POST /api/v1/payments",
		"POST /api/v1/payments/preview",
		"DELETE /api/v1/payments/:id",
		"POST /api/v1/payments/:id/refund",
		"POST /api/v1/advances/apply",
		"GET /api/v1/receipt-numbers/next",
		"GET /api/v1/reports/party-summary",
		"GET /api/v1/reports/aging",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestNewEngine_Middleware(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 1 << 20})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-fixed", w.Header().Get(logger.RequestIDHeader))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestNewEngine_CreatePartyEndToEnd(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 1 << 20})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parties", strings.NewReader(`{"name":"Gupta & Sons","kind":"supplier"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			DisplayName string `json:"display_name"`
			Kind        string `json:"kind"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Gupta & Sons", resp.Data.DisplayName)
	assert.Equal(t, "supplier", resp.Data.Kind)
}

func TestNewEngine_BodyLimit(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{MaxBodySize: 16})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parties", strings.NewReader(`{"name":"a party name that is too long for the limit"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNewEngine_RateLimit(t *testing.T) {
	engine := newTestEngine(t, config.HTTPConfig{RateLimit: 2, RateLimitWindow: time.Minute})

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/parties", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
