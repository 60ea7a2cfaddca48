package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/infrastructure/config"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/interfaces/http/handler"
	"github.com/ledgerbook/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers served by the engine
type Handlers struct {
	Parties  *handler.PartyHandler
	Bills    *handler.BillHandler
	Payments *handler.PaymentHandler
	Reports  *handler.ReportHandler
	System   *handler.SystemHandler
}

// Options configures NewEngine
type Options struct {
	Logger      *zap.Logger
	HTTP        config.HTTPConfig
	ServiceName string
	Tracing     bool
	// Meter enables HTTP metrics when set
	Meter          metric.Meter
	Profiling      bool
	RequestTimeout time.Duration
	// NewRequestID generates request IDs; defaults to uuid.NewString
	NewRequestID func() string
}

// NewEngine builds the gin engine with the middleware stack and every route.
// The returned stop function releases background resources such as the rate
// limiter's cleanup loop.
func NewEngine(opts Options, h Handlers) (*gin.Engine, func(), error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	newID := opts.NewRequestID
	if newID == nil {
		newID = uuid.NewString
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, nil, fmt.Errorf("failed to register validators: %w", err)
	}

	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: tracing opens the span the logger and metrics read, and
	// the request ID must exist before anything logs.
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: opts.ServiceName,
		Enabled:     opts.Tracing,
	}))
	engine.Use(logger.GinMiddleware(log, newID))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.SpanErrorMarker())
	if opts.Meter != nil {
		httpMetrics, err := middleware.HTTPMetrics(opts.Meter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		engine.Use(httpMetrics)
	}
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = opts.Profiling
	engine.Use(middleware.ProfilingWithConfig(profiling))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(corsConfig(opts.HTTP)))
	if opts.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	}

	stop := func() {}
	if opts.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(opts.HTTP.RateLimit, opts.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
		stop = limiter.Stop
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimit),
			zap.Duration("window", opts.HTTP.RateLimitWindow),
		)
	}
	if opts.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if h.System != nil {
		engine.GET("/health", h.System.Health)
		r.Register(SystemRoutes(h.System))
	}
	r.Register(LedgerRoutes(h)...)
	r.Setup()

	return engine, stop, nil
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	cors.ExposeHeaders = []string{logger.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	return cors
}
