// Package middleware provides HTTP middleware for the ledger API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps the request ID copied onto spans
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// TracingWithConfig returns the otelgin server middleware. Identifiers are
// added to its span by SpanEnricher.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher copies request-scoped identifiers onto the active span and
// puts the party of /parties/:id routes on the logging context. It must run
// after both TracingWithConfig and logger.GinMiddleware.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyID := partyIDParam(c)
		if partyID != "" {
			c.Request = c.Request.WithContext(logger.WithPartyID(c.Request.Context(), partyID))
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := logger.GetRequestID(c.Request.Context()); requestID != "" {
				if len(requestID) > MaxRequestIDLength {
					requestID = requestID[:MaxRequestIDLength]
				}
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if partyID != "" {
				span.SetAttributes(attribute.String(telemetry.SpanAttrPartyID, partyID))
			}
		}
		c.Next()
	}
}

// partyIDParam returns the :id of /parties/:id routes when it is a valid UUID
func partyIDParam(c *gin.Context) string {
	id := c.Param("id")
	if id == "" || !isPartyRoute(c.FullPath()) {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func isPartyRoute(route string) bool {
	return extractControllerFromRoute(route) == "parties"
}

// SpanErrorMarker marks the span as failed for 5xx responses. 4xx responses
// are client errors and keep an unset status.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			msg := http.StatusText(status)
			if len(c.Errors) > 0 {
				msg = c.Errors.Last().Error()
			}
			span.SetStatus(codes.Error, msg)
		}
	}
}
