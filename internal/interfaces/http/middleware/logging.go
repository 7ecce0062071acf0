package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const ctxRequestID = "request_id"

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged. Their metrics are still recorded.
	SkipPaths []string
	// SlowThreshold is the duration above which a request is logged as slow.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the probe endpoints.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// RequestLogging logs every finished request and records its metrics.
// metrics may be nil.
func RequestLogging(logger logging.Logger, config LoggingConfig, metrics *prometheus.HTTPMetrics) gin.HandlerFunc {
	skipSet := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipSet[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		if metrics != nil {
			metrics.ActiveRequests.WithLabelValues().Inc()
			defer metrics.ActiveRequests.WithLabelValues().Dec()
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		// The route template keeps the label set bounded.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if metrics != nil {
			metrics.RecordRequest(c.Request.Method, route, status, duration)
		}
		if skipSet[c.Request.URL.Path] {
			return
		}

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.String("query", c.Request.URL.RawQuery),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("HTTP request completed with server error", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("HTTP request completed with client error", fields...)
		case config.SlowThreshold > 0 && duration >= config.SlowThreshold:
			logger.Warn("HTTP request completed (slow)", fields...)
		default:
			logger.Info("HTTP request completed", fields...)
		}
	}
}
