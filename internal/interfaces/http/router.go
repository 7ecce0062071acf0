package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/http/handlers"
	"github.com/jeffrey-bowles/uspto/internal/interfaces/http/middleware"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	PatentHandler *handlers.PatentHandler
	HealthHandler *handlers.HealthHandler

	// Middleware settings
	Server  config.ServerConfig
	Logging middleware.LoggingConfig

	// Infrastructure
	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string // default /metrics
	HTTPMetrics      *prometheus.HTTPMetrics
}

// NewRouter builds the gin engine: global middleware, probes, /metrics and
// the patent routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware, outermost first ---
	r.Use(middleware.RequestID())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			logging.Any("panic", recovered),
			logging.String("path", c.Request.URL.Path),
			logging.String("request_id", middleware.GetRequestID(c)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		})
	}))
	if len(cfg.Server.CORSOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = cfg.Server.CORSOrigins
		corsCfg.AllowWildcard = true
		r.Use(middleware.CORS(corsCfg))
	}
	logCfg := cfg.Logging
	if logCfg.SkipPaths == nil && logCfg.SlowThreshold == 0 {
		logCfg = middleware.DefaultLoggingConfig()
	}
	r.Use(middleware.RequestLogging(logger.Named("http"), logCfg, cfg.HTTPMetrics))
	if cfg.Server.RateLimit > 0 {
		rlCfg := middleware.DefaultRateLimitConfig()
		rlCfg.RequestsPerSecond = cfg.Server.RateLimit
		if cfg.Server.RateBurst > 0 {
			rlCfg.BurstSize = cfg.Server.RateBurst
		}
		limiter := middleware.NewKeyedLimiter(rlCfg.RequestsPerSecond, rlCfg.BurstSize, rlCfg.IdleTimeout)
		r.Use(middleware.RateLimit(limiter, rlCfg))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Code:    string(errors.ErrCodeNotFound),
			Message: errors.DefaultMessageForCode(errors.ErrCodeNotFound),
		})
	})

	// --- Probes and metrics ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- Read API ---
	if cfg.PatentHandler != nil {
		cfg.PatentHandler.RegisterRoutes(r)
	}

	return r
}
