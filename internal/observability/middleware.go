package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// maxRequestIDLength bounds caller supplied IDs; they end up in the audit log.
const maxRequestIDLength = 128

// acceptRequestID reports whether a caller supplied ID may be reused.
func acceptRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// routeLabel keeps unmatched paths from creating a metric series each.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// RequestLoggingMiddleware gives every request an ID, logs its completion
// and records HTTP metrics.
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if !acceptRequestID(requestID) {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		// The auth middleware replaces the request context further down the
		// chain, so re-read it for the principal.
		ctx := c.Request.Context()
		fields := map[string]interface{}{
			"method":        c.Request.Method,
			"route":         routeLabel(c),
			"path":          c.Request.URL.Path,
			"status":        status,
			"duration_ms":   duration.Milliseconds(),
			"response_size": c.Writer.Size(),
			"ip":            c.ClientIP(),
		}

		switch {
		case len(c.Errors) > 0:
			logger.Error(ctx, "HTTP request failed", c.Errors.Last().Err, fields)
		case status >= 500:
			logger.Error(ctx, "HTTP request completed with server error", nil, fields)
		case status >= 400:
			logger.Warn(ctx, "HTTP request completed with error status", fields)
		default:
			logger.Info(ctx, "HTTP request completed", fields)
		}

		RecordHTTPMetrics(c.Request.Method, routeLabel(c), status, duration)
	}
}

// RecoveryMiddleware turns a panic into a 500 carrying the request ID.
func RecoveryMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "Panic recovered", nil, map[string]interface{}{
				"panic":  rec,
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":       "INTERNAL_ERROR",
					"message":    "An unexpected error occurred",
					"request_id": GetRequestID(c.Request.Context()),
				},
			})
		}()

		c.Next()
	}
}

// HealthHandler answers 503 only when unhealthy. Degraded still answers 200
// because the fallback path keeps searches working.
func HealthHandler(checker *HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := checker.GetHealthResponse(c.Request.Context())
		if response.Status == HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

// MetricsHandler exposes the Prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// CORSWithLogging allows browser clients to call the search API and logs
// preflights at debug level.
func CORSWithLogging(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+RequestIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader)

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if origin := c.GetHeader("Origin"); origin != "" {
			logger.Debug(c.Request.Context(), "CORS preflight request", map[string]interface{}{
				"origin": origin,
				"method": c.GetHeader("Access-Control-Request-Method"),
			})
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
