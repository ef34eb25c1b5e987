// internal/auth/middleware.go
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
)

const principalKey = "principal"

// Middleware authenticates requests with a bearer token or an X-API-Key
// header, then applies the per-client rate limit. The authenticated
// principal is stored on the gin context and on the request context.
func (a *Authenticator) Middleware(limiter *RateLimiter, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if shouldSkipAuth(c.Request.URL.Path) {
			c.Next()
			return
		}

		principal, err := a.authenticateRequest(c)
		if err != nil {
			logger.Warn(c.Request.Context(), "Authentication failed", map[string]interface{}{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
				"error":     err.Error(),
			})
			abortWithError(c, http.StatusUnauthorized, err)
			return
		}

		if limiter != nil && !limiter.Allow(clientID(c, principal)) {
			observability.RecordAuthAttempt(principal.Method, "rate_limited")
			abortWithError(c, http.StatusTooManyRequests, apperrors.NewRateLimitedError(limiter.Limit()))
			return
		}

		c.Set(principalKey, principal)
		ctx := observability.WithPrincipal(c.Request.Context(), principal.Name)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// authenticateRequest tries a bearer token, then an API key, then anonymous
// access when allowed. Presented but invalid credentials never fall through
// to anonymous access.
func (a *Authenticator) authenticateRequest(c *gin.Context) (Principal, *apperrors.EnhancedError) {
	if !a.config.Enabled {
		return Principal{Name: MethodAnonymous, Method: MethodAnonymous}, nil
	}

	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := bearerToken(header)
		if !ok {
			observability.RecordAuthAttempt(MethodJWT, "malformed")
			return Principal{}, apperrors.NewInvalidTokenError(nil).
				WithDetails("Authorization header must be 'Bearer <token>'")
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			observability.RecordAuthAttempt(MethodJWT, "invalid")
			return Principal{}, apperrors.NewInvalidTokenError(err)
		}
		observability.RecordAuthAttempt(MethodJWT, "success")
		return Principal{Name: claims.Subject, Method: MethodJWT}, nil
	}

	if key := c.GetHeader("X-API-Key"); key != "" {
		principal, err := a.ValidateAPIKey(key)
		if err != nil {
			observability.RecordAuthAttempt(MethodAPIKey, "invalid")
			return Principal{}, apperrors.NewInvalidTokenError(err).
				WithDetails("The API key was not recognised")
		}
		observability.RecordAuthAttempt(MethodAPIKey, "success")
		return principal, nil
	}

	if a.config.AllowAnonymous {
		observability.RecordAuthAttempt(MethodAnonymous, "success")
		return Principal{Name: MethodAnonymous, Method: MethodAnonymous}, nil
	}

	observability.RecordAuthAttempt("none", "missing")
	return Principal{}, apperrors.NewNotAuthenticatedError()
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortWithError(c *gin.Context, status int, err *apperrors.EnhancedError) {
	c.AbortWithStatusJSON(status, gin.H{"error": err})
}

// shouldSkipAuth checks if a path should skip authentication
func shouldSkipAuth(path string) bool {
	switch path {
	case "/health", "/metrics", "/api/v1/auth/token":
		return true
	}
	return false
}

// clientID keys the rate limiter. Anonymous callers share a bucket per IP.
func clientID(c *gin.Context, principal Principal) string {
	if principal.Method == MethodAnonymous {
		return "ip:" + c.ClientIP()
	}
	return principal.Method + ":" + principal.Name
}

// CurrentPrincipal returns the authenticated principal from context
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}
