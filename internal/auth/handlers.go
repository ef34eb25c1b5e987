// internal/auth/handlers.go
package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

// Handlers provides HTTP handlers for authentication endpoints
type Handlers struct {
	authenticator *Authenticator
	limiter       *RateLimiter
}

// NewHandlers creates new auth handlers
func NewHandlers(authenticator *Authenticator, limiter *RateLimiter) *Handlers {
	return &Handlers{
		authenticator: authenticator,
		limiter:       limiter,
	}
}

// SetupRoutes registers the auth routes on a group that already runs Middleware.
func (h *Handlers) SetupRoutes(r *gin.RouterGroup) {
	r.POST("/auth/token", h.IssueToken)
	r.GET("/auth/status", h.Status)
}

// TokenRequest exchanges an API key for a bearer token. The key may also be
// sent in the X-API-Key header.
type TokenRequest struct {
	APIKey string `json:"api_key"`
}

// TokenResponse represents a token response
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal string    `json:"principal"`
}

// IssueToken handles POST /auth/token
func (h *Handlers) IssueToken(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow("token:"+c.ClientIP()) {
		abortWithError(c, http.StatusTooManyRequests, apperrors.NewRateLimitedError(h.limiter.Limit()))
		return
	}

	if !h.authenticator.CanIssueTokens() {
		abortWithError(c, http.StatusNotImplemented, apperrors.New(apperrors.ErrCodeNotAuthenticated, "Token issuance is disabled").
			WithSuggestion("Send the API key in the 'X-API-Key' header instead."))
		return
	}

	key := c.GetHeader("X-API-Key")
	if key == "" {
		var req TokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, apperrors.NewInvalidInputError("api_key", err.Error()))
			return
		}
		key = req.APIKey
	}
	if key == "" {
		abortWithError(c, http.StatusBadRequest, apperrors.NewInvalidInputError("api_key", "an API key is required"))
		return
	}

	principal, err := h.authenticator.ValidateAPIKey(key)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, apperrors.NewInvalidTokenError(err).
			WithDetails("The API key was not recognised"))
		return
	}

	token, expiresAt, err := h.authenticator.IssueToken(principal)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "Failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Principal: principal.Name,
	})
}

// Status returns the caller's principal and the auth configuration
func (h *Handlers) Status(c *gin.Context) {
	config := h.authenticator.Config()
	status := gin.H{
		"authentication_enabled": config.Enabled,
		"allow_anonymous":        config.AllowAnonymous,
		"token_issuance":         h.authenticator.CanIssueTokens(),
		"rate_limit":             config.RateLimit,
		"jwt_expiry":             config.JWTExpiry.String(),
	}

	if principal, ok := CurrentPrincipal(c); ok {
		status["authenticated"] = principal.Method != MethodAnonymous
		status["principal"] = principal
	} else {
		status["authenticated"] = false
	}
	if h.limiter != nil {
		status["rate_limiter"] = h.limiter.Stats()
	}

	c.JSON(http.StatusOK, status)
}
