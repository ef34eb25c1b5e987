package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

// statusClientClosedRequest is reported when the caller went away mid-search.
const statusClientClosedRequest = 499

// formatErrorResponse formats an error into a user-friendly response
func formatErrorResponse(err error) gin.H {
	var enhancedErr *apperrors.EnhancedError
	if errors.As(err, &enhancedErr) {
		body := gin.H{
			"code":    enhancedErr.Code,
			"message": enhancedErr.Message,
		}
		if enhancedErr.Details != "" {
			body["details"] = enhancedErr.Details
		}
		if enhancedErr.Suggestion != "" {
			body["suggestion"] = enhancedErr.Suggestion
		}
		if len(enhancedErr.Metadata) > 0 {
			body["metadata"] = enhancedErr.Metadata
		}
		return gin.H{"error": body}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return gin.H{"error": gin.H{"code": "TIMEOUT", "message": "The search did not finish in time"}}
	case errors.Is(err, context.Canceled):
		return gin.H{"error": gin.H{"code": "CANCELED", "message": "The request was canceled"}}
	}

	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotAuthenticated, apperrors.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case apperrors.ErrCodeInsufficientPerms:
		return http.StatusForbidden
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeDatastoreUnreachable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeFallbackExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
}
