package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
)

// Error codes carried in ErrorResponse.Code.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeCatalogUnavailable = "catalog_unavailable"
	ErrCodeDispatchFailed     = "dispatch_failed"
)

// failErr maps a service error onto status and code. Unknown errors are 500s
// and their text is not echoed.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCharacterNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrCatalogUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeCatalogUnavailable, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
