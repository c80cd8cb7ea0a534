package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"imagevault/internal/access"
)

const (
	retryAfterSeconds   = "2"
	linkNotFoundMessage = "Image does not exist."
)

// denialStatus is the single mapping from access reasons to HTTP status codes.
func denialStatus(reason access.Reason) int {
	switch reason {
	case access.ReasonNotSubscribed,
		access.ReasonOriginalNotEntitled,
		access.ReasonSizeNotEntitled,
		access.ReasonExpiringLinksNotEntitled,
		access.ReasonInvalidSize:
		return http.StatusBadRequest
	case access.ReasonImageNotFound,
		access.ReasonLinkNotFound,
		access.ReasonLinkExpired:
		return http.StatusNotFound
	case access.ReasonSourceUnavailable:
		return http.StatusInternalServerError
	case access.ReasonUnavailable,
		access.ReasonResolutionBusy,
		access.ReasonTokenSpaceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAccessError renders a denial, or a generic 500 for anything else.
func (h HandlerSet) writeAccessError(c *gin.Context, err error) {
	var d *access.Denial
	if !errors.As(err, &d) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_server_error",
			"message": "Unexpected server error.",
		})
		return
	}

	if d.Reason == access.ReasonResolutionBusy || d.Reason == access.ReasonUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	if d.Err != nil {
		_ = c.Error(d.Err)
	}

	reason, message := d.Reason, d.Message
	if reason == access.ReasonLinkExpired {
		h.log.Debug().Str("reason", string(reason)).Msg("temporary link expired")
		reason, message = access.ReasonLinkNotFound, linkNotFoundMessage
	}
	c.JSON(denialStatus(reason), gin.H{
		"error":   string(reason),
		"message": message,
	})
}
