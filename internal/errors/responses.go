package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func abort(c *gin.Context, status int, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, NewAPIError(message, details))
}

// AbortWithBadRequest rejects a malformed or invalid request with a 400.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	abort(c, http.StatusBadRequest, message, details)
}

// AbortWithUnauthorized rejects an unauthenticated request with a 401.
func AbortWithUnauthorized(c *gin.Context, message string, details map[string]interface{}) {
	abort(c, http.StatusUnauthorized, message, details)
}

// AbortWithNotFound responds 404 for an unknown session or resource.
func AbortWithNotFound(c *gin.Context, message string, details map[string]interface{}) {
	abort(c, http.StatusNotFound, message, details)
}

// AbortWithConflict responds 409 when an operation is not legal in the
// session's current state.
func AbortWithConflict(c *gin.Context, message string, details map[string]interface{}) {
	abort(c, http.StatusConflict, message, details)
}

// AbortWithInternal responds 500 for failures the caller cannot act on.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	abort(c, http.StatusInternalServerError, message, details)
}
