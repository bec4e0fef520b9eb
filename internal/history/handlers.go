package history

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solvemate/solvemate-api/internal/auth"
	apierrors "github.com/solvemate/solvemate-api/internal/errors"
	"github.com/solvemate/solvemate-api/internal/logger"
)

type Handler struct {
	store  Store
	logger *logger.Logger
}

func NewHandler(store Store, logger *logger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// List handles GET /api/v1/history.
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	items, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to list history",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to load history", nil)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Items: items})
}

// Delete handles DELETE /api/v1/history. Deletion is user-initiated, so
// unlike the background append its failure is surfaced to the caller.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid delete request", map[string]interface{}{"reason": err.Error()})
		return
	}

	deleted, err := h.store.DeleteMany(c.Request.Context(), userID, req.IDs)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to delete history items",
			slog.Int("requested", len(req.IDs)),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to delete history items", nil)
		return
	}

	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}
