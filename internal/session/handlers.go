package session

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/solvemate/solvemate-api/internal/auth"
	"github.com/solvemate/solvemate-api/internal/common"
	apierrors "github.com/solvemate/solvemate-api/internal/errors"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// Handler exposes the session lifecycle over HTTP. All routes run behind
// OptionalAuth: authenticated users get persistent history, anonymous
// callers get ephemeral sessions.
type Handler struct {
	manager *Manager
	logger  *logger.Logger
}

func NewHandler(manager *Manager, log *logger.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  log.WithComponent("session-handler"),
	}
}

type createRequest struct {
	Category string `json:"category"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type categoryRequest struct {
	Category string `json:"category" binding:"required"`
}

type imageRequest struct {
	Image string `json:"image" binding:"required"` // data URL or raw base64
}

func ownerID(c *gin.Context) string {
	userID, _ := auth.GetUserID(c)
	return userID
}

// Create handles POST /api/v1/sessions.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	ctrl, err := h.manager.Create(ownerID(c))
	if err != nil {
		if errors.Is(err, ErrSessionLimit) {
			apierrors.AbortWithConflict(c, "too many active sessions, close one first", nil)
			return
		}
		apierrors.AbortWithInternal(c, "failed to create session", nil)
		return
	}

	if req.Category != "" {
		if err := ctrl.SetCategory(req.Category); err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, ctrl.Snapshot())
}

// Get handles GET /api/v1/sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// Close handles DELETE /api/v1/sessions/:id.
func (h *Handler) Close(c *gin.Context) {
	if !h.manager.Close(c.Param("id"), ownerID(c)) {
		apierrors.AbortWithNotFound(c, "session not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadImage handles POST /api/v1/sessions/:id/image. It accepts either a
// multipart "image" file or a JSON body with a base64 payload. Reads are
// capped just above the image ceiling so an oversized upload is rejected
// without buffering it whole.
func (h *Handler) UploadImage(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	data, mimeType, err := readImagePayload(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := ctrl.SetImage(data, mimeType); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func readImagePayload(c *gin.Context) ([]byte, string, error) {
	if file, err := c.FormFile("image"); err == nil {
		if file.Size > MaxImageBytes {
			return nil, "", &ValidationError{Reason: ReasonTooLarge, Message: "File is too large. Please upload an image under 5MB."}
		}
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
		if err != nil {
			return nil, "", err
		}
		if len(data) > MaxImageBytes {
			return nil, "", &ValidationError{Reason: ReasonTooLarge, Message: "File is too large. Please upload an image under 5MB."}
		}
		return data, file.Header.Get("Content-Type"), nil
	}

	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", &ValidationError{Reason: ReasonEmptyImage, Message: "No image was provided."}
	}
	data, mimeType, err := common.DecodeBase64MaybeDataURL(req.Image)
	if err != nil {
		return nil, "", &ValidationError{Reason: ReasonEmptyImage, Message: "The image payload could not be decoded."}
	}
	return data, mimeType, nil
}

// ClearImage handles DELETE /api/v1/sessions/:id/image.
func (h *Handler) ClearImage(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.ClearImage(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// SetDescription handles PUT /api/v1/sessions/:id/description.
func (h *Handler) SetDescription(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req descriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid description payload", nil)
		return
	}
	if err := ctrl.SetDescription(req.Description); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// SetCategory handles PUT /api/v1/sessions/:id/category.
func (h *Handler) SetCategory(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid category payload", nil)
		return
	}
	if err := ctrl.SetCategory(req.Category); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// OpenCamera handles POST /api/v1/sessions/:id/camera/open.
func (h *Handler) OpenCamera(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.OpenCamera(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// ToggleFlash handles POST /api/v1/sessions/:id/camera/flash.
func (h *Handler) ToggleFlash(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.ToggleFlash(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// CapturePhoto handles POST /api/v1/sessions/:id/camera/capture.
func (h *Handler) CapturePhoto(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.CapturePhoto(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// CloseCamera handles POST /api/v1/sessions/:id/camera/close.
func (h *Handler) CloseCamera(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.CloseCamera(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// StartVoice handles POST /api/v1/sessions/:id/voice/start.
func (h *Handler) StartVoice(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.StartVoiceCapture(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// StopVoice handles POST /api/v1/sessions/:id/voice/stop.
func (h *Handler) StopVoice(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.StopVoiceCapture(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

// Submit handles POST /api/v1/sessions/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	item, err := ctrl.Submit(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis": item,
		"session":  ctrl.Snapshot(),
	})
}

func (h *Handler) lookup(c *gin.Context) (*Controller, bool) {
	ctrl, ok := h.manager.Get(c.Param("id"), ownerID(c))
	if !ok {
		apierrors.AbortWithNotFound(c, "session not found", nil)
		return nil, false
	}
	return ctrl, true
}

// respondError maps the session error taxonomy onto HTTP statuses. The
// analysis failure body carries only the generic message; the cause has
// already been logged by the controller.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	var derr *DeviceError
	var serr *StateError
	var aerr *AnalysisError

	switch {
	case errors.As(err, &verr):
		apierrors.AbortWithBadRequest(c, verr.Message, map[string]interface{}{"reason": string(verr.Reason)})
	case errors.As(err, &derr):
		apierrors.AbortWithConflict(c, derr.Message, map[string]interface{}{"reason": string(derr.Reason)})
	case errors.As(err, &serr):
		apierrors.AbortWithConflict(c, serr.Error(), nil)
	case errors.As(err, &aerr):
		c.AbortWithStatusJSON(http.StatusBadGateway, apierrors.NewAPIError(aerr.Error(), nil))
	default:
		apierrors.AbortWithInternal(c, "unexpected error", nil)
	}
}
