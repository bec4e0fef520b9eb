package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/solvemate/solvemate-api/internal/auth"
	apierrors "github.com/solvemate/solvemate-api/internal/errors"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// HistoryPurger removes a user's stored analyses when the account goes.
type HistoryPurger interface {
	DeleteAllForUser(ctx context.Context, ownerID string) (int64, error)
}

type Handler struct {
	service *Service
	purger  HistoryPurger
	logger  *logger.Logger
}

func NewHandler(service *Service, purger HistoryPurger, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		purger:  purger,
		logger:  log.WithComponent("account-handler"),
	}
}

// SignUp handles POST /api/v1/auth/signup.
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid signup payload", nil)
		return
	}

	session, err := h.service.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SignIn handles POST /api/v1/auth/signin.
func (h *Handler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid signin payload", nil)
		return
	}

	session, err := h.service.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// SendOTP handles POST /api/v1/auth/otp.
func (h *Handler) SendOTP(c *gin.Context) {
	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid otp payload", nil)
		return
	}

	if err := h.service.SendOTP(c.Request.Context(), req.Email, req.CreateUser); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// VerifyOTP handles POST /api/v1/auth/verify.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid verify payload", nil)
		return
	}

	session, err := h.service.VerifyOTP(c.Request.Context(), req.Email, req.Token, req.Type)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Recover handles POST /api/v1/auth/recover.
func (h *Handler) Recover(c *gin.Context) {
	var req RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid recover payload", nil)
		return
	}

	if err := h.service.Recover(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid refresh payload", nil)
		return
	}

	session, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// UpdatePassword handles PUT /api/v1/auth/password. Requires auth.
func (h *Handler) UpdatePassword(c *gin.Context) {
	token, ok := auth.GetAccessToken(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid password payload", nil)
		return
	}

	if err := h.service.UpdatePassword(c.Request.Context(), token, req.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// Profile handles GET /api/v1/auth/profile. Requires auth.
func (h *Handler) Profile(c *gin.Context) {
	token, ok := auth.GetAccessToken(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	user, err := h.service.Profile(c.Request.Context(), token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SignOut handles POST /api/v1/auth/signout. Requires auth.
func (h *Handler) SignOut(c *gin.Context) {
	token, ok := auth.GetAccessToken(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	if err := h.service.SignOut(c.Request.Context(), token); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signedOut": true})
}

// GoogleURL handles GET /api/v1/auth/google/url.
func (h *Handler) GoogleURL(c *gin.Context) {
	state := uuid.New().String()
	authURL, err := h.service.GoogleAuthURL(state)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authURL, "state": state})
}

// GoogleCallback handles POST /api/v1/auth/google/callback.
func (h *Handler) GoogleCallback(c *gin.Context) {
	var req GoogleCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid callback payload", nil)
		return
	}

	session, err := h.service.ExchangeGoogleCode(c.Request.Context(), req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// DeleteAccount handles DELETE /api/v1/auth/account. Requires auth. The
// account is removed upstream first; history purging follows so a failed
// deletion never leaves the account gone but unpurgeable.
func (h *Handler) DeleteAccount(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "authentication required", nil)
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), userID); err != nil {
		h.respondError(c, err)
		return
	}

	purged, err := h.purger.DeleteAllForUser(c.Request.Context(), userID)
	if err != nil {
		// The account is already gone; report success but log the
		// leftover rows for cleanup.
		h.logger.Error("history purge failed after account deletion",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "purgedItems": purged})
}

// respondError passes upstream auth failures through with their status and
// hides everything else behind a generic 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, apierrors.NewAPIError(apiErr.Message, nil))
		return
	}

	h.logger.Error("account operation failed", slog.String("error", err.Error()))
	apierrors.AbortWithInternal(c, "authentication service unavailable", nil)
}
