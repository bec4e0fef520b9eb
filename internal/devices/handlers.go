package devices

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/solvemate/solvemate-api/internal/auth"
	apierrors "github.com/solvemate/solvemate-api/internal/errors"
	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/session"
)

// Handler upgrades the device channel websocket.
type Handler struct {
	registry *Registry
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewHandler(registry *Registry, sessions *session.Manager, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer in front of us;
			// the session ID is the capability here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.WithComponent("device-handler"),
	}
}

// Connect handles GET /api/v1/sessions/:id/device. The caller must own the
// session; browsers cannot set headers on websocket dials, so the auth
// middleware also accepts the token as a query parameter here.
func (h *Handler) Connect(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := auth.GetUserID(c)

	if _, ok := h.sessions.Get(sessionID, userID); !ok {
		apierrors.AbortWithNotFound(c, "session not found", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Info("device connected", slog.String("session_id", sessionID))
	h.registry.bridgeFor(sessionID).Attach(conn)
}
