// README: WebSocket endpoint; streams ride events to the authenticated caller.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"drivemecrazy/internal/http/middleware"
	"drivemecrazy/internal/modules/notify"
)

type WSHandler struct {
	hub *notify.Hub
	log *slog.Logger

	upgrader websocket.Upgrader
}

func NewWSHandler(hub *notify.Hub, log *slog.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are native apps, not browsers; origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Stream(c *gin.Context) {
	actor, ok := middleware.CallerActor(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthenticated", "")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}
	if err := h.hub.Attach(c.Request.Context(), actor, conn); err != nil {
		h.log.Error("ws attach failed", "subject", actor.SubjectID, "err", err)
		_ = conn.Close()
	}
}
