package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lumeo-ai/lumeo/internal/session"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	manager *session.Manager
	log     *slog.Logger
}

func NewHandler(manager *session.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{manager: manager, log: log}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/v1/assistant/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := NewConn(ws, h.log)
	ctrl := h.manager.Create(conn, conn.PlaybackDevice())
	log := h.log.With("session_id", ctrl.ID())

	log.Info("client connected")

	ctx := c.Request().Context()
	go conn.writePump(ctx)
	conn.readPump(ctx, ctrl)

	h.manager.Remove(context.Background(), ctrl.ID())
	log.Info("client disconnected")
	return nil
}
