package handlers

import (
	"context"
	"net/http"

	"reportaciudad/internal/badges"
	"reportaciudad/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type BadgeSource interface {
	Counts(ctx context.Context) (badges.Counts, error)
}

type BadgeHandler struct {
	source   BadgeSource
	hub      *badges.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewBadgeHandler allows websocket upgrades from the given origins ("*" allows any).
func NewBadgeHandler(source BadgeSource, hub *badges.Hub, origins []string, logger *zap.Logger) *BadgeHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &BadgeHandler{
		source: source,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

// Get GET /admin/badges
func (h *BadgeHandler) Get(c *gin.Context) {
	counts, err := h.source.Counts(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, counts)
}

// Stream GET /admin/badges/ws
func (h *BadgeHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, middleware.CurrentUserID(c))

	// 首次连接时推送当前计数
	if counts, err := h.source.Counts(c.Request.Context()); err == nil {
		h.hub.Broadcast(counts)
	}
}
