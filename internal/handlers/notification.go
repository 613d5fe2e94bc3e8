package handlers

import (
	"context"
	"net/http"
	"strconv"

	"reportaciudad/internal/middleware"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"
	"reportaciudad/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id uint, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id uint, userID string) (bool, error)
}

type NotificationHandler struct {
	repo   NotificationStore
	logger *zap.Logger
}

func NewNotificationHandler(repo NotificationStore, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger}
}

// List GET /notificaciones?limite=
func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	limit := utils.ClampInt(utils.StringToInt(c.Query("limite")), 50, 200)

	list, err := h.repo.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	unread, err := h.repo.CountUnread(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, gin.H{"notificaciones": list, "no_leidas": unread})
}

// Read POST /notificaciones/:id/leer
func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := notificationID(c)
	if !ok {
		return
	}
	found, err := h.repo.MarkRead(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if !found {
		RespondError(c, h.logger, repository.ErrNotFound)
		return
	}
	OK(c, http.StatusOK, gin.H{"id": id, "leida": true})
}

// ReadAll POST /notificaciones/leer-todas
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	n, err := h.repo.MarkAllRead(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, gin.H{"actualizadas": n})
}

// Delete DELETE /notificaciones/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := notificationID(c)
	if !ok {
		return
	}
	found, err := h.repo.Delete(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	if !found {
		RespondError(c, h.logger, repository.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func notificationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "Identificador inválido")
		return 0, false
	}
	return uint(id), true
}
