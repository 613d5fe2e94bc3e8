package handlers

import (
	"context"
	"net/http"

	"reportaciudad/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CategoryStore interface {
	List(ctx context.Context) ([]models.Category, error)
	Exists(ctx context.Context, id uint) (bool, error)
}

type CategoryHandler struct {
	repo   CategoryStore
	logger *zap.Logger
}

func NewCategoryHandler(repo CategoryStore, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{repo: repo, logger: logger}
}

// List GET /categorias
func (h *CategoryHandler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	OK(c, http.StatusOK, list)
}
