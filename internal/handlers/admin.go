package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"reportaciudad/internal/middleware"
	"reportaciudad/internal/models"
	"reportaciudad/internal/moderation"
	"reportaciudad/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Moderator is the moderation workflow as seen by the admin endpoints.
type Moderator interface {
	ValidateReport(ctx context.Context, actorID, id, comments string) error
	RejectReport(ctx context.Context, actorID, id, reason string) error
	UpdateReportStatus(ctx context.Context, actorID, id string, to models.ReportStatus, comments string) error
	PendingReports(ctx context.Context, page, pageSize int) (moderation.Page[models.Report], error)
	ReportStats(ctx context.Context) (models.ReportStats, error)
	ValidateUser(ctx context.Context, actorID, id, comments string) error
	RejectUser(ctx context.Context, actorID, id, reason string) error
	PendingUsers(ctx context.Context, page, pageSize int) (moderation.Page[models.User], error)
}

type ExportStore interface {
	ListForExport(ctx context.Context, status models.ReportStatus, since time.Time, limit int) ([]models.Report, error)
}

type AdminHandler struct {
	mod     Moderator
	exports ExportStore
	logger  *zap.Logger
}

func NewAdminHandler(mod Moderator, exports ExportStore, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{mod: mod, exports: exports, logger: logger}
}

type validateRequest struct {
	Comments string `json:"comentarios"`
}

type rejectRequest struct {
	Reason string `json:"motivo"`
}

type statusRequest struct {
	Status   models.ReportStatus `json:"estado"`
	Comments string              `json:"comentarios"`
}

// bindOptional 空请求体视为零值
func bindOptional(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		BadRequest(c, "Cuerpo de la solicitud inválido")
		return false
	}
	return true
}

// PendingReports GET /admin/reports/pending
func (h *AdminHandler) PendingReports(c *gin.Context) {
	page, size := pageParams(c)
	result, err := h.mod.PendingReports(c.Request.Context(), page, size)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, result)
}

// Stats GET /admin/reports/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.mod.ReportStats(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, stats)
}

// ValidateReport POST /admin/reports/:id/validate
func (h *AdminHandler) ValidateReport(c *gin.Context) {
	var req validateRequest
	if !bindOptional(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.mod.ValidateReport(c.Request.Context(), middleware.CurrentUserID(c), id, req.Comments); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": id, "validado": true}, "message": "Reporte validado"})
}

// RejectReport POST /admin/reports/:id/reject
func (h *AdminHandler) RejectReport(c *gin.Context) {
	var req rejectRequest
	if !bindOptional(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.mod.RejectReport(c.Request.Context(), middleware.CurrentUserID(c), id, req.Reason); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": id, "estado": models.StatusRejected}, "message": "Reporte rechazado"})
}

// UpdateStatus POST /admin/reports/:id/status
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		BadRequest(c, "El estado es obligatorio")
		return
	}
	id := c.Param("id")
	if err := h.mod.UpdateReportStatus(c.Request.Context(), middleware.CurrentUserID(c), id, req.Status, req.Comments); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, gin.H{"id": id, "estado": req.Status})
}

// Export GET /admin/reports/export?estado=&dias=
func (h *AdminHandler) Export(c *gin.Context) {
	status := models.ReportStatus(c.Query("estado"))
	if status != "" && !status.Valid() {
		RespondError(c, h.logger, fmt.Errorf("%w: %q", moderation.ErrInvalidStatus, status))
		return
	}
	days := utils.ClampInt(utils.StringToInt(c.Query("dias")), 30, 365)
	since := time.Now().AddDate(0, 0, -days)

	reports, err := h.exports.ListForExport(c.Request.Context(), status, since, 10000)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	data, err := GenerateReportExport(reports)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	filename := fmt.Sprintf("reportes_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// PendingUsers GET /admin/users/pending
func (h *AdminHandler) PendingUsers(c *gin.Context) {
	page, size := pageParams(c)
	result, err := h.mod.PendingUsers(c.Request.Context(), page, size)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, result)
}

// ValidateUser POST /admin/users/:id/validate
func (h *AdminHandler) ValidateUser(c *gin.Context) {
	var req validateRequest
	if !bindOptional(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.mod.ValidateUser(c.Request.Context(), middleware.CurrentUserID(c), id, req.Comments); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": id, "activo": true}, "message": "Usuario validado"})
}

// RejectUser POST /admin/users/:id/reject
func (h *AdminHandler) RejectUser(c *gin.Context) {
	var req rejectRequest
	if !bindOptional(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.mod.RejectUser(c.Request.Context(), middleware.CurrentUserID(c), id, req.Reason); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": id, "activo": false}, "message": "Usuario rechazado"})
}
