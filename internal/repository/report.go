// Package repository wraps gorm access to the PostgreSQL tables.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reportaciudad/internal/geo"
	"reportaciudad/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// pendingReportScope 待审核：未验证，且未被驳回或关闭
func pendingReportScope(db *gorm.DB) *gorm.DB {
	return db.Where("validado = ? AND estado NOT IN ?", false,
		[]models.ReportStatus{models.StatusRejected, models.StatusClosed})
}

type ReportRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewReportRepository(db *gorm.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// Get 按 id 查询，附带分类
func (r *ReportRepository) Get(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return &report, nil
}

// Exists 仅检查记录是否存在
func (r *ReportRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check report %s: %w", id, err)
	}
	return count > 0, nil
}

// MarkValidated sets validado=true only while the report is still pending.
// It returns false when no row matched, either because the id is unknown or the
// report was already processed.
func (r *ReportRepository) MarkValidated(ctx context.Context, id, moderatorID, comments string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", id).Scopes(pendingReportScope).
		Updates(map[string]interface{}{
			"validado":               true,
			"comentarios_moderacion": comments,
			"moderado_por":           moderatorID,
			"moderado_en":            at,
			"version":                gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("validate report %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		r.logger.Debug("validate matched no pending report", zap.String("report_id", id))
	}
	return res.RowsAffected > 0, nil
}

// MarkRejected moves a pending report to rechazado and records the reason.
func (r *ReportRepository) MarkRejected(ctx context.Context, id, moderatorID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", id).Scopes(pendingReportScope).
		Updates(map[string]interface{}{
			"estado":         models.StatusRejected,
			"validado":       false,
			"motivo_rechazo": reason,
			"moderado_por":   moderatorID,
			"moderado_en":    at,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("reject report %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		r.logger.Debug("reject matched no pending report", zap.String("report_id", id))
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatus 乐观更新：只有当前状态仍为 from 时才写入
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, from, to models.ReportStatus, moderatorID, comments string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"estado":       to,
		"moderado_por": moderatorID,
		"moderado_en":  at,
		"version":      gorm.Expr("version + 1"),
	}
	if to == models.StatusRejected {
		// 驳回的上报不再出现在公开地图上
		updates["validado"] = false
		updates["motivo_rechazo"] = comments
	} else if comments != "" {
		updates["comentarios_moderacion"] = comments
	}
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND estado = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update report %s status: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListPending 按创建时间升序分页返回待审核上报
func (r *ReportRepository) ListPending(ctx context.Context, offset, limit int) ([]models.Report, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Scopes(pendingReportScope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count pending reports: %w", err)
	}

	reports := make([]models.Report, 0)
	err := r.db.WithContext(ctx).Scopes(pendingReportScope).
		Preload("Category").
		Order("created_at ASC").
		Offset(offset).Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list pending reports: %w", err)
	}
	return reports, total, nil
}

func (r *ReportRepository) CountPending(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Scopes(pendingReportScope).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count pending reports: %w", err)
	}
	return total, nil
}

// Stats 管理后台汇总
func (r *ReportRepository) Stats(ctx context.Context, now time.Time) (models.ReportStats, error) {
	var stats models.ReportStats
	base := func() *gorm.DB { return r.db.WithContext(ctx).Model(&models.Report{}) }

	counts := []struct {
		name  string
		query *gorm.DB
		dst   *int64
	}{
		{"total", base(), &stats.Total},
		{"pending", base().Scopes(pendingReportScope), &stats.Pending},
		{"in_progress", base().Where("estado = ?", models.StatusInProgress), &stats.InProgress},
		{"resolved", base().Where("estado = ?", models.StatusResolved), &stats.Resolved},
		{"last_24h", base().Where("created_at >= ?", now.Add(-24*time.Hour)), &stats.Last24h},
		{"last_week", base().Where("created_at >= ?", now.AddDate(0, 0, -7)), &stats.LastWeek},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return models.ReportStats{}, fmt.Errorf("report stats %s: %w", c.name, err)
		}
	}
	return stats, nil
}

// ListValidatedInBounds 地图查询：只返回已验证的上报。超过 limit 时保留离框中心最近的
func (r *ReportRepository) ListValidatedInBounds(ctx context.Context, sw, ne geo.Coordinate, limit int) ([]models.Report, error) {
	lat := (sw.Latitude + ne.Latitude) / 2
	lng := (sw.Longitude + ne.Longitude) / 2
	nearest := clause.OrderBy{Expression: clause.Expr{
		SQL:                "(latitud - ?) * (latitud - ?) + (longitud - ?) * (longitud - ?), created_at ASC",
		Vars:               []interface{}{lat, lat, lng, lng},
		WithoutParentheses: true,
	}}

	reports := make([]models.Report, 0)
	err := r.db.WithContext(ctx).Preload("Category").
		Where("validado = ? AND estado <> ?", true, models.StatusRejected).
		Where("latitud BETWEEN ? AND ?", sw.Latitude, ne.Latitude).
		Where("longitud BETWEEN ? AND ?", sw.Longitude, ne.Longitude).
		Order(nearest).
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports in bounds: %w", err)
	}
	return reports, nil
}

// ListForExport 导出最近的上报，可按状态过滤
func (r *ReportRepository) ListForExport(ctx context.Context, status models.ReportStatus, since time.Time, limit int) ([]models.Report, error) {
	q := r.db.WithContext(ctx).Preload("Category").Where("created_at >= ?", since)
	if status != "" {
		q = q.Where("estado = ?", status)
	}
	reports := make([]models.Report, 0)
	if err := q.Order("created_at DESC").Limit(limit).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports for export: %w", err)
	}
	return reports, nil
}
