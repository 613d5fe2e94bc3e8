package repository

import (
	"context"
	"fmt"

	"reportaciudad/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListForUser 最新的在前
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	list := make([]models.Notification, 0)
	err := r.db.WithContext(ctx).
		Where("usuario_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("usuario_id = ? AND leida = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead 只能操作自己的通知
func (r *NotificationRepository) MarkRead(ctx context.Context, id uint, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND usuario_id = ?", id, userID).
		Update("leida", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark notification read: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("usuario_id = ? AND leida = ?", userID, false).
		Update("leida", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id uint, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND usuario_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return false, fmt.Errorf("delete notification: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
