package services

import (
	"context"

	"reportaciudad/internal/models"
	"reportaciudad/internal/utils"
)

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// NotificationService 把 markdown 正文渲染为净化后的 HTML 再入库
type NotificationService struct {
	store NotificationStore
}

func NewNotificationService(store NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

func (s *NotificationService) Notify(ctx context.Context, userID string, t models.NotificationType, title, body string, reportID *string) error {
	n := &models.Notification{
		UserID:   userID,
		Type:     t,
		Title:    utils.SanitizeText(title),
		Message:  utils.RenderMarkdown(body),
		ReportID: reportID,
	}
	return s.store.Create(ctx, n)
}
