// Package moderation implements the approve/reject workflow for reports and accounts.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reportaciudad/internal/events"
	"reportaciudad/internal/metrics"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"
	"reportaciudad/internal/utils"

	"go.uber.org/zap"
)

// MaxReasonLength 驳回原因最大字符数
const MaxReasonLength = 1000

type ReportStore interface {
	Get(ctx context.Context, id string) (*models.Report, error)
	Exists(ctx context.Context, id string) (bool, error)
	MarkValidated(ctx context.Context, id, moderatorID, comments string, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, moderatorID, reason string, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ReportStatus, moderatorID, comments string, at time.Time) (bool, error)
	ListPending(ctx context.Context, offset, limit int) ([]models.Report, int64, error)
	Stats(ctx context.Context, now time.Time) (models.ReportStats, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	MarkValidated(ctx context.Context, id, moderatorID, comments string, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, moderatorID, reason string, at time.Time) (bool, error)
	ListPending(ctx context.Context, offset, limit int) ([]models.User, int64, error)
}

// Notifier stores an in-app notification; body is markdown.
type Notifier interface {
	Notify(ctx context.Context, userID string, t models.NotificationType, title, body string, reportID *string) error
}

type Mailer interface {
	SendAccountValidated(email, name, comments string)
	SendAccountRejected(email, name, reason string)
}

// Page 分页结果
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

type Service struct {
	reports  ReportStore
	users    UserStore
	notifier Notifier
	mailer   Mailer
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(reports ReportStore, users UserStore, notifier Notifier, mailer Mailer, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		reports:  reports,
		users:    users,
		notifier: notifier,
		mailer:   mailer,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
	}
}

// NormalizeReason trims and strips markup from a rejection reason, and fails when
// nothing is left or it is too long.
func NormalizeReason(reason string) (string, error) {
	reason = utils.SanitizeText(reason)
	if reason == "" {
		return "", ErrInvalidReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return "", fmt.Errorf("%w: at most %d characters", ErrInvalidReason, MaxReasonLength)
	}
	return reason, nil
}

// ValidateReport marks a pending report as validated. estado is left unchanged.
func (s *Service) ValidateReport(ctx context.Context, actorID, id, comments string) (err error) {
	defer func() { metrics.ObserveModeration("validate_report", err) }()

	comments = utils.SanitizeText(comments)
	ok, err := s.reports.MarkValidated(ctx, id, actorID, comments, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return s.reportMiss(ctx, id)
	}

	s.logger.Info("report validated", zap.String("report_id", id), zap.String("moderator_id", actorID))
	s.afterReportDecision(ctx, id, actorID, events.ReportValidated, func(r *models.Report) (models.NotificationType, string, string) {
		body := fmt.Sprintf("Tu reporte **%s** fue validado y ya es visible en el mapa.", r.Title)
		if comments != "" {
			body += "\n\nComentarios del moderador: " + comments
		}
		return models.NotificationReportValidated, "Reporte validado", body
	})
	return nil
}

// RejectReport moves a pending report to rechazado. A blank reason fails before the store is touched.
func (s *Service) RejectReport(ctx context.Context, actorID, id, reason string) (err error) {
	defer func() { metrics.ObserveModeration("reject_report", err) }()

	reason, err = NormalizeReason(reason)
	if err != nil {
		return err
	}
	ok, err := s.reports.MarkRejected(ctx, id, actorID, reason, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return s.reportMiss(ctx, id)
	}

	s.logger.Info("report rejected", zap.String("report_id", id), zap.String("moderator_id", actorID))
	s.afterReportDecision(ctx, id, actorID, events.ReportRejected, func(r *models.Report) (models.NotificationType, string, string) {
		body := fmt.Sprintf("Tu reporte **%s** fue rechazado.\n\nMotivo: %s", r.Title, reason)
		return models.NotificationReportRejected, "Reporte rechazado", body
	})
	return nil
}

// UpdateReportStatus walks the report lifecycle. The write only lands if estado
// has not changed since it was read.
func (s *Service) UpdateReportStatus(ctx context.Context, actorID, id string, to models.ReportStatus, comments string) (err error) {
	defer func() { metrics.ObserveModeration("update_status", err) }()

	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	// 驳回必须附带理由，comments 即驳回理由
	if to == models.StatusRejected {
		if comments, err = NormalizeReason(comments); err != nil {
			return err
		}
	}
	report, err := s.reports.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	from := report.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	comments = utils.SanitizeText(comments)
	ok, err := s.reports.UpdateStatus(ctx, id, from, to, actorID, comments, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("report %s changed concurrently: %w", id, ErrAlreadyProcessed)
	}

	s.logger.Info("report status changed",
		zap.String("report_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("moderator_id", actorID))

	body := fmt.Sprintf("Tu reporte **%s** cambió de estado: %s → %s.", report.Title, statusLabel(from), statusLabel(to))
	if comments != "" {
		body += "\n\n" + comments
	}
	s.notify(ctx, report.UserID, models.NotificationReportStatus, "Estado del reporte actualizado", body, &report.ID)
	s.publish(ctx, events.New(events.ReportStatusChanged, id, actorID))
	return nil
}

func (s *Service) PendingReports(ctx context.Context, page, pageSize int) (Page[models.Report], error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.reports.ListPending(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page[models.Report]{}, err
	}
	return Page[models.Report]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *Service) ReportStats(ctx context.Context) (models.ReportStats, error) {
	return s.reports.Stats(ctx, s.now())
}

// ValidateUser activates a pending account.
func (s *Service) ValidateUser(ctx context.Context, actorID, id, comments string) (err error) {
	defer func() { metrics.ObserveModeration("validate_user", err) }()

	comments = utils.SanitizeText(comments)
	ok, err := s.users.MarkValidated(ctx, id, actorID, comments, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return s.userMiss(ctx, id)
	}

	s.logger.Info("user validated", zap.String("user_id", id), zap.String("moderator_id", actorID))
	if user := s.loadUser(ctx, id); user != nil {
		if s.mailer != nil {
			s.mailer.SendAccountValidated(user.Email, user.Name, comments)
		}
		s.notify(ctx, id, models.NotificationAccountValidated, "Cuenta validada",
			"Tu cuenta fue validada. Ya puedes iniciar sesión y reportar problemas en tu ciudad.", nil)
	}
	s.publish(ctx, events.New(events.UserValidated, id, actorID))
	return nil
}

// RejectUser closes a pending account. A blank reason fails before the store is touched.
func (s *Service) RejectUser(ctx context.Context, actorID, id, reason string) (err error) {
	defer func() { metrics.ObserveModeration("reject_user", err) }()

	reason, err = NormalizeReason(reason)
	if err != nil {
		return err
	}
	ok, err := s.users.MarkRejected(ctx, id, actorID, reason, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return s.userMiss(ctx, id)
	}

	s.logger.Info("user rejected", zap.String("user_id", id), zap.String("moderator_id", actorID))
	if user := s.loadUser(ctx, id); user != nil {
		if s.mailer != nil {
			s.mailer.SendAccountRejected(user.Email, user.Name, reason)
		}
		s.notify(ctx, id, models.NotificationAccountRejected, "Cuenta rechazada", "Motivo: "+reason, nil)
	}
	s.publish(ctx, events.New(events.UserRejected, id, actorID))
	return nil
}

func (s *Service) PendingUsers(ctx context.Context, page, pageSize int) (Page[models.User], error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.users.ListPending(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page[models.User]{}, err
	}
	return Page[models.User]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// reportMiss 条件更新未命中：区分不存在与已处理
func (s *Service) reportMiss(ctx context.Context, id string) error {
	exists, err := s.reports.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("report %s: %w", id, ErrAlreadyProcessed)
}

func (s *Service) userMiss(ctx context.Context, id string) error {
	exists, err := s.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("user %s: %w", id, ErrAlreadyProcessed)
}

// afterReportDecision 通知作者并发布事件。失败只记日志，不影响已提交的写入
func (s *Service) afterReportDecision(ctx context.Context, id, actorID string, t events.Type,
	message func(*models.Report) (models.NotificationType, string, string)) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		s.logger.Warn("load report after moderation", zap.String("report_id", id), zap.Error(err))
	} else {
		kind, title, body := message(report)
		s.notify(ctx, report.UserID, kind, title, body, &report.ID)
	}
	s.publish(ctx, events.New(t, id, actorID))
}

func (s *Service) loadUser(ctx context.Context, id string) *models.User {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		s.logger.Warn("load user after moderation", zap.String("user_id", id), zap.Error(err))
		return nil
	}
	return user
}

func (s *Service) notify(ctx context.Context, userID string, t models.NotificationType, title, body string, reportID *string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, userID, t, title, body, reportID); err != nil {
		s.logger.Warn("create notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	return page, utils.ClampInt(pageSize, 20, 100)
}

var statusLabels = map[models.ReportStatus]string{
	models.StatusNew:        "Nuevo",
	models.StatusInReview:   "En revisión",
	models.StatusInProgress: "En progreso",
	models.StatusResolved:   "Resuelto",
	models.StatusClosed:     "Cerrado",
	models.StatusRejected:   "Rechazado",
}

func statusLabel(s models.ReportStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return strings.ReplaceAll(string(s), "_", " ")
}
