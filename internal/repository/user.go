package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reportaciudad/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrDuplicateEmail = errors.New("email already registered")

type UserRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "duplicate key")) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &user, nil
}

// GetByEmail email 统一小写存储
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check user %s: %w", id, err)
	}
	return count > 0, nil
}

// MarkValidated 激活仍在等待审核的账号
func (r *UserRepository) MarkValidated(ctx context.Context, id, moderatorID, comments string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND pendiente_validacion = ?", id, true).
		Updates(map[string]interface{}{
			"activo":                 true,
			"pendiente_validacion":   false,
			"comentarios_validacion": comments,
			"validado_por":           moderatorID,
			"validado_en":            at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("validate user %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkRejected 驳回仍在等待审核的账号
func (r *UserRepository) MarkRejected(ctx context.Context, id, moderatorID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND pendiente_validacion = ?", id, true).
		Updates(map[string]interface{}{
			"activo":               false,
			"pendiente_validacion": false,
			"motivo_rechazo":       reason,
			"validado_por":         moderatorID,
			"validado_en":          at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("reject user %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListPending 按注册时间升序
func (r *UserRepository) ListPending(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("pendiente_validacion = ?", true).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count pending users: %w", err)
	}

	users := make([]models.User, 0)
	err := r.db.WithContext(ctx).Where("pendiente_validacion = ?", true).
		Order("created_at ASC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list pending users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepository) CountPending(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("pendiente_validacion = ?", true).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count pending users: %w", err)
	}
	return total, nil
}

// ListStaff 返回所有启用的管理员与审核员
func (r *UserRepository) ListStaff(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	err := r.db.WithContext(ctx).
		Where("tipo IN ? AND activo = ?", []models.Role{models.RoleAdmin, models.RoleModerator}, true).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return users, nil
}
