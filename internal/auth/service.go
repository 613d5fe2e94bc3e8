// Package auth handles registration, login and bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"reportaciudad/internal/events"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"
	"reportaciudad/internal/utils"

	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPendingValidation  = errors.New("account pending validation")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrInvalidInput       = errors.New("invalid registration data")
	ErrEmailTaken         = errors.New("email already registered")
)

const minPasswordLength = 8

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type RegisterInput struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"telefono"`
}

// Session 登录成功返回的令牌
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expira_en"`
	User      *models.User `json:"usuario"`
}

type Service struct {
	users  UserStore
	tokens *TokenManager
	events events.Publisher
	logger *zap.Logger
}

func NewService(users UserStore, tokens *TokenManager, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{users: users, tokens: tokens, events: publisher, logger: logger}
}

// Register creates a citizen account. It cannot log in until a moderator validates it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := utils.SanitizeText(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || utf8.RuneCountInString(name) > 120 {
		return nil, fmt.Errorf("%w: nombre", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:              name,
		Email:             email,
		Password:          hash,
		Phone:             strings.TrimSpace(in.Phone),
		Role:              models.RoleCitizen,
		Active:            false,
		PendingValidation: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	if err := s.events.Publish(ctx, events.New(events.UserRegistered, user.ID, user.ID)); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", string(events.UserRegistered)), zap.Error(err))
	}
	return user, nil
}

// Login checks the password first so account state is never disclosed to a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if user.PendingValidation {
		return nil, ErrPendingValidation
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// Me 返回当前登录用户
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

func (s *Service) Tokens() *TokenManager {
	return s.tokens
}
