package handlers

import (
	"net/http"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc    *auth.Service
	logger *zap.Logger
}

func NewAuthHandler(svc *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 市民注册，账号需审核后才能登录
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Cuerpo de la solicitud inválido")
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
		"message": "Registro recibido. Tu cuenta será validada por un administrador.",
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Correo y contraseña son obligatorios")
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, session)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	OK(c, http.StatusOK, user)
}
