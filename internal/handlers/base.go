package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/geo"
	"reportaciudad/internal/moderation"
	"reportaciudad/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OK writes the success envelope.
func OK(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

// Fail writes the error envelope.
func Fail(c *gin.Context, code int, errCode, message string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "error": errCode, "message": message})
}

// RespondError maps domain errors to HTTP status codes; anything unknown is a logged 500.
func RespondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, moderation.ErrInvalidReason):
		Fail(c, http.StatusBadRequest, "INVALID_REASON", "El motivo es obligatorio")
	case errors.Is(err, moderation.ErrInvalidStatus):
		Fail(c, http.StatusBadRequest, "INVALID_STATUS", msg(err))
	case errors.Is(err, geo.ErrInvalidCoordinates):
		Fail(c, http.StatusBadRequest, "INVALID_COORDINATES", "Coordenadas inválidas")
	case errors.Is(err, auth.ErrInvalidInput):
		Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", msg(err))
	case errors.Is(err, auth.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Correo o contraseña incorrectos")
	case errors.Is(err, auth.ErrPendingValidation):
		Fail(c, http.StatusForbidden, "PENDING_VALIDATION", "Tu cuenta está pendiente de validación")
	case errors.Is(err, auth.ErrAccountDisabled):
		Fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Tu cuenta está desactivada")
	case errors.Is(err, moderation.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		Fail(c, http.StatusNotFound, "NOT_FOUND", "Recurso no encontrado")
	case errors.Is(err, auth.ErrEmailTaken):
		Fail(c, http.StatusConflict, "EMAIL_TAKEN", "El correo ya está registrado")
	case errors.Is(err, moderation.ErrAlreadyProcessed):
		Fail(c, http.StatusConflict, "ALREADY_PROCESSED", "El elemento ya fue procesado")
	case errors.Is(err, moderation.ErrInvalidTransition):
		Fail(c, http.StatusConflict, "INVALID_TRANSITION", msg(err))
	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno del servidor")
	}
}

// BadRequest 请求体或参数格式错误
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

func msg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// pageParams reads ?page and ?page_size; the moderation service clamps them.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, size
}
