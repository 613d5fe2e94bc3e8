package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/models"
	"reportaciudad/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// AuthRequired validates the bearer token and stores user id and role in the context.
// Browsers cannot set headers on websocket upgrades, so ?token= is accepted as well.
func AuthRequired(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Falta el token de acceso")
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token inválido o expirado")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// OptionalAuth 有合法令牌时写入用户信息，否则按匿名继续
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c.GetHeader("Authorization")); tokenString != "" {
			if claims, err := tokens.Parse(tokenString); err == nil {
				c.Set(UserIDKey, claims.UserID)
				c.Set(RoleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// AccountSource loads the account behind a token.
type AccountSource interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// ActiveAccount 重新读取账号：停用或被驳回的账号立即失效，角色以数据库为准。
// 放在 AuthRequired 之后、RequireRole 之前
func ActiveAccount(users AccountSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.Get(c.Request.Context(), CurrentUserID(c))
		if errors.Is(err, repository.ErrNotFound) {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "La cuenta ya no existe")
			return
		}
		if err != nil {
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno del servidor")
			return
		}
		if !user.Active {
			abort(c, http.StatusForbidden, "ACCOUNT_DISABLED", "La cuenta está deshabilitada")
			return
		}
		c.Set(RoleKey, user.Role)
		c.Next()
	}
}

// RequireRole must run after AuthRequired.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CurrentRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "No tienes permisos para esta acción")
	}
}

// RequireStaff 管理员或审核员
func RequireStaff() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin, models.RoleModerator)
}

func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func CurrentRole(c *gin.Context) models.Role {
	if v, ok := c.Get(RoleKey); ok {
		if role, ok := v.(models.Role); ok {
			return role
		}
	}
	return ""
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": code, "message": message})
}
