package router

import (
	"net/http"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/handlers"
	"reportaciudad/internal/metrics"
	"reportaciudad/internal/middleware"
	"reportaciudad/internal/models"

	"github.com/gin-gonic/gin"
)

// Deps 路由所需的全部处理器
type Deps struct {
	Tokens        *auth.TokenManager
	Users         middleware.AccountSource
	LoginLimiter  *middleware.IPRateLimiter
	Auth          *handlers.AuthHandler
	Reports       *handlers.ReportHandler
	Categories    *handlers.CategoryHandler
	Zones         *handlers.ZoneHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
	Badges        *handlers.BadgeHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", metrics.Handler())

	authRequired := middleware.AuthRequired(d.Tokens)

	// 认证 (Auth)
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", d.Auth.Register)                        // 市民注册
		authGroup.POST("/login", d.LoginLimiter.Middleware(), d.Auth.Login) // 登录，按 IP 限流
		authGroup.GET("/me", authRequired, d.Auth.Me)                       // 当前用户
	}

	// 公共路由 (Public Routes)
	r.GET("/categorias", d.Categories.List)
	r.GET("/zonas", d.Zones.List)
	r.GET("/reportes/mapa", d.Reports.Map)          // 半径内已验证的上报
	r.GET("/reportes/clusters", d.Reports.Clusters) // 视口聚合
	r.GET("/reportes/:id", middleware.OptionalAuth(d.Tokens), d.Reports.Get)

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(authRequired)
	{
		authorized.POST("/reportes", d.Reports.Create)

		authorized.GET("/notificaciones", d.Notifications.List)
		authorized.POST("/notificaciones/:id/leer", d.Notifications.Read)
		authorized.POST("/notificaciones/leer-todas", d.Notifications.ReadAll)
		authorized.DELETE("/notificaciones/:id", d.Notifications.Delete)
	}

	// 管理后台 (Admin Routes)，管理员与审核员
	admin := r.Group("/admin")
	admin.Use(authRequired, middleware.ActiveAccount(d.Users), middleware.RequireStaff())
	{
		admin.GET("/reports/pending", d.Admin.PendingReports)
		admin.GET("/reports/stats", d.Admin.Stats)
		admin.GET("/reports/export", d.Admin.Export)
		admin.POST("/reports/:id/validate", d.Admin.ValidateReport)
		admin.POST("/reports/:id/reject", d.Admin.RejectReport)
		admin.POST("/reports/:id/status", d.Admin.UpdateStatus)

		admin.GET("/users/pending", d.Admin.PendingUsers)
		admin.POST("/users/:id/validate", d.Admin.ValidateUser)
		admin.POST("/users/:id/reject", d.Admin.RejectUser)

		admin.GET("/badges", d.Badges.Get)
		admin.GET("/badges/ws", d.Badges.Stream)

		admin.POST("/zonas/import", middleware.RequireRole(models.RoleAdmin), d.Zones.Import)
	}
}
