package db

import (
	"errors"
	"fmt"
	"strings"

	"reportaciudad/internal/config"
	"reportaciudad/internal/models"
	"reportaciudad/internal/utils"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 建立数据库连接并完成迁移与初始数据
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		level = gormlogger.Info
	}

	conn, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connection established")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	log.Info("Database migration completed")

	if err := SeedCategories(conn, log); err != nil {
		return nil, err
	}
	if err := SeedAdmin(conn, cfg.SeedAdminEmail, cfg.SeedAdminPassword, log); err != nil {
		return nil, err
	}
	return conn, nil
}

// Migrate 自动迁移所有表
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Zone{},
		&models.Report{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// DefaultCategories 首次启动时写入的分类
var DefaultCategories = []models.Category{
	{Name: "Vías y andenes", Description: "Huecos, andenes rotos y señalización", Icon: "road", Color: "#F59E0B"},
	{Name: "Alumbrado público", Description: "Luminarias apagadas o dañadas", Icon: "lightbulb", Color: "#FACC15"},
	{Name: "Basuras", Description: "Acumulación de residuos y puntos críticos", Icon: "trash", Color: "#10B981"},
	{Name: "Agua y alcantarillado", Description: "Fugas, inundaciones y alcantarillas abiertas", Icon: "droplet", Color: "#3B82F6"},
	{Name: "Seguridad", Description: "Situaciones de riesgo en el espacio público", Icon: "shield", Color: "#EF4444"},
	{Name: "Espacio público", Description: "Parques, mobiliario y ocupación indebida", Icon: "tree", Color: "#8B5CF6"},
	{Name: "Otros", Description: "Problemas que no encajan en otra categoría", Icon: "dots", Color: "#6B7280"},
}

// SeedCategories 已有分类时跳过
func SeedCategories(conn *gorm.DB, log *zap.Logger) error {
	var count int64
	if err := conn.Model(&models.Category{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count > 0 {
		log.Debug("Categories already seeded, skipping")
		return nil
	}

	for _, cat := range DefaultCategories {
		cat := cat
		if err := conn.Create(&cat).Error; err != nil {
			log.Warn("Failed to create category", zap.String("nombre", cat.Name), zap.Error(err))
		}
	}
	log.Info("Initial categories created", zap.Int("count", len(DefaultCategories)))
	return nil
}

// SeedAdmin 创建第一个管理员账号。email 或密码为空时不做任何事
func SeedAdmin(conn *gorm.DB, email, password string, log *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var existing models.User
	err := conn.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup seed admin: %w", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash seed admin password: %w", err)
	}
	admin := models.User{
		Name:              "Administrador",
		Email:             email,
		Password:          hash,
		Role:              models.RoleAdmin,
		Active:            true,
		PendingValidation: false,
	}
	if err := conn.Create(&admin).Error; err != nil {
		return fmt.Errorf("create seed admin: %w", err)
	}
	log.Info("Seed admin created", zap.String("email", email))
	return nil
}
