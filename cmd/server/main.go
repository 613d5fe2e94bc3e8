package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportaciudad/internal/auth"
	"reportaciudad/internal/badges"
	"reportaciudad/internal/config"
	"reportaciudad/internal/db"
	"reportaciudad/internal/events"
	"reportaciudad/internal/handlers"
	"reportaciudad/internal/logger"
	"reportaciudad/internal/metrics"
	"reportaciudad/internal/middleware"
	"reportaciudad/internal/moderation"
	"reportaciudad/internal/repository"
	"reportaciudad/internal/router"
	"reportaciudad/internal/services"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	cfg := config.Load()
	zl, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "reportaciudad")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	conn, err := db.Open(cfg, zl)
	if err != nil {
		zl.Fatal("database init failed", zap.Error(err))
	}

	// Repositories
	reportRepo := repository.NewReportRepository(conn, zl)
	userRepo := repository.NewUserRepository(conn, zl)
	notificationRepo := repository.NewNotificationRepository(conn)
	categoryRepo := repository.NewCategoryRepository(conn)
	zoneRepo := repository.NewZoneRepository(conn)

	// 事件：进程内总线，配置了 AMQP 时同时投递到 RabbitMQ
	bus := events.NewBus()
	publishers := []events.Publisher{bus}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, zl)
		if err != nil {
			zl.Warn("AMQP unavailable, events stay in-process", zap.Error(err))
		} else {
			amqpDone := make(chan struct{})
			go func() {
				amqpPub.Run(ctx)
				close(amqpDone)
			}()
			defer func() {
				<-amqpDone
				amqpPub.Close()
			}()
			publishers = append(publishers, amqpPub)
		}
	}
	publisher := events.NewMulti(zl, publishers...)

	// 角标缓存：默认本地 LRU，配置 Redis 后多实例共享
	var store badges.KVStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatal("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		store = badges.NewRedisStore(rdb)
	} else {
		lru, err := badges.NewLRUStore(64)
		if err != nil {
			zl.Fatal("badge cache init failed", zap.Error(err))
		}
		store = lru
	}

	hub := badges.NewHub(zl)
	badgeSvc := badges.NewService(reportRepo, userRepo, store, cfg.BadgeCacheTTL, hub, zl)
	refresher := badges.NewRefresher(badgeSvc, 500*time.Millisecond, zl)
	bus.Subscribe(refresher.Handle)

	// Services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := auth.NewService(userRepo, tokens, publisher, zl)
	modSvc := moderation.NewService(
		reportRepo,
		userRepo,
		services.NewNotificationService(notificationRepo),
		services.NewMailService(cfg, zl),
		publisher,
		zl,
	)

	zoneHandler := handlers.NewZoneHandler(zoneRepo, zl)
	if err := zoneHandler.Reload(ctx); err != nil {
		zl.Warn("zone index not loaded, reports will have no zone", zap.Error(err))
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(zl),
		metrics.Middleware(),
		middleware.CORS(cfg.CORSOrigins),
		middleware.SecurityHeaders(),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/admin/badges/ws", "/metrics"})),
	)

	router.RegisterRoutes(r, router.Deps{
		Tokens:        tokens,
		Users:         userRepo,
		LoginLimiter:  middleware.NewIPRateLimiter(cfg.LoginRatePerMin),
		Auth:          handlers.NewAuthHandler(authSvc, zl),
		Reports:       handlers.NewReportHandler(reportRepo, categoryRepo, zoneHandler, publisher, cfg, zl),
		Categories:    handlers.NewCategoryHandler(categoryRepo, zl),
		Zones:         zoneHandler,
		Notifications: handlers.NewNotificationHandler(notificationRepo, zl),
		Admin:         handlers.NewAdminHandler(modSvc, reportRepo, zl),
		Badges:        handlers.NewBadgeHandler(badgeSvc, hub, cfg.CORSOrigins, zl),
	})

	go hub.Run(ctx)
	go refresher.Run(ctx)
	if _, err := badgeSvc.Refresh(ctx); err != nil {
		zl.Warn("initial badge refresh failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("ReportaCiudad server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
}
