package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/zynthio/zynthio/internal/compliance/entity"
	"github.com/zynthio/zynthio/internal/compliance/handler"
	"github.com/zynthio/zynthio/internal/compliance/repository"
	"github.com/zynthio/zynthio/internal/compliance/service"
	"github.com/zynthio/zynthio/internal/config"
	"github.com/zynthio/zynthio/internal/middleware"
	"github.com/zynthio/zynthio/internal/scheduler"
	"github.com/zynthio/zynthio/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting zynthio service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)

	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Warn("Object storage unavailable, photo uploads disabled", zap.Error(err))
			minioClient = nil
		}
	}

	repos := repository.NewRepositories(db)
	notifier := notify.New(zapLogger)
	services := service.NewServices(repos, notifier, zapLogger)
	handlers := handler.NewHandlers(services, repos, minioClient, cfg)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	// Background triggers: materialization, overdue sweep, report dispatch.
	schedCtx, stopSched := context.WithCancel(context.Background())
	sched := scheduler.New(services, rdb, zapLogger, nil)
	go sched.Run(schedCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stopSched()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Organization{},
		&entity.Site{},
		&entity.Category{},
		&entity.Task{},
		&entity.TaskField{},
		&entity.SiteTask{},
		&entity.Checklist{},
		&entity.ChecklistItem{},
		&entity.TaskFieldResponse{},
		&entity.Defect{},
	)
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// Sites + report schedules
		v1.GET("/sites", h.Organization.ListSites)
		v1.POST("/sites", middleware.RequireRole("org_admin"), h.Organization.CreateSite)
		v1.PUT("/sites/:id/report-schedule", middleware.RequireRole("org_admin"), h.Organization.UpdateReportSchedule)

		// Template catalog
		admin := v1.Group("", middleware.RequireRole("org_admin"))
		{
			admin.POST("/categories", h.Template.CreateCategory)
			admin.PUT("/categories/:id", h.Template.UpdateCategory)
			admin.DELETE("/categories/:id", h.Template.DeleteCategory)
			admin.POST("/categories/:id/tasks", h.Template.CreateTask)
			admin.PUT("/tasks/:id", h.Template.UpdateTask)
			admin.POST("/tasks/:id/fields", h.Template.CreateField)
			admin.PUT("/tasks/:id/fields/:fieldId", h.Template.UpdateField)
			admin.DELETE("/tasks/:id/fields/:fieldId", h.Template.DeleteField)
			admin.POST("/tasks/:id/assignments", h.Template.AssignTask)
			admin.DELETE("/tasks/:id/assignments/:siteId", h.Template.UnassignTask)
		}
		v1.GET("/tasks/:id/fields", h.Template.ListFields)

		// Platform operator surface
		platform := v1.Group("/admin", middleware.RequireRole("platform_admin"))
		{
			platform.POST("/organizations", h.Organization.CreateOrganization)
			platform.GET("/organizations", h.Organization.ListOrganizations)
			platform.GET("/organizations/:id", h.Organization.GetOrganization)
		}

		// Checklist instances
		v1.POST("/checklists", h.Checklist.CreateInstance)
		v1.GET("/checklists/:id", h.Checklist.Get)
		v1.GET("/checklist-items/:id", h.Checklist.GetItem)
		v1.PATCH("/checklist-items/:id", h.Checklist.PatchItem)
		v1.POST("/checklist-items/:id/responses", h.Checklist.SubmitResponses)

		// Defects
		v1.GET("/defects", h.Defect.List)
		v1.POST("/defects", h.Defect.Create)
		v1.POST("/defects/:id/close", h.Defect.Close)

		// Uploads
		v1.POST("/uploads/photos", h.Upload.UploadPhoto)
	}
}
