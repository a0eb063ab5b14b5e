package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/config"
	"github.com/linkvault/internal/middleware"
	"github.com/linkvault/internal/reaper"
	"github.com/linkvault/internal/share"
	"github.com/linkvault/internal/storage"
	"github.com/linkvault/internal/store"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	clock := store.SystemClock{}

	shareStore, sessionStore, userStore := initStores(cfg, clock, logger)
	blobStore := initBlobStore(cfg, logger)

	authService := auth.NewService(userStore, sessionStore, clock, cfg.Sessions.TTL)
	shareService := share.NewService(shareStore, blobStore, clock, logger,
		cfg.Shares.DefaultTTL, cfg.Shares.DownloadTokenTTL)

	// Background reaper
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go reaper.New(shareService, authService, clock, logger, cfg.Reaper.Interval).Run(reaperCtx)
	logger.WithField("interval", cfg.Reaper.Interval).Info("Reaper started")

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.MaxMultipartMemory = cfg.Shares.MaxUploadSize

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", handleRegister(authService))
		authGroup.POST("/login", handleLogin(authService))
		authGroup.GET("/me", middleware.RequireAuth(authService), handleGetMe())
		authGroup.POST("/logout", middleware.RequireAuth(authService), handleLogout(authService))
	}

	api := router.Group("/api")
	{
		api.POST("/upload/text", middleware.OptionalAuth(authService), handleUploadText(shareService))
		api.POST("/upload/file", middleware.OptionalAuth(authService), handleUploadFile(shareService, cfg))
		api.GET("/share/:shareId/check", middleware.OptionalAuth(authService), handleCheckShare(shareService))
		api.POST("/share/:shareId", middleware.OptionalAuth(authService), handleAccessShare(shareService))
		api.GET("/share/:shareId/download", handleDownloadShare(shareService))
		api.DELETE("/share/:shareId", middleware.OptionalAuth(authService), handleDeleteShare(shareService))
		api.GET("/my/shares", middleware.RequireAuth(authService), handleMyShares(shareService))
	}

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        router,
		ReadTimeout:    15 * time.Minute,
		WriteTimeout:   15 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Starting server on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func initStores(cfg *config.Config, clock store.Clock, logger *logrus.Logger) (store.ShareStore, store.SessionStore, store.UserStore) {
	var (
		shareStore   store.ShareStore
		sessionStore store.SessionStore
		userStore    store.UserStore
	)

	switch cfg.Database.Type {
	case "memory":
		mem := store.NewMemoryStore()
		shareStore, sessionStore, userStore = mem, mem, mem
		logger.Info("Using in-memory store")
	case "sqlite", "postgres":
		driver := cfg.Database.Type
		if driver == "sqlite" {
			driver = "sqlite3"
		}
		db, err := sql.Open(driver, cfg.DSN())
		if err != nil {
			logger.Fatalf("Failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		sqlStore, err := store.NewSQLStore(db, cfg.Database.Type)
		if err != nil {
			logger.Fatalf("Failed to init database: %v", err)
		}
		shareStore, sessionStore, userStore = sqlStore, sqlStore, sqlStore
		logger.WithField("type", cfg.Database.Type).Info("Connected to database")
	default:
		logger.Fatalf("Unknown database type: %s", cfg.Database.Type)
	}

	if cfg.Sessions.Store == "redis" {
		redisStore, err := store.NewRedisSessionStore(&redis.Options{
			Addr:     cfg.Sessions.Redis.Address,
			Password: cfg.Sessions.Redis.Password,
			DB:       cfg.Sessions.Redis.DB,
		}, clock)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		sessionStore = redisStore
		logger.Info("Using Redis session store")
	}

	return shareStore, sessionStore, userStore
}

func initBlobStore(cfg *config.Config, logger *logrus.Logger) storage.BlobStore {
	switch cfg.Storage.Type {
	case "minio":
		blobStore, err := storage.NewMinioStore(context.Background(), storage.MinioOptions{
			Endpoint:  cfg.Storage.MinIO.Endpoint,
			AccessKey: cfg.Storage.MinIO.AccessKey,
			SecretKey: cfg.Storage.MinIO.SecretKey,
			UseSSL:    cfg.Storage.MinIO.UseSSL,
			Bucket:    cfg.Storage.MinIO.Bucket,
		})
		if err != nil {
			logger.Fatalf("Failed to create minio storage: %v", err)
		}
		logger.Info("Using MinIO blob storage")
		return blobStore
	default:
		blobStore, err := storage.NewLocalStore(cfg.Storage.Local.RootPath)
		if err != nil {
			logger.Fatalf("Failed to create local storage: %v", err)
		}
		logger.WithField("path", cfg.Storage.Local.RootPath).Info("Using local blob storage")
		return blobStore
	}
}
