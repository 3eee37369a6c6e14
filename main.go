package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/swapmybytes/backend/auth"
	"github.com/swapmybytes/backend/auth/middleware"
	"github.com/swapmybytes/backend/auth/oauth"
	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/handlers"
	"github.com/swapmybytes/backend/initializers"
	"github.com/swapmybytes/backend/jobs"
	"github.com/swapmybytes/backend/routes"
	"github.com/swapmybytes/backend/storage"
	"github.com/swapmybytes/backend/thumbnail"
	"github.com/swapmybytes/backend/tokens"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := initializers.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	logger.Info("database connected and migrated")

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload directory: %v", err)
	}

	s3Client, err := initializers.NewS3Client(context.Background(), cfg)
	if err != nil {
		logger.Warn("S3 unavailable, artifact mirroring disabled", "error", err)
		s3Client = nil
	}
	mirror := storage.NewMirror(s3Client, cfg.S3Bucket, logger)

	chunks, err := storage.NewChunkStore(cfg.TempDir, logger)
	if err != nil {
		log.Fatalf("failed to set up chunk store: %v", err)
	}
	thumbs, err := thumbnail.NewGenerator(cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("failed to set up thumbnail generator: %v", err)
	}

	authority := tokens.NewAuthority(db, cfg.DownloadTokenTTL, cfg.TrendingLimit, logger)
	manager := auth.NewManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	fileHandler := handlers.NewFileHandler(db, cfg, chunks, thumbs, authority, mirror, logger)
	userHandler := handlers.NewUserHandler(db, manager, cfg, logger)
	oauthHandler := oauth.NewHandler(db, manager, cfg, logger)

	cleaner := jobs.NewCleaner(db, authority, chunks, mirror, thumbs.DefaultPath(), cfg, logger)
	cleaner.Start(context.Background())

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Upload-Session"},
		ExposeHeaders:    []string{"Content-Length", "Filename", "Mimetype"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst).Middleware())

	authRequired := middleware.AuthRequired(manager, db, cfg.Production)
	routes.RegisterFileRoutes(router, fileHandler, authRequired)
	routes.RegisterUserRoutes(router, userHandler, authRequired)
	routes.RegisterOAuthRoutes(router, oauthHandler)

	router.GET("/", func(c *gin.Context) {
		c.String(200, "Backend is running")
	})

	logger.Info("server starting", "port", cfg.Port)
	log.Fatal(router.Run(":" + cfg.Port))
}
