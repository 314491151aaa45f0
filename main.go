package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sips-gamification/cache"
	"sips-gamification/config"
	"sips-gamification/handlers"
	"sips-gamification/logger"
	"sips-gamification/middleware"
	"sips-gamification/models"
	"sips-gamification/services"
	"sips-gamification/utils"
	"sips-gamification/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ config: ", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal("❌ logger: ", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		appLog.Fatal("failed to connect to database", "error", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		appLog.Fatal("failed to migrate database", "error", err)
	}

	var store cache.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, appLog, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			appLog.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		store = rc
	} else {
		appLog.Warn("⚠️  REDIS_ADDR not set, using in-process cache (cooldowns are per instance)")
		store = cache.NewMemory(appLog)
	}
	defer store.Close()

	if cfg.SeedCatalog {
		if err := services.SeedCatalog(ctx, db, appLog, time.Now()); err != nil {
			appLog.Fatal("failed to seed catalog", "error", err)
		}
	}

	progressionService := services.NewProgressionService(db, store, appLog)
	profileService := services.NewProfileReadService(db, store, appLog, progressionService.Levels, progressionService.Roles)
	leaderboardService := services.NewLeaderboardService(db, store, appLog, cfg.SnapshotTTL)

	maintenance := services.NewMaintenance(progressionService.Challenges, leaderboardService, appLog)
	if err := maintenance.Start(ctx, cfg.ChallengeSweep); err != nil {
		appLog.Fatal("failed to start scheduler", "error", err)
	}
	defer maintenance.Stop()

	var archive workers.Archiver
	if cfg.R2.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			appLog.Fatal("failed to initialize R2 client", "error", err)
		}
		archive = uploader
	}
	snapshotWorker := workers.NewSnapshotWorker(leaderboardService, archive, appLog)
	go snapshotWorker.Run(ctx, cfg.SnapshotInterval)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, appLog))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	handlers.SetupGamificationRoutes(app, appLog, progressionService, profileService, leaderboardService)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			appLog.Error("Server error", "error", err)
			stop()
		}
	}()

	appLog.Info("✅ Server running", "port", cfg.Port)
	appLog.Info("✅ Snapshot worker running", "interval", cfg.SnapshotInterval, "archive", cfg.R2.Enabled())
	appLog.Info("✅ CORS configured", "origins", cfg.AllowedOrigins)

	<-ctx.Done()
	appLog.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLog.Warn("shutdown incomplete", "error", err)
	}
}
