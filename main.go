package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/config"
	"github.com/Lay199xxx/BangerBaby.com/controllers"
	"github.com/Lay199xxx/BangerBaby.com/database"
	"github.com/Lay199xxx/BangerBaby.com/logger"
	"github.com/Lay199xxx/BangerBaby.com/models"
	"github.com/Lay199xxx/BangerBaby.com/repository"
	"github.com/Lay199xxx/BangerBaby.com/routes"
	"github.com/Lay199xxx/BangerBaby.com/sender"
	"github.com/Lay199xxx/BangerBaby.com/services"
	"github.com/Lay199xxx/BangerBaby.com/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	log, err := logger.Initialize(os.Getenv("APP_ENV"))
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	if err := database.Connect(cfg, log, &models.Beat{}, &models.FulfillmentRecord{}); err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}

	awsCfg, err := storage.LoadAWSConfig(context.Background())
	if err != nil {
		log.Fatal("AWS config load failed", zap.Error(err))
	}
	signer := storage.NewS3Signer(awsCfg, cfg.S3Bucket)

	emailSender, err := sender.NewSMTPSender(cfg.StoreName, cfg.MailFrom)
	if err != nil {
		log.Fatal("Failed to init SMTP sender", zap.Error(err))
	}

	// Redis is optional; the catalog falls back to direct DB reads.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn("Failed to parse REDIS_URL, catalog cache disabled", zap.Error(err))
		} else {
			redisClient = redis.NewClient(opts)
		}
	}

	beatRepo := repository.NewGormBeatRepo(database.DB)
	fulfillmentRepo := repository.NewGormFulfillmentRepo(database.DB)
	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookKey)
	fulfillmentSvc := services.NewFulfillmentService(
		beatRepo,
		fulfillmentRepo,
		signer,
		emailSender,
		cfg.DownloadLinkTTL,
		log,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(log))
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	bc := &controllers.BeatController{Beats: beatRepo, Redis: redisClient, Logger: log}
	pc := &controllers.PaymentController{
		Stripe:      stripeSvc,
		Beats:       beatRepo,
		Fulfillment: fulfillmentSvc,
		Logger:      log,
	}
	routes.RegisterRoutes(r, bc, pc)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Beat store backend started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close error", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		log.Error("Database close error", zap.Error(err))
	}

	log.Info("Beat store backend stopped gracefully")
}
