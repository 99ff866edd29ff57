package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	StripeSecretKey  string
	StripeWebhookKey string
	S3Bucket         string
	DownloadLinkTTL  time.Duration
	MailFrom         string
	StoreName        string
	RedisURL         string
}

func LoadConfig() (*Config, error) {
	// .env is optional; system environment wins when both are present.
	_ = godotenv.Load()

	ttlSeconds, err := strconv.Atoi(getEnv("DOWNLOAD_LINK_TTL_SECONDS", "86400"))
	if err != nil || ttlSeconds <= 0 {
		ttlSeconds = 86400
	}

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookKey: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		S3Bucket:         os.Getenv("AWS_S3_BUCKET_NAME"),
		DownloadLinkTTL:  time.Duration(ttlSeconds) * time.Second,
		MailFrom:         getEnv("MAIL_FROM", "layman.sledge@bangerbaby.com"),
		StoreName:        getEnv("STORE_NAME", "BangerBaby"),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" ||
		cfg.StripeSecretKey == "" || cfg.StripeWebhookKey == "" || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
