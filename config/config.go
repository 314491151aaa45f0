package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sips-gamification/utils"
)

type Config struct {
	DatabaseURL      string
	Port             int
	GatewayToken     string
	AllowedOrigins   []string
	LogMode          string
	SeedCatalog      bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SnapshotInterval time.Duration
	SnapshotTTL      time.Duration
	ChallengeSweep   time.Duration
	R2               R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled is false when no bucket is configured; the snapshot archive is skipped then.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccountID != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		DatabaseURL:      utils.EnvString("DATABASE_URL", ""),
		Port:             utils.EnvInt("PORT", 5200),
		GatewayToken:     utils.EnvString("GAME_SERVICE_TOKEN", ""),
		LogMode:          utils.EnvString("LOG_MODE", "dev"),
		SeedCatalog:      utils.EnvBool("SEED_CATALOG", true),
		RedisAddr:        utils.EnvString("REDIS_ADDR", ""),
		RedisPassword:    utils.EnvString("REDIS_PASSWORD", ""),
		RedisDB:          utils.EnvInt("REDIS_DB", 0),
		SnapshotInterval: utils.EnvDuration("SNAPSHOT_INTERVAL", 5*time.Minute),
		SnapshotTTL:      utils.EnvDuration("SNAPSHOT_TTL", 5*time.Minute),
		ChallengeSweep:   utils.EnvDuration("CHALLENGE_SWEEP_INTERVAL", 10*time.Minute),
		R2: R2Config{
			AccountID:       utils.EnvString("CLOUDFLARE_ACCOUNT_ID", ""),
			AccessKeyID:     utils.EnvString("R2_ACCESS_KEY_ID", ""),
			AccessKeySecret: utils.EnvString("R2_ACCESS_KEY_SECRET", ""),
			Bucket:          utils.EnvString("R2_BUCKET_NAME", ""),
		},
	}

	origins := utils.EnvString("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.GatewayToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	return cfg, nil
}
