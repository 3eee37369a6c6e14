package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config carries every runtime setting. It is loaded once in main and passed
// to constructors; no package keeps its own ambient copy.
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	Production     bool   `envconfig:"IN_PRODUCTION" default:"false"`
	FrontendOrigin string `envconfig:"FRONTEND_ORIGIN" default:"http://localhost:3000"`

	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	DatabaseURL string `envconfig:"DB_URL"`

	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`
	TempDir   string `envconfig:"TEMP_DIR" default:"uploads/temp"`

	AccessTokenSecret  string        `envconfig:"PRIVATE_KEY_ACCESS_TOKEN"`
	RefreshTokenSecret string        `envconfig:"PRIVATE_KEY_REFRESH_TOKEN"`
	AccessTokenTTL     time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"24h"`
	RefreshTokenTTL    time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	SessionSecret      string        `envconfig:"SESSION_SECRET"`

	DownloadTokenTTL time.Duration `envconfig:"DOWNLOAD_TOKEN_TTL" default:"30s"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`
	FileTTL          time.Duration `envconfig:"FILE_TTL" default:"168h"`
	ChunkSessionTTL  time.Duration `envconfig:"CHUNK_SESSION_TTL" default:"24h"`
	TrendingLimit    int           `envconfig:"TRENDING_LIMIT" default:"10"`

	AWSRegion string `envconfig:"AWS_REGION"`
	S3Bucket  string `envconfig:"AWS_BUCKET_NAME"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`
}

// Load reads the environment into a Config. Variables are prefixed with SMB_
// (SMB_DB_URL, SMB_UPLOAD_DIR, ...). A .env file is honored outside of
// containerized deployments; a missing .env is only a warning.
func Load() (Config, error) {
	if os.Getenv("DOCKERIZED") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found, using system environment")
		}
	}

	var cfg Config
	if err := envconfig.Process("SMB", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
