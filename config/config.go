package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/meritrack/backend/pkg/database"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Merit    MeritConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	Environment        string        `env:"APP_ENV" envDefault:"development"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// IsProduction reports whether the server runs with production settings.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL         string        `env:"DATABASE_URL"` // if set, used as-is
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        string        `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName      string        `env:"DB_NAME" envDefault:"meritrack"`
	SSLMode     string        `env:"DB_SSLMODE" envDefault:"disable"`
	AutoMigrate bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	LockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"5s"`
}

// PoolOptions returns the pgx pool sizing for this database.
func (c DatabaseConfig) PoolOptions() database.PoolOptions {
	return database.PoolOptions{MaxConns: c.MaxConns, MinConns: c.MinConns, LockTimeout: c.LockTimeout}
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	ExpireHours int    `env:"JWT_EXPIRE_HOURS" envDefault:"24"`
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string `env:"AWS_REGION" envDefault:"ap-southeast-1"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	ImagesBucket         string `env:"AWS_S3_IMAGES_BUCKET" envDefault:"meritrack-event-images"`
	ReportsBucket        string `env:"AWS_S3_REPORTS_BUCKET" envDefault:"meritrack-reports"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"15"`
}

// Enabled reports whether S3 credentials were supplied.
func (a AWSConfig) Enabled() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// MeritConfig holds merit summary and leaderboard settings.
type MeritConfig struct {
	TargetPoints     int           `env:"MERIT_TARGET_POINTS" envDefault:"50"`
	LeaderboardLimit int           `env:"LEADERBOARD_DEFAULT_LIMIT" envDefault:"10"`
	RecentWindow     time.Duration `env:"MERIT_RECENT_WINDOW" envDefault:"720h"`
}

// CacheConfig holds Redis cache lifetimes.
type CacheConfig struct {
	EventsTTL      time.Duration `env:"CACHE_EVENTS_TTL" envDefault:"15m"`
	EventsStaleTTL time.Duration `env:"CACHE_EVENTS_STALE_TTL" envDefault:"24h"`
	LeaderboardTTL time.Duration `env:"CACHE_LEADERBOARD_TTL" envDefault:"5m"`
}

// AuthConfig holds sign-in restrictions.
type AuthConfig struct {
	AllowedDomains []string `env:"AUTH_ALLOWED_DOMAINS" envSeparator:"," envDefault:"upm.edu.my,student.upm.edu.my"`
	DevLogin       bool     `env:"AUTH_DEV_LOGIN" envDefault:"false"`
}

// DevLoginEnabled reports whether the development sign-in endpoint may be mounted.
func (c *Config) DevLoginEnabled() bool {
	return c.Auth.DevLogin && !c.Server.IsProduction()
}

// WorkerConfig holds background report worker settings.
type WorkerConfig struct {
	InProcess   bool          `env:"WORKER_IN_PROCESS" envDefault:"true"`
	PollTimeout time.Duration `env:"WORKER_POLL_TIMEOUT" envDefault:"5s"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Merit.TargetPoints <= 0 {
		return fmt.Errorf("MERIT_TARGET_POINTS must be positive, got %d", c.Merit.TargetPoints)
	}
	if c.Merit.LeaderboardLimit < 0 {
		return fmt.Errorf("LEADERBOARD_DEFAULT_LIMIT must not be negative, got %d", c.Merit.LeaderboardLimit)
	}
	if c.Cache.EventsStaleTTL < c.Cache.EventsTTL {
		return fmt.Errorf("CACHE_EVENTS_STALE_TTL (%s) must not be shorter than CACHE_EVENTS_TTL (%s)",
			c.Cache.EventsStaleTTL, c.Cache.EventsTTL)
	}
	if c.Server.IsProduction() && c.JWT.Secret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	for i, d := range c.Auth.AllowedDomains {
		c.Auth.AllowedDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}
	return nil
}
