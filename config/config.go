package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Payments PaymentsConfig
	Sweeper  SweeperConfig
	Client   ClientConfig
	App      AppConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	// LoginRatePerMinute bounds login attempts per client IP.
	LoginRatePerMinute int
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". memory keeps everything in process
	// and is meant for local runs.
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

type StorageConfig struct {
	// Driver is "local" or "s3".
	Driver        string
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
}

type PaymentsConfig struct {
	WebhookSecret string
}

type SweeperConfig struct {
	Schedule string
	Grace    time.Duration
}

type ClientConfig struct {
	APIBaseURL   string
	PollInterval time.Duration
	SessionFile  string
	Timeout      time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 20),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "pmdash"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalDir:      getEnv("UPLOAD_DIR", "uploads"),
			PublicBaseURL: getEnv("FILES_BASE_URL", "/files"),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Region:      getEnv("S3_REGION", ""),
			S3Prefix:      getEnv("S3_PREFIX", "uploads/"),
		},
		Payments: PaymentsConfig{
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		Sweeper: SweeperConfig{
			Schedule: getEnv("SWEEP_SCHEDULE", "0 0 * * * *"),
			Grace:    getEnvAsDuration("SWEEP_GRACE", 24*time.Hour),
		},
		Client: ClientConfig{
			APIBaseURL:   getEnv("PMDASH_API_URL", "http://localhost:8080"),
			PollInterval: getEnvAsDuration("PMDASH_POLL_INTERVAL", 3*time.Second),
			SessionFile:  getEnv("PMDASH_SESSION_FILE", defaultSessionFile()),
			Timeout:      getEnvAsDuration("PMDASH_HTTP_TIMEOUT", 15*time.Second),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	return cfg, nil
}

// Validate checks the settings the API server cannot start without.
// The pmctl client only needs the Client section and skips it.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for the local storage driver")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	out := make([]string, 0, 4)
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pmdash-session.json"
	}
	return home + "/.pmdash/session.json"
}
