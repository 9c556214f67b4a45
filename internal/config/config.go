package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Auth        AuthConfig
	Email       EmailConfig
	Log         LogConfig
	Features    FeaturesConfig
	Demo        DemoConfig
	Preferences PreferencesConfig
}

type ServerConfig struct {
	Port           string        `validate:"required"`
	Environment    string        `validate:"required,oneof=development staging production test"`
	ReadTimeout    time.Duration `validate:"gt=0"`
	WriteTimeout   time.Duration `validate:"gt=0"`
	AllowedOrigins string
}

type DatabaseConfig struct {
	Host         string `validate:"required"`
	Port         string `validate:"required"`
	User         string `validate:"required"`
	Password     string
	DBName       string `validate:"required"`
	SSLMode      string
	AutoMigrate  bool
	MaxOpenConns int `validate:"gte=1"`
	MaxIdleConns int `validate:"gte=0"`
}

type RedisConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	Password string
	DB       int `validate:"gte=0"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `validate:"required"`
	PublicKeyPath      string        `validate:"required"`
	AccessTokenExpiry  time.Duration `validate:"gt=0"`
	RefreshTokenExpiry time.Duration `validate:"gt=0"`
	Issuer             string        `validate:"required"`
}

type AuthConfig struct {
	MaxFailedLogins        int           `validate:"gte=1"`
	LockDuration           time.Duration `validate:"gt=0"`
	SessionCleanupInterval time.Duration `validate:"gt=0"`
}

type EmailConfig struct {
	Enabled    bool
	Provider   string `validate:"omitempty,oneof=resend webhook"`
	APIKey     string
	FromEmail  string
	FromName   string
	WebhookURL string
	AppURL     string
	Timeout    time.Duration
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type FeaturesConfig struct {
	// DefaultEnabled applies to available features without a tenant override.
	DefaultEnabled bool
}

type DemoConfig struct {
	// Enabled exposes the seeded demo accounts.
	Enabled bool
}

type PreferencesConfig struct {
	TTL          time.Duration `validate:"gt=0"`
	RegistrySize int           `validate:"gte=1"`
}

func Load() (*Config, error) {
	// .env is optional in production
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "nourhub"),
			Password:     getEnv("DB_PASSWORD", "nourhub"),
			DBName:       getEnv("DB_NAME", "nourhub"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			AutoMigrate:  getBoolEnv("DB_AUTO_MIGRATE", true),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			PrivateKeyPath:     getEnv("JWT_PRIVATE_KEY_PATH", "./keys/private.pem"),
			PublicKeyPath:      getEnv("JWT_PUBLIC_KEY_PATH", "./keys/public.pem"),
			AccessTokenExpiry:  getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getDurationEnv("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:             getEnv("JWT_ISSUER", "nour-hub"),
		},
		Auth: AuthConfig{
			MaxFailedLogins:        getIntEnv("AUTH_MAX_FAILED_LOGINS", 5),
			LockDuration:           getDurationEnv("AUTH_LOCK_DURATION", 15*time.Minute),
			SessionCleanupInterval: getDurationEnv("AUTH_SESSION_CLEANUP_INTERVAL", time.Hour),
		},
		Email: EmailConfig{
			Enabled:    getBoolEnv("EMAIL_ENABLED", false),
			Provider:   getEnv("EMAIL_PROVIDER", "resend"),
			APIKey:     getEnv("EMAIL_API_KEY", ""),
			FromEmail:  getEnv("EMAIL_FROM", "no-reply@nourhub.app"),
			FromName:   getEnv("EMAIL_FROM_NAME", "Nour Hub"),
			WebhookURL: getEnv("EMAIL_WEBHOOK_URL", ""),
			AppURL:     getEnv("APP_URL", "http://localhost:5173"),
			Timeout:    getDurationEnv("EMAIL_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Features: FeaturesConfig{
			DefaultEnabled: getBoolEnv("FEATURES_DEFAULT_ENABLED", true),
		},
		Demo: DemoConfig{
			Enabled: getBoolEnv("DEMO_ENABLED", true),
		},
		Preferences: PreferencesConfig{
			TTL:          getDurationEnv("PREFERENCES_TTL", 90*24*time.Hour),
			RegistrySize: getIntEnv("TENANCY_REGISTRY_SIZE", 10000),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
