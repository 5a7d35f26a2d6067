package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tmcarvalho/gatehouse/internal/ratelimit"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Redis     RedisConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	CodeTTL         time.Duration
	CodeAttempts    int
	SessionTTL      time.Duration
	EmailTimeout    time.Duration
	CookieDomain    string
	CleanupInterval time.Duration
	TimingBaseMs    int
	TimingRandomMs  int
	TimingOnSuccess bool
}

type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
	SweepInterval    time.Duration
}

// Presets builds the per-action limiter configuration from the loaded values
func (c RateLimitConfig) Presets() map[string]ratelimit.Config {
	return map[string]ratelimit.Config{
		ratelimit.ActionLogin: {
			MaxAttempts: c.LoginMaxAttempts,
			Window:      c.LoginWindow,
		},
	}
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	Enabled     bool
}

// RedisConfig is optional; with Addr empty the service keeps all limiter
// and session state in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			CodeTTL:         getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			CodeAttempts:    getEnvAsInt("VERIFICATION_CODE_ATTEMPTS", 5),
			SessionTTL:      getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			EmailTimeout:    getEnvAsDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
			CookieDomain:    getEnv("COOKIE_DOMAIN", ""),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 15*time.Minute),
			TimingBaseMs:    getEnvAsInt("AUTH_TIMING_BASE_MS", 100),
			TimingRandomMs:  getEnvAsInt("AUTH_TIMING_RANDOM_MS", 200),
			TimingOnSuccess: getEnvAsBool("AUTH_TIMING_ON_SUCCESS", true),
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: getEnvAsInt("RATE_LIMIT_LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:      getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			SweepInterval:    getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
			Enabled:     getEnvAsBool("EMAIL_ENABLED", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.RateLimit.LoginMaxAttempts <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_LOGIN_MAX_ATTEMPTS must be positive")
	}
	if cfg.RateLimit.LoginWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_LOGIN_WINDOW must be positive")
	}
	if cfg.Auth.CodeAttempts <= 0 {
		return nil, fmt.Errorf("VERIFICATION_CODE_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
