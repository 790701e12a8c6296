package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const devSessionSecret = "user-directory-dev-session-secret"

type Config struct {
	StorageDriver string
	DBDSN         string
	ServerPort    string
	SessionSecret string
	LogLevel      string

	AdminName     string
	AdminPassword string
	BcryptCost    int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsCacheTTL time.Duration

	CORSOrigins          []string
	PublicDir            string
	AdminSessionRequired bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StorageDriver: getEnv("STORAGE_DRIVER", DriverPostgres),
		DBDSN:         firstEnv("DB_DSN", "DATABASE_URL"),
		ServerPort:    firstEnv("SERVER_PORT", "PORT"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AdminName:     getEnv("ADMIN_NAME", "General Administrator"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PublicDir:     os.Getenv("PUBLIC_DIR"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:5500,http://127.0.0.1:5500")),
	}

	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is not set")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "5000"
	}
	var err error
	if cfg.BcryptCost, err = getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return nil, err
	}
	if cfg.BcryptCost < bcrypt.MinCost {
		cfg.BcryptCost = bcrypt.MinCost
	}
	if cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.MaxCost
	}

	if cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.StatsCacheTTL, err = time.ParseDuration(getEnv("STATS_CACHE_TTL", "30s")); err != nil {
		return nil, fmt.Errorf("invalid STATS_CACHE_TTL: %w", err)
	}
	if cfg.AdminSessionRequired, err = strconv.ParseBool(getEnv("ADMIN_SESSION_REQUIRED", "false")); err != nil {
		return nil, fmt.Errorf("invalid ADMIN_SESSION_REQUIRED: %w", err)
	}

	// a known secret lets anyone forge an administrator session
	if cfg.SessionSecret == "" {
		if cfg.AdminSessionRequired {
			return nil, fmt.Errorf("SESSION_SECRET is not set")
		}
		cfg.SessionSecret = devSessionSecret
		log.Println("SESSION_SECRET is not set, using the development secret")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
