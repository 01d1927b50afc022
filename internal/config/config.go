package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// Servers
	Port     string
	GRPCPort string
	GinMode  string

	// Database
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisURL string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Games
	Timezone               string
	CommissionRate         decimal.Decimal
	CrossingIncludeDoubles bool
	SchedulerSpec          string
	ReconcileSpec          string

	// Withdrawals
	WithdrawalSegments []string
	MinWithdrawal      decimal.Decimal
	MaxWithdrawal      decimal.Decimal

	AdminJWTSecret string
}

// LoadEnv reads .env from the working directory, falling back to the parent.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Debug("No .env file found, using system environment variables")
		}
	}
}

// Load builds the configuration from environment variables over defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     envOr("PORT", "8080"),
		GRPCPort: envOr("GRPC_PORT", "50051"),
		GinMode:  os.Getenv("GIN_MODE"),

		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     envOr("DB_HOST", "localhost"),
		DBPort:     envOr("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: envOr("REDIS_URL", "localhost:6379"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "text"),

		Timezone:       envOr("TIMEZONE", "Asia/Kolkata"),
		CommissionRate: decimal.RequireFromString("0.05"),
		SchedulerSpec:  envOr("SCHEDULER_SPEC", "* * * * *"),
		ReconcileSpec:  envOr("RECONCILE_SPEC", "30 3 * * *"),

		WithdrawalSegments: []string{"winning", "deposit"},
		MinWithdrawal:      decimal.NewFromInt(100),
		MaxWithdrawal:      decimal.NewFromInt(1000000),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
	}

	var err error
	if cfg.CommissionRate, err = envDecimal("COMMISSION_RATE", cfg.CommissionRate); err != nil {
		return nil, err
	}
	if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("COMMISSION_RATE must be between 0 and 1, got %s", cfg.CommissionRate)
	}
	if cfg.MinWithdrawal, err = envDecimal("MIN_WITHDRAWAL", cfg.MinWithdrawal); err != nil {
		return nil, err
	}
	if cfg.MaxWithdrawal, err = envDecimal("MAX_WITHDRAWAL", cfg.MaxWithdrawal); err != nil {
		return nil, err
	}
	if cfg.MinWithdrawal.GreaterThan(cfg.MaxWithdrawal) {
		return nil, fmt.Errorf("MIN_WITHDRAWAL %s exceeds MAX_WITHDRAWAL %s", cfg.MinWithdrawal, cfg.MaxWithdrawal)
	}

	if v := os.Getenv("CROSSING_INCLUDE_DOUBLES"); v != "" {
		if cfg.CrossingIncludeDoubles, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid CROSSING_INCLUDE_DOUBLES %q: %w", v, err)
		}
	}

	if v := os.Getenv("WITHDRAWAL_SEGMENTS"); v != "" {
		cfg.WithdrawalSegments = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.WithdrawalSegments = append(cfg.WithdrawalSegments, s)
			}
		}
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location returns the timezone game windows are expressed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN is the MySQL data source name for gorm.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// ConfigureLogging applies level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
