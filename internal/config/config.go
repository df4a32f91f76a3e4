// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	BackendBaseURL string
	BackendToken   string
	BackendTimeout time.Duration
	ClinicsPath    string
	InventoryPath  string
	SerialsPath    string
	TransferPath   string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	RedisAddr string
	MySQLDSN  string
	DraftTTL  time.Duration

	LogLevel       string
	LogDevelopment bool
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":50051"),
		BackendBaseURL: getenv("BACKEND_BASE_URL", "http://localhost:8000/api/"),
		BackendToken:   os.Getenv("BACKEND_TOKEN"),
		ClinicsPath:    getenv("CLINICS_PATH", "accounts/clinics/"),
		InventoryPath:  getenv("INVENTORY_PATH", "clinical/inventory/flat-list/"),
		SerialsPath:    getenv("SERIALS_PATH", "clinical/inventory/serial/list/"),
		TransferPath:   getenv("TRANSFER_PATH", "clinical/inventory/transfer/"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		MySQLDSN:       getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stocktransfer?parseTime=true"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.BackendTimeout, err = duration("BACKEND_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BreakerOpenTimeout, err = duration("BREAKER_OPEN_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DraftTTL, err = duration("DRAFT_TTL", 12*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LogDevelopment, err = boolean("LOG_DEVELOPMENT", false); err != nil {
		return Config{}, err
	}

	failures, err := integer("BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	if failures < 1 {
		return Config{}, fmt.Errorf("BREAKER_MAX_FAILURES must be positive, got %d", failures)
	}
	cfg.BreakerMaxFailures = uint32(failures)

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func integer(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func boolean(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
