package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile      string
	APIAddr     string
	BaseURL     string
	JWTSecret   string
	TokenExpiry time.Duration
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:      getEnv("DRAWIO_DB", "drawio.db"),
		APIAddr:     getEnv("API_ADDR", ":8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: tokenExpiry,
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.JWTSecret == "" && !cliMode {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
