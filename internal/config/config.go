// Package config assembles runtime settings from an optional .env file and
// the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/tropicaldog17/finledger/internal/db"
)

// Config holds the settings shared by the server and the migrate tool
type Config struct {
	DB         *db.Config
	ServerPort string
	LogEnv     string

	// PopulateRatePerSec caps provider calls made by price population.
	PopulateRatePerSec float64
	PopulateMaxRetries uint64

	// Quote endpoint used by price population. Empty disables population.
	PriceProviderName     string
	PriceProviderEndpoint string
	PriceProviderAuthType string
	PriceProviderAuthKey  string
	PriceProviderPath     string
}

// Load reads files (".env" when none are given) into the environment without
// overriding variables that are already set, then builds the Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	rate, err := strconv.ParseFloat(getEnv("POPULATE_RATE_PER_SEC", "10"), 64)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid POPULATE_RATE_PER_SEC %q", os.Getenv("POPULATE_RATE_PER_SEC"))
	}
	retries, err := strconv.ParseUint(getEnv("POPULATE_MAX_RETRIES", "3"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid POPULATE_MAX_RETRIES %q", os.Getenv("POPULATE_MAX_RETRIES"))
	}

	return &Config{
		DB:                 db.NewConfig(),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogEnv:             getEnv("LOG_ENV", getEnv("APP_ENV", "development")),
		PopulateRatePerSec: rate,
		PopulateMaxRetries: retries,

		PriceProviderName:     getEnv("PRICE_PROVIDER_NAME", "http"),
		PriceProviderEndpoint: os.Getenv("PRICE_PROVIDER_ENDPOINT"),
		PriceProviderAuthType: os.Getenv("PRICE_PROVIDER_AUTH_TYPE"),
		PriceProviderAuthKey:  os.Getenv("PRICE_PROVIDER_AUTH_VALUE"),
		PriceProviderPath:     getEnv("PRICE_PROVIDER_RESPONSE_PATH", "close"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
