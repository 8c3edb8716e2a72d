// Copyright 2025 Certen Protocol
//
// Package config reads the gateway's configuration from environment
// variables. Only the variable names below are read: no legacy aliases,
// no silent fallbacks to a different name.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the gateway service.
type Config struct {
	// Rate limiting (spec.md §6, §4.6-4.7)
	TokenBucketRate     float64
	TokenBucketCapacity int
	LeakyBucketLimit    int

	// Staging buffer (spec.md §4.8)
	BufferMaxSize int

	// External interfaces (spec.md §6)
	CAURL          string
	ValidatorAddr  string
	AMQPURL        string
	PrivateKeyPath string

	// Document store (spec.md §4.11)
	FirestoreEnabled    bool
	FirebaseProjectID   string
	GCPCredentialsFile  string

	// Ambient HTTP surfaces
	HealthAddr  string
	MetricsAddr string

	LogLevel string
}

// Load reads configuration from environment variables. Rate-limit and
// buffer sizing fall back to spec.md's defaults; everything the gateway
// cannot safely guess (CA/validator/broker addresses, signing key) has
// no default and is caught by Validate.
func Load() (*Config, error) {
	cfg := &Config{
		TokenBucketRate:     getEnvFloat("TOKEN_BUCKET_RATE", 5),
		TokenBucketCapacity: getEnvInt("TOKEN_BUCKET_CAPACITY", 30),
		LeakyBucketLimit:    getEnvInt("LEAKY_BUCKET_LIMIT", 10),

		BufferMaxSize: getEnvInt("BUFFER_MAX_SIZE", 80),

		CAURL:          getEnv("CA_URL", ""),
		ValidatorAddr:  getEnv("VALIDATOR_ADDR", ""),
		AMQPURL:        getEnv("AMQP_URL", ""),
		PrivateKeyPath: getEnv("PRIVATE_KEY_PATH", ""),

		FirestoreEnabled:   getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:  getEnv("FIREBASE_PROJECT_ID", ""),
		GCPCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		HealthAddr:  getEnv("HEALTH_ADDR", ":8081"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and
// internally consistent. Call this after Load() before starting the
// service.
func (c *Config) Validate() error {
	var errs []string

	if c.CAURL == "" {
		errs = append(errs, "CA_URL is required but not set")
	}
	if c.ValidatorAddr == "" {
		errs = append(errs, "VALIDATOR_ADDR is required but not set")
	}
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required but not set")
	}
	if c.PrivateKeyPath == "" {
		errs = append(errs, "PRIVATE_KEY_PATH is required but not set")
	}

	if c.TokenBucketRate <= 0 {
		errs = append(errs, "TOKEN_BUCKET_RATE must be > 0")
	}
	if c.TokenBucketCapacity < 1 {
		errs = append(errs, "TOKEN_BUCKET_CAPACITY must be >= 1")
	}
	if c.LeakyBucketLimit < 1 {
		errs = append(errs, "LEAKY_BUCKET_LIMIT must be >= 1")
	}
	if c.BufferMaxSize < 1 {
		errs = append(errs, "BUFFER_MAX_SIZE must be >= 1")
	}

	if c.FirestoreEnabled && c.FirebaseProjectID == "" {
		errs = append(errs, "FIREBASE_PROJECT_ID is required when FIRESTORE_ENABLED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
