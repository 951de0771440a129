package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	ServerAddr          string
	EngagementTTL       time.Duration
	VerificationTTL     time.Duration
	MaxVerifyAttempts   int
	ExpirySweepInterval time.Duration
	FraudFlagThreshold  float64
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	return &Config{
		ServerAddr:          getenv("SERVER_ADDR", "0.0.0.0:8080"),
		EngagementTTL:       parseDuration(getenv("ENGAGEMENT_TTL", "30m"), 30*time.Minute),
		VerificationTTL:     parseDuration(getenv("VERIFICATION_TOKEN_TTL", "5m"), 5*time.Minute),
		MaxVerifyAttempts:   parseInt(getenv("VERIFICATION_MAX_ATTEMPTS", "3"), 3),
		ExpirySweepInterval: parseDuration(getenv("EXPIRY_SWEEP_INTERVAL", "1m"), time.Minute),
		FraudFlagThreshold:  parseFloat(getenv("FRAUD_FLAG_THRESHOLD", "1.0"), 1.0),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(val string, def float64) float64 {
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return def
	}
	return f
}
