// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all runtime configuration for the scraper service.
type Config struct {
	Port                  string
	DatabaseURL           string
	RedisURL              string
	ProxyBaseURL          string  // prefix completed by each account's proxy_port; "" runs direct
	ScrapeIntervalMinutes int     // how often the poll cycle fires
	ContactHistoryCap     int     // contacted-id dedup window size per account
	RequestRPS            float64 // outbound request cap, 0 = unlimited
	LogLevel              string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := 15
	if s := os.Getenv("SCRAPE_INTERVAL_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCRAPE_INTERVAL_MINUTES must be a positive integer, got %q", s)
		}
		interval = v
	}

	historyCap := 50
	if s := os.Getenv("CONTACT_HISTORY_CAP"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("CONTACT_HISTORY_CAP must be a positive integer, got %q", s)
		}
		historyCap = v
	}

	rps := 0.0
	if s := os.Getenv("REQUEST_RPS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("REQUEST_RPS must be a non-negative number, got %q", s)
		}
		rps = v
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           dbURL,
		RedisURL:              redisURL,
		ProxyBaseURL:          os.Getenv("PROXY_URL"),
		ScrapeIntervalMinutes: interval,
		ContactHistoryCap:     historyCap,
		RequestRPS:            rps,
		LogLevel:              level,
	}, nil
}
