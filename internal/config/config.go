package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingJWTSecret is returned by Load when JWT_SECRET is not set.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// Config holds the application configuration. The YAML keys are those of fileConfig.
type Config struct {
	Env                string
	ServerPort         string
	DBDriver           string
	DBDSN              string
	JWTSecret          string
	RedisURL           string
	UnmutePollInterval time.Duration
	MessageFetchLimit  int
}

// Load builds config from the environment. A .env file in the working
// directory is applied first when present, and a YAML file named by
// DISCUSS_CONFIG is overlaid last.
func Load() (*Config, error) {
	// a missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	c := &Config{
		Env:                os.Getenv("APP_ENV"),
		ServerPort:         os.Getenv("SERVER_PORT"),
		DBDriver:           os.Getenv("DB_DRIVER"),
		DBDSN:              os.Getenv("DB_DSN"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisURL:           os.Getenv("REDIS_URL"),
		UnmutePollInterval: 30 * time.Second,
		MessageFetchLimit:  30,
	}
	if s := os.Getenv("UNMUTE_POLL_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid UNMUTE_POLL_INTERVAL %q: %w", s, err)
		}
		c.UnmutePollInterval = d
	}
	if s := os.Getenv("MESSAGE_FETCH_LIMIT"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid MESSAGE_FETCH_LIMIT %q: %w", s, err)
		}
		c.MessageFetchLimit = n
	}
	if path := os.Getenv("DISCUSS_CONFIG"); path != "" {
		if err := c.overlayFile(path); err != nil {
			return nil, err
		}
	}
	c.applyDefaults()
	if c.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBDSN == "" && c.DBDriver == "mysql" {
		c.DBDSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}
	if c.DBDSN == "" && c.DBDriver == "sqlite" {
		c.DBDSN = "discuss.db"
	}
	if c.UnmutePollInterval <= 0 {
		c.UnmutePollInterval = 30 * time.Second
	}
	if c.MessageFetchLimit <= 0 {
		c.MessageFetchLimit = 30
	}
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
