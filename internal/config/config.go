// Package config loads runtime settings from the environment, with
// optional .env file support.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Log levels accepted by ARTDR_LOG_LEVEL.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config holds all settings for one invocation.
type Config struct {
	// Storage
	DBPath string

	// Back-ends
	Python      string
	CatalogPath string

	// Observability
	LogLevel    string
	MetricsFile string

	// Payload publishing (disabled when S3Endpoint is empty)
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Secure    bool
	S3Prefix    string
}

// Load reads .env files and then the environment. Variables already set
// in the environment win over .env values. With no files given, ./.env is
// tried and may be absent; files named explicitly must exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		DBPath:      getEnv("ARTDR_DB", "art.sqlite"),
		Python:      getEnv("ARTDR_PYTHON", "python3"),
		CatalogPath: os.Getenv("ARTDR_CATALOG"),
		LogLevel:    getEnv("ARTDR_LOG_LEVEL", LevelWarn),
		MetricsFile: os.Getenv("ARTDR_METRICS_FILE"),
		S3Endpoint:  os.Getenv("ARTDR_S3_ENDPOINT"),
		S3Bucket:    getEnv("ARTDR_S3_BUCKET", "artdr"),
		S3AccessKey: os.Getenv("ARTDR_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("ARTDR_S3_SECRET_KEY"),
		S3Secure:    getEnvBool("ARTDR_S3_SECURE", true),
		S3Prefix:    os.Getenv("ARTDR_S3_PREFIX"),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("ARTDR_DB must not be empty")
	}
	switch c.LogLevel {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("ARTDR_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.PublishEnabled() {
		if c.S3Bucket == "" {
			return fmt.Errorf("ARTDR_S3_BUCKET must be set when ARTDR_S3_ENDPOINT is")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("ARTDR_S3_ACCESS_KEY and ARTDR_S3_SECRET_KEY must be set when ARTDR_S3_ENDPOINT is")
		}
	}
	return nil
}

// PublishEnabled reports whether an object store is configured.
func (c *Config) PublishEnabled() bool {
	return c.S3Endpoint != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
