// Package cfg assembles the server configuration: built-in defaults,
// overlaid with an optional YAML file, overlaid with XTTS_* environment
// variables (loaded from .env when present).
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/witwicki/streaming-xtts/internal/app/api"
	"github.com/witwicki/streaming-xtts/internal/app/archive"
	"github.com/witwicki/streaming-xtts/internal/app/session"
	"github.com/witwicki/streaming-xtts/pkg/engine"
)

type Config struct {
	Api api.Config `yaml:"api"`

	Engine engine.Config `yaml:"engine"`

	Session session.Config `yaml:"session"`

	Archive archive.Config `yaml:"archive"`
}

func Default() *Config {
	return &Config{
		Api: api.Config{
			Port:    8003,
			Timeout: 10 * time.Second,
		},
		Engine: engine.Config{
			URL:                "http://localhost:8020",
			SampleRate:         24000,
			MaxConcurrentCalls: 2,
		},
		Session: session.Config{
			HandshakeTimeout: session.DefaultHandshakeTimeout,
			SegmentTimeout:   session.DefaultSegmentTimeout,
			AdmissionTimeout: session.DefaultAdmissionTimeout,
			DrainTimeout:     session.DefaultDrainTimeout,
			MaxTries:         session.DefaultMaxTries,
			RetryInterval:    session.DefaultRetryInterval,
		},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped when
// path is empty, an error when set but unreadable) and XTTS_* environment
// overrides, in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Api.Port <= 0 || c.Api.Port > 65535 {
		return fmt.Errorf("invalid api port: %d", c.Api.Port)
	}

	if c.Engine.URL == "" {
		return fmt.Errorf("engine url is required")
	}

	if c.Engine.SampleRate <= 0 {
		return fmt.Errorf("invalid engine sample rate: %d", c.Engine.SampleRate)
	}

	if c.Engine.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("invalid engine max concurrent calls: %d", c.Engine.MaxConcurrentCalls)
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.Api.Port = getEnvInt("XTTS_API_PORT", cfg.Api.Port)

	cfg.Engine.URL = getEnv("XTTS_ENGINE_URL", cfg.Engine.URL)
	cfg.Engine.SampleRate = getEnvInt("XTTS_ENGINE_SAMPLE_RATE", cfg.Engine.SampleRate)
	cfg.Engine.MaxConcurrentCalls = getEnvInt("XTTS_ENGINE_MAX_CONCURRENT_CALLS", cfg.Engine.MaxConcurrentCalls)

	cfg.Archive.Enabled = getEnvBool("XTTS_ARCHIVE_ENABLED", cfg.Archive.Enabled)
	cfg.Archive.Dir = getEnv("XTTS_ARCHIVE_DIR", cfg.Archive.Dir)

	cfg.Archive.S3.Endpoint = getEnv("XTTS_S3_ENDPOINT", cfg.Archive.S3.Endpoint)
	cfg.Archive.S3.AccessKeyID = getEnv("XTTS_S3_ACCESS_KEY", cfg.Archive.S3.AccessKeyID)
	cfg.Archive.S3.SecretAccessKey = getEnv("XTTS_S3_SECRET_KEY", cfg.Archive.S3.SecretAccessKey)
	cfg.Archive.S3.Bucket = getEnv("XTTS_S3_BUCKET", cfg.Archive.S3.Bucket)
	cfg.Archive.S3.UseSSL = getEnvBool("XTTS_S3_USE_SSL", cfg.Archive.S3.UseSSL)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}

	return b
}
