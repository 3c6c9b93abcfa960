package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var DefaultEnvFiles = []string{".env", ".env.local"}

const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
	LockBackendMemory   = "memory"
)

type SafetyOptions struct {
	WarnDisableCount    int  `env:"WARN_DISABLE_COUNT" envDefault:"5"`
	WarnDeleteCount     int  `env:"WARN_DELETE_COUNT" envDefault:"1"`
	WarnGroupClearCount int  `env:"WARN_GROUP_CLEAR_COUNT" envDefault:"5"`
	WarnCreateCount     int  `env:"WARN_CREATE_COUNT" envDefault:"10"`
	RequireTypedConfirm bool `env:"REQUIRE_TYPED_CONFIRM" envDefault:"true"`
}

type LockOptions struct {
	Backend  string        `env:"LOCK_BACKEND" envDefault:"postgres"`
	RedisURL string        `env:"LOCK_REDIS_URL"`
	RedisTTL time.Duration `env:"LOCK_REDIS_TTL" envDefault:"30s"`
}

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`
	ActorHeader string `env:"ACTOR_HEADER" envDefault:"X-Actor"`

	ImportBaseDir  string `env:"IMPORT_BASE_DIR" envDefault:"."`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	TargetsFile    string `env:"TARGETS_FILE" envDefault:"targets.yaml"`

	AllowDelete      bool          `env:"ALLOW_DELETE" envDefault:"false"`
	SendKeyEmail     bool          `env:"SEND_KEY_EMAIL" envDefault:"false"`
	ApplyTimeout     time.Duration `env:"APPLY_TIMEOUT" envDefault:"10m"`
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"15s"`

	Lock   LockOptions
	Safety SafetyOptions
}

// LoadEnvFiles loads whichever of files exist; variables already set in the process win.
func LoadEnvFiles(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnvFiles(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	switch c.Lock.Backend {
	case LockBackendPostgres, LockBackendMemory:
	case LockBackendRedis:
		if strings.TrimSpace(c.Lock.RedisURL) == "" {
			return fmt.Errorf("LOCK_REDIS_URL is required when LOCK_BACKEND=redis")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be postgres, redis or memory, got %q", c.Lock.Backend)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ApplyTimeout < 0 || c.DirectoryTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with '/'")
	}
	if strings.TrimSpace(c.ActorHeader) == "" {
		return fmt.Errorf("ACTOR_HEADER must not be empty")
	}
	return nil
}

// Logger builds the process logger. JSON lines on stderr.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
