package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reconcile")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.AutoMigrate)
	assert.False(t, cfg.AllowDelete)
	assert.False(t, cfg.SendKeyEmail)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 10*time.Minute, cfg.ApplyTimeout)
	assert.Equal(t, 15*time.Second, cfg.DirectoryTimeout)
	assert.Equal(t, LockBackendPostgres, cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.RedisTTL)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, "X-Actor", cfg.ActorHeader)
	assert.Equal(t, SafetyOptions{WarnDisableCount: 5, WarnDeleteCount: 1, WarnGroupClearCount: 5, WarnCreateCount: 10, RequireTypedConfirm: true}, cfg.Safety)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/reconcile")
	t.Setenv("ALLOW_DELETE", "true")
	t.Setenv("APPLY_TIMEOUT", "90s")
	t.Setenv("LOCK_BACKEND", "Redis")
	t.Setenv("LOCK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WARN_DELETE_COUNT", "0")
	t.Setenv("REQUIRE_TYPED_CONFIRM", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowDelete)
	assert.Equal(t, 90*time.Second, cfg.ApplyTimeout)
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, 0, cfg.Safety.WarnDeleteCount)
	assert.False(t, cfg.Safety.RequireTypedConfirm)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown lock backend": {"LOCK_BACKEND": "etcd"},
		"redis without url":    {"LOCK_BACKEND": "redis"},
		"bad log level":        {"LOG_LEVEL": "loud"},
		"bad metrics path":     {"METRICS_PATH": "metrics"},
		"zero upload":          {"MAX_UPLOAD_BYTES": "0"},
		"bad duration":         {"APPLY_TIMEOUT": "soon"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/reconcile")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TARGETS_FILE=/etc/reconcile/targets.yaml\n"), 0o600))
	t.Setenv("DATABASE_URL", "postgres://localhost/reconcile")
	t.Setenv("TARGETS_FILE", "")
	os.Unsetenv("TARGETS_FILE")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "/etc/reconcile/targets.yaml", cfg.TargetsFile)
}

func TestConfig_Logger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	logger := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
