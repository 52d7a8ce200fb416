package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithMemoryStore(t *testing.T) {
	t.Setenv("REWARD_STORE", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RateLimit.UserLimit)
	assert.Equal(t, time.Second, cfg.RateLimit.UserWindow)
	assert.Equal(t, int64(3), cfg.Quota.DailyCap)
	assert.Equal(t, "UTC", cfg.Quota.Timezone)
	assert.Equal(t, 3*time.Second, cfg.MySQL.LockTimeout)
	assert.Equal(t, 100, cfg.Bulk.ChunkSize)
	assert.Equal(t, int64(100000), cfg.Bulk.MaxRange)
	assert.Equal(t, "localFallbackLimiter", cfg.RateLimit.FallbackName)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
app:
  store: memory
  port: 9090
quota:
  dailyCap: 5
  timezone: Asia/Seoul
rateLimit:
  userLimit: 20
  userWindow: 2s
notification:
  maxConcurrent: 4
  maxWait: 50ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, int64(5), cfg.Quota.DailyCap)
	assert.Equal(t, 20, cfg.RateLimit.UserLimit)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.UserWindow)
	assert.Equal(t, int64(4), cfg.Notification.MaxConcurrent)
	assert.Equal(t, 50*time.Millisecond, cfg.Notification.MaxWait)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
	// 未出现的字段保留默认值
	assert.Equal(t, 100, cfg.Bulk.ChunkSize)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "app:\n  store: memory\n  port: 9090\n")
	t.Setenv("REWARD_HTTP_PORT", "7070")
	t.Setenv("REWARD_QUOTA_DAILY_CAP", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, int64(7), cfg.Quota.DailyCap)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{name: "unknown store", yaml: "app:\n  store: sqlite\n"},
		{name: "mysql without dsn", yaml: "app:\n  store: mysql\n"},
		{name: "zero cap", yaml: "app:\n  store: memory\nquota:\n  dailyCap: 0\n"},
		{name: "bad zone", yaml: "app:\n  store: memory\nquota:\n  timezone: Mars/Base\n"},
		{name: "unknown sender", yaml: "app:\n  store: memory\nnotification:\n  sender: smtp\n"},
		{name: "zero bulk max range", yaml: "app:\n  store: memory\nbulk:\n  maxRange: 0\n"},
		{name: "default range over max", yaml: "app:\n  store: memory\nbulk:\n  userTo: 5000\n  maxRange: 1000\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadPortEnv(t *testing.T) {
	t.Setenv("REWARD_STORE", "memory")
	t.Setenv("REWARD_HTTP_PORT", "eighty")
	_, err := Load("")
	assert.Error(t, err)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("REWARD_STORE", "memory")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
}
