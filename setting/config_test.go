package setting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 恢复包级配置，避免用例之间互相污染
func snapshotConfig(t *testing.T) {
	t.Helper()
	configMu.RLock()
	saved := config
	savedPath := configPath
	configMu.RUnlock()
	t.Cleanup(func() {
		configMu.Lock()
		config = saved
		configPath = savedPath
		configMu.Unlock()
	})
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	snapshotConfig(t)

	err := LoadConfig(filepath.Join(t.TempDir(), "no-such.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8899, ServerPort())
	assert.Equal(t, "https://sora.chatgpt.com", SoraBaseURL())
	assert.Equal(t, "0fffff", PowDifficulty())
	assert.Equal(t, 500000, PowMaxIterations())
	assert.Equal(t, 30*time.Second, AccountCacheTTL())
	assert.Equal(t, 300*time.Second, ImageTimeout())
	assert.Equal(t, 1500*time.Second, VideoTimeout())
	assert.Equal(t, 300, SoraMaxPollTimes())
	assert.False(t, RedisSharedPool())
}

func TestLoadConfigFromFile(t *testing.T) {
	snapshotConfig(t)

	path := filepath.Join(t.TempDir(), "setting.toml")
	content := `
[server]
host = "127.0.0.1"
port = 9100

[sora]
poll_interval = 5
max_poll_attempts = 60

[cache]
account_ttl = 10
file_enabled = true
file_dir = "cache/media"

[redis]
shared_pool = true
lock_timeout = 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, LoadConfig(path))

	assert.Equal(t, "127.0.0.1", ServerHost())
	assert.Equal(t, 9100, ServerPort())
	assert.Equal(t, 5*time.Second, SoraPollInterval())
	assert.Equal(t, 60, SoraMaxPollTimes())
	assert.Equal(t, 10*time.Second, AccountCacheTTL())
	assert.True(t, FileCacheEnabled())
	assert.Equal(t, "cache/media", FileCacheDir())
	assert.True(t, RedisSharedPool())
	assert.Equal(t, 120*time.Second, LockTimeout())
	// 文件里没写的段保持默认
	assert.Equal(t, "https://chatgpt.com", ChatGPTBaseURL())
	assert.Equal(t, 3, SoraMaxRetries())
}

func TestLoadConfigBadToml(t *testing.T) {
	snapshotConfig(t)

	path := filepath.Join(t.TempDir(), "setting.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport="), 0o644))
	assert.Error(t, LoadConfig(path))
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	snapshotConfig(t)
	t.Setenv("API_KEY", "sk-from-env")
	t.Setenv("PORT", "7001")

	path := filepath.Join(t.TempDir(), "setting.toml")
	content := `
[global]
api_key = "sk-from-file"

[server]
port = 9100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, LoadConfig(path))

	// 环境变量优先于文件
	assert.Equal(t, "sk-from-env", ApiKey())
	assert.Equal(t, 7001, ServerPort())
}

func TestReloadPicksUpChanges(t *testing.T) {
	snapshotConfig(t)

	path := filepath.Join(t.TempDir(), "setting.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9100\n"), 0o644))
	require.NoError(t, LoadConfig(path))
	require.Equal(t, 9100, ServerPort())

	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9200\n"), 0o644))
	require.NoError(t, Reload())
	assert.Equal(t, 9200, ServerPort())
}
