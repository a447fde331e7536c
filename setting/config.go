package setting

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/hancat/sora2api/common"
)

// Config 对应 setting.toml，字段都有可用默认值，文件缺失时直接用默认配置启动
type Config struct {
	Global       GlobalConfig       `toml:"global"`
	Server       ServerConfig       `toml:"server"`
	Sora         SoraConfig         `toml:"sora"`
	Pow          PowConfig          `toml:"pow"`
	Cache        CacheConfig        `toml:"cache"`
	Generation   GenerationConfig   `toml:"generation"`
	TokenRefresh TokenRefreshConfig `toml:"token_refresh"`
	Cloudflare   CloudflareConfig   `toml:"cloudflare"`
	Redis        RedisConfig        `toml:"redis"`
	Proxy        ProxyConfig        `toml:"proxy"`
}

type GlobalConfig struct {
	ApiKey        string `toml:"api_key"`
	AdminUsername string `toml:"admin_username"`
	AdminPassword string `toml:"admin_password"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type SoraConfig struct {
	BaseURL        string `toml:"base_url"`
	ChatGPTBaseURL string `toml:"chatgpt_base_url"`
	TimeoutSeconds int    `toml:"timeout"`
	MaxRetries     int    `toml:"max_retries"`
	PollInterval   int    `toml:"poll_interval"`
	MaxPollTimes   int    `toml:"max_poll_attempts"`
	UserAgent      string `toml:"user_agent"`
}

type PowConfig struct {
	Difficulty    string `toml:"difficulty"`
	MaxIterations int    `toml:"max_iterations"`
}

type CacheConfig struct {
	AccountTTLSeconds int    `toml:"account_ttl"`
	FileEnabled       bool   `toml:"file_enabled"`
	FileDir           string `toml:"file_dir"`
	FileTTLSeconds    int    `toml:"file_ttl"`
}

type GenerationConfig struct {
	ImageTimeoutSeconds int `toml:"image_timeout"`
	VideoTimeoutSeconds int `toml:"video_timeout"`
	// 命中限流后账号冷却的秒数
	RateLimitCooldownSeconds int `toml:"rate_limit_cooldown"`
}

type TokenRefreshConfig struct {
	AutoRefreshEnabled bool `toml:"at_auto_refresh_enabled"`
	// 距离过期多少小时以内触发刷新
	ExpiryWindowHours int `toml:"expiry_window_hours"`
	// 后台检查的最小间隔（秒）
	CheckIntervalSeconds int `toml:"check_interval"`
}

type CloudflareConfig struct {
	Enabled bool   `toml:"enabled"`
	ApiURL  string `toml:"api_url"`
}

type RedisConfig struct {
	// 多实例共享账号池时置为 true，账号互斥锁切换为 Redis 实现
	SharedPool         bool `toml:"shared_pool"`
	LockTimeoutSeconds int  `toml:"lock_timeout"`
}

type ProxyConfig struct {
	URL string `toml:"url"`
}

func defaultConfig() Config {
	return Config{
		Global: GlobalConfig{
			ApiKey:        "",
			AdminUsername: "admin",
			AdminPassword: "admin123",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8899,
		},
		Sora: SoraConfig{
			BaseURL:        "https://sora.chatgpt.com",
			ChatGPTBaseURL: "https://chatgpt.com",
			TimeoutSeconds: 30,
			MaxRetries:     3,
			PollInterval:   2,
			MaxPollTimes:   300,
			UserAgent:      "",
		},
		Pow: PowConfig{
			Difficulty:    "0fffff",
			MaxIterations: 500000,
		},
		Cache: CacheConfig{
			AccountTTLSeconds: 30,
			FileEnabled:       false,
			FileDir:           "data/tmp",
			FileTTLSeconds:    3600,
		},
		Generation: GenerationConfig{
			ImageTimeoutSeconds:      300,
			VideoTimeoutSeconds:      1500,
			RateLimitCooldownSeconds: 300,
		},
		TokenRefresh: TokenRefreshConfig{
			AutoRefreshEnabled:   false,
			ExpiryWindowHours:    24,
			CheckIntervalSeconds: 300,
		},
		Cloudflare: CloudflareConfig{
			Enabled: false,
			ApiURL:  "",
		},
		Redis: RedisConfig{
			SharedPool:         false,
			LockTimeoutSeconds: 300,
		},
		Proxy: ProxyConfig{
			URL: "",
		},
	}
}

var (
	configMu   sync.RWMutex
	config     = defaultConfig()
	configPath string
)

// LoadConfig reads the toml file at path and applies env overrides. A missing
// file is not an error.
func LoadConfig(path string) error {
	configPath = path
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		common.SysLog(fmt.Sprintf("config loaded from %s", path))
	} else if os.IsNotExist(err) {
		common.SysLog(fmt.Sprintf("%s not found, using default config", path))
	} else {
		return err
	}
	applyEnvOverrides(&cfg)

	configMu.Lock()
	config = cfg
	configMu.Unlock()

	if cfg.Global.ApiKey == "" {
		common.SysLog("global.api_key is empty, /v1 endpoints are unauthenticated")
	}
	if cfg.Global.AdminPassword == "admin123" {
		common.SysLog("admin password is still the default value, please change it")
	}
	return nil
}

// Reload re-reads the config file in place. 热更新入口
func Reload() error {
	if configPath == "" {
		return nil
	}
	return LoadConfig(configPath)
}

// 密钥类配置允许用环境变量覆盖文件
func applyEnvOverrides(cfg *Config) {
	cfg.Global.ApiKey = common.GetEnvOrDefaultString("API_KEY", cfg.Global.ApiKey)
	cfg.Global.AdminPassword = common.GetEnvOrDefaultString("ADMIN_PASSWORD", cfg.Global.AdminPassword)
	cfg.Server.Port = common.GetEnvOrDefault("PORT", cfg.Server.Port)
	cfg.Proxy.URL = common.GetEnvOrDefaultString("PROXY_URL", cfg.Proxy.URL)
}

func Get() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

func ApiKey() string              { return Get().Global.ApiKey }
func AdminUsername() string       { return Get().Global.AdminUsername }
func AdminPassword() string       { return Get().Global.AdminPassword }
func ServerHost() string          { return Get().Server.Host }
func ServerPort() int             { return Get().Server.Port }
func SoraBaseURL() string         { return Get().Sora.BaseURL }
func ChatGPTBaseURL() string      { return Get().Sora.ChatGPTBaseURL }
func SoraMaxRetries() int         { return Get().Sora.MaxRetries }
func DefaultUserAgent() string    { return Get().Sora.UserAgent }
func PowDifficulty() string       { return Get().Pow.Difficulty }
func PowMaxIterations() int       { return Get().Pow.MaxIterations }
func FileCacheEnabled() bool      { return Get().Cache.FileEnabled }
func FileCacheDir() string        { return Get().Cache.FileDir }
func CloudflareEnabled() bool     { return Get().Cloudflare.Enabled }
func CloudflareApiURL() string    { return Get().Cloudflare.ApiURL }
func AutoRefreshEnabled() bool    { return Get().TokenRefresh.AutoRefreshEnabled }
func RedisSharedPool() bool       { return Get().Redis.SharedPool }
func GlobalProxyURL() string      { return Get().Proxy.URL }

func SoraTimeout() time.Duration {
	return time.Duration(Get().Sora.TimeoutSeconds) * time.Second
}

func SoraPollInterval() time.Duration {
	return time.Duration(Get().Sora.PollInterval) * time.Second
}

func SoraMaxPollTimes() int {
	return Get().Sora.MaxPollTimes
}

func AccountCacheTTL() time.Duration {
	return time.Duration(Get().Cache.AccountTTLSeconds) * time.Second
}

func FileCacheTTL() time.Duration {
	return time.Duration(Get().Cache.FileTTLSeconds) * time.Second
}

func ImageTimeout() time.Duration {
	return time.Duration(Get().Generation.ImageTimeoutSeconds) * time.Second
}

func VideoTimeout() time.Duration {
	return time.Duration(Get().Generation.VideoTimeoutSeconds) * time.Second
}

func RateLimitCooldown() time.Duration {
	return time.Duration(Get().Generation.RateLimitCooldownSeconds) * time.Second
}

func LockTimeout() time.Duration {
	return time.Duration(Get().Redis.LockTimeoutSeconds) * time.Second
}

func RefreshExpiryWindow() time.Duration {
	return time.Duration(Get().TokenRefresh.ExpiryWindowHours) * time.Hour
}

func RefreshCheckInterval() time.Duration {
	return time.Duration(Get().TokenRefresh.CheckIntervalSeconds) * time.Second
}
