package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tonstation_bot/internal/utils"
)

// DefaultSkipQuestIDs 是默认跳过的任务（需要人工操作，自动领取会失败）。
var DefaultSkipQuestIDs = []string{"66dad41d9b1e65019ad30629", "66f560c1c6fc8ba931b33420"}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Limits   LimitsConfig   `yaml:"limits"`
	Loop     LoopConfig     `yaml:"loop"`
	Data     DataConfig     `yaml:"data"`
	Quests   QuestsConfig   `yaml:"quests"`
	Provider ProviderConfig `yaml:"provider"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type ServerConfig struct {
	Enabled bool       `yaml:"enabled"`
	Addr    string     `yaml:"addr"`
	Cors    CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlitePath"`
	// KeepPasses 保留最近多少轮的记录，<0 表示不清理。
	KeepPasses int `yaml:"keepPasses"`
}

type ProxyConfig struct {
	Global string `yaml:"global"`
}

type LimitsConfig struct {
	GlobalQPS   float64 `yaml:"globalQPS"`
	GlobalBurst int     `yaml:"globalBurst"`
}

type LoopConfig struct {
	// AccountPauseMs 每个账号处理完后的停顿，避免触发上游限流。未配置时 1000，0 表示不停顿。
	AccountPauseMs *int `yaml:"accountPauseMs"`
	// CycleWaitMinutes 一轮所有账号跑完后的等待时间（farm 周期为 8 小时）。
	CycleWaitMinutes int  `yaml:"cycleWaitMinutes"`
	Once             bool `yaml:"once"`
}

func (c LoopConfig) AccountPause() time.Duration {
	if c.AccountPauseMs == nil || *c.AccountPauseMs < 0 {
		return 1 * time.Second
	}
	return time.Duration(*c.AccountPauseMs) * time.Millisecond
}

func (c LoopConfig) CycleWait() time.Duration {
	if c.CycleWaitMinutes <= 0 {
		return 480 * time.Minute
	}
	return time.Duration(c.CycleWaitMinutes) * time.Minute
}

type DataConfig struct {
	CredentialsPath string `yaml:"credentialsPath"`
}

type QuestsConfig struct {
	SkipIDs []string `yaml:"skipIds"`
}

type ProviderConfig struct {
	BaseURL   string `yaml:"baseURL"`
	Origin    string `yaml:"origin"`
	TimeoutMs int    `yaml:"timeoutMs"`
	UserAgent string `yaml:"userAgent"`
}

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type NotifyConfig struct {
	Email EmailConfig `yaml:"email"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	AuthCode string `yaml:"authCode"`
}

// Load reads path; a missing file means "all defaults".
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/tonstation_bot.db"
	}
	if c.Storage.KeepPasses == 0 {
		c.Storage.KeepPasses = 500
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 5
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 10
	}
	if c.Data.CredentialsPath == "" {
		c.Data.CredentialsPath = "./data.txt"
	}
	// 显式写 skipIds: [] 表示不跳过任何任务，只有完全没配置时才用默认值
	if c.Quests.SkipIDs == nil {
		c.Quests.SkipIDs = append([]string(nil), DefaultSkipQuestIDs...)
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://tonstation.app"
	}
	c.Provider.BaseURL = strings.TrimRight(c.Provider.BaseURL, "/")
	if c.Provider.Origin == "" {
		c.Provider.Origin = c.Provider.BaseURL
	}
	c.Provider.UserAgent = utils.NormalizeMobileUserAgent(c.Provider.UserAgent)
}

func (c Config) validate() error {
	if c.Provider.BaseURL == "" {
		return errors.New("provider.baseURL is required")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Notify.Email.Enabled && strings.TrimSpace(c.Notify.Email.Email) == "" {
		return errors.New("notify.email.email is required when email is enabled")
	}
	return nil
}
