// Package config 读取yaml配置，并支持.env与AKSMES_*环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "AKSMES_"

// Config 全局配置
type Config struct {
	Symbols  []string `yaml:"symbols"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	Providers ProvidersConfig `yaml:"providers"`
	Valuation struct {
		Years int `yaml:"years"`
	} `yaml:"valuation"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// CacheConfig 报表缓存配置
type CacheConfig struct {
	Dir   string `yaml:"dir"`
	Size  int    `yaml:"size"`
	Watch bool   `yaml:"watch"`
}

// ProvidersConfig 数据源配置
type ProvidersConfig struct {
	Enabled             []string      `yaml:"enabled"`
	Primary             string        `yaml:"primary"`
	Timeout             time.Duration `yaml:"timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	Eastmoney           struct {
		F10URL        string `yaml:"f10_url"`
		DatacenterURL string `yaml:"datacenter_url"`
		MaxPeriods    int    `yaml:"max_periods"`
	} `yaml:"eastmoney"`
	Sina struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"sina"`
	Tencent struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"tencent"`
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "data/aksmes.db"
	cfg.Http.Port = 8080
	cfg.Log = LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30}
	cfg.Cache = CacheConfig{Dir: "data/statements", Size: 256, Watch: true}
	cfg.Providers.Enabled = []string{"eastmoney", "sina", "tencent"}
	cfg.Providers.Timeout = 10 * time.Second
	cfg.Valuation.Years = 5
	return cfg
}

// Load 读取配置文件（不存在时使用默认值），再加载.env并应用环境变量
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	str("DB_PATH", &c.Database.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("CACHE_DIR", &c.Cache.Dir)
	str("PRIMARY_PROVIDER", &c.Providers.Primary)
	list("PROVIDERS", &c.Providers.Enabled)
	list("SYMBOLS", &c.Symbols)

	if v, ok := os.LookupEnv(envPrefix + "HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_PORT: %w", envPrefix, err)
		}
		c.Http.Port = port
	}
	if v, ok := os.LookupEnv(envPrefix + "PROVIDER_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sPROVIDER_TIMEOUT: %w", envPrefix, err)
		}
		c.Providers.Timeout = d
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var knownProviders = map[string]bool{"eastmoney": true, "sina": true, "tencent": true, "mock": true}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Cache.Dir == "" {
		return errors.New("cache.dir is required")
	}
	if len(c.Providers.Enabled) == 0 {
		return errors.New("at least one provider must be enabled")
	}
	for _, p := range c.Providers.Enabled {
		if !knownProviders[p] {
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	if c.Providers.Primary != "" && !contains(c.Providers.Enabled, c.Providers.Primary) {
		return fmt.Errorf("primary provider %q is not enabled", c.Providers.Primary)
	}
	if c.Valuation.Years <= 0 {
		c.Valuation.Years = 5
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
