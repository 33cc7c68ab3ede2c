package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Http.Port != 8080 || cfg.Cache.Dir != "data/statements" || cfg.Valuation.Years != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Providers.Enabled) != 3 {
		t.Errorf("providers = %v", cfg.Providers.Enabled)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
symbols: [sh600519, sz000001]
database:
  path: /tmp/test.db
http:
  port: 9090
log:
  level: debug
cache:
  dir: /tmp/cache
  size: 16
providers:
  enabled: [mock]
  primary: mock
  timeout: 3s
`)
	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Http.Port != 9090 || cfg.Database.Path != "/tmp/test.db" || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Symbols) != 2 || cfg.Cache.Size != 16 || cfg.Providers.Primary != "mock" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Providers.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", cfg.Providers.Timeout)
	}
	// 未出现在文件中的字段保留默认值
	if cfg.Log.MaxSizeMB != 50 {
		t.Errorf("max size = %d", cfg.Log.MaxSizeMB)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, "test.env", "AKSMES_CACHE_DIR=/from/dotenv\nAKSMES_SYMBOLS=sh600000, bj830799\n")

	t.Setenv("AKSMES_HTTP_PORT", "7070")
	t.Setenv("AKSMES_PROVIDERS", "sina,mock")
	t.Setenv("AKSMES_PRIMARY_PROVIDER", "mock")
	t.Setenv("AKSMES_CACHE_DIR", "/from/env")
	// godotenv 写入的变量在测试结束后清理
	t.Setenv("AKSMES_SYMBOLS", "")
	os.Unsetenv("AKSMES_SYMBOLS")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Http.Port != 7070 || cfg.Providers.Primary != "mock" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Cache.Dir != "/from/env" {
		t.Errorf("existing env should win over .env, got %s", cfg.Cache.Dir)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "bj830799" {
		t.Errorf("symbols = %v", cfg.Symbols)
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "missing.env")
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "http:\n  port: 70000\n"},
		{"unknown provider", "providers:\n  enabled: [yahoo]\n"},
		{"primary not enabled", "providers:\n  enabled: [sina]\n  primary: mock\n"},
		{"malformed", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "c.yaml", tt.yaml)
			if _, err := Load(path, noEnv); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Setenv("AKSMES_HTTP_PORT", "eighty")
	if _, err := Load("", noEnv); err == nil {
		t.Error("expected error for non-numeric port")
	}
}
