package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv はテスト中に参照される環境変数を空にする。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "NODE_ENV", "APP_ENV", "TRUSTED_PROXIES", "SHUTDOWN_TIMEOUT",
		"ALLOWED_ORIGINS", "JWT_SECRET", "TOKEN_TTL", "DEMO_USER_ID", "DEMO_USERNAME",
		"DEMO_PASSWORD", "RATE_LIMIT_WINDOW", "RATE_LIMIT_MAX", "AUTH_RATE_LIMIT_MAX",
		"RATE_LIMIT_STORE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "GLOBAL_RPS",
		"GLOBAL_BURST", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("環境変数がなければデフォルト値を使う", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != "5000" {
			t.Errorf("Port = %q, want %q", cfg.Server.Port, "5000")
		}
		if !cfg.IsDevelopment() {
			t.Errorf("Environment = %q, want development", cfg.Server.Environment)
		}
		if cfg.RateLimit.Window != 15*time.Minute {
			t.Errorf("Window = %v, want 15m", cfg.RateLimit.Window)
		}
		if cfg.RateLimit.Max != 100 || cfg.RateLimit.AuthMax != 5 {
			t.Errorf("Max/AuthMax = %d/%d, want 100/5", cfg.RateLimit.Max, cfg.RateLimit.AuthMax)
		}
		if cfg.Auth.TokenTTL != 24*time.Hour {
			t.Errorf("TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
		}
		if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "http://localhost:3000" {
			t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
		}
	})

	t.Run("環境変数で上書きできる", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "8080")
		t.Setenv("NODE_ENV", "production")
		t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com ,")
		t.Setenv("JWT_SECRET", "super-secret")
		t.Setenv("RATE_LIMIT_WINDOW", "1m")
		t.Setenv("RATE_LIMIT_MAX", "10")
		t.Setenv("AUTH_RATE_LIMIT_MAX", "3")
		t.Setenv("GLOBAL_RPS", "2.5")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("Port = %q, want %q", cfg.Server.Port, "8080")
		}
		if cfg.IsDevelopment() {
			t.Error("production should not be development")
		}
		want := []string{"https://shop.example.com", "https://admin.example.com"}
		if len(cfg.CORS.AllowedOrigins) != len(want) {
			t.Fatalf("AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, want)
		}
		for i := range want {
			if cfg.CORS.AllowedOrigins[i] != want[i] {
				t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.CORS.AllowedOrigins[i], want[i])
			}
		}
		if cfg.Auth.JWTSecret != "super-secret" {
			t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
		}
		if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.Max != 10 || cfg.RateLimit.AuthMax != 3 {
			t.Errorf("RateLimit = %+v", cfg.RateLimit)
		}
		if cfg.RateLimit.GlobalRPS != 2.5 {
			t.Errorf("GlobalRPS = %v, want 2.5", cfg.RateLimit.GlobalRPS)
		}
	})

	t.Run("APP_ENVはNODE_ENVより優先される", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NODE_ENV", "production")
		t.Setenv("APP_ENV", "staging")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Environment != "staging" {
			t.Errorf("Environment = %q, want staging", cfg.Server.Environment)
		}
	})

	t.Run("数値として解釈できない値はエラーになる", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RATE_LIMIT_MAX", "many")
		t.Setenv("TOKEN_TTL", "forever")

		_, err := Load()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, key := range []string{"RATE_LIMIT_MAX", "TOKEN_TTL"} {
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error %q should mention %s", err, key)
			}
		}
	})

	t.Run("YAMLファイルの値を環境変数がさらに上書きする", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: "7000"
  environment: production
cors:
  allowedOrigins:
    - https://dhakacart.example.com
rateLimit:
  window: 30s
  max: 20
  store: redis
  redis:
    addr: redis:6379
    db: 2
log:
  format: json
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("RATE_LIMIT_MAX", "50")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Port != "7000" {
			t.Errorf("Port = %q, want 7000", cfg.Server.Port)
		}
		if cfg.RateLimit.Window != 30*time.Second {
			t.Errorf("Window = %v, want 30s", cfg.RateLimit.Window)
		}
		if cfg.RateLimit.Max != 50 {
			t.Errorf("Max = %d, want 50 (env override)", cfg.RateLimit.Max)
		}
		if cfg.RateLimit.AuthMax != 5 {
			t.Errorf("AuthMax = %d, want default 5", cfg.RateLimit.AuthMax)
		}
		if cfg.RateLimit.Store != "redis" || cfg.RateLimit.Redis.Addr != "redis:6379" || cfg.RateLimit.Redis.DB != 2 {
			t.Errorf("Redis = %+v", cfg.RateLimit)
		}
		if cfg.Log.Format != "json" {
			t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
		}
	})

	t.Run("存在しない設定ファイルはエラーになる", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

		if _, err := Load(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト値は妥当", func(t *testing.T) {
		t.Parallel()
		if err := Default().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("上限が0以下ならエラー", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.RateLimit.Max = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("署名鍵が空ならエラー", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Auth.JWTSecret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("未知のストアはエラー", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.RateLimit.Store = "memcached"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("不正なポートはエラー", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.Server.Port = "http"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error")
		}
	})
}
