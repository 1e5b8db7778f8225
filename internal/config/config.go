// Package config はアプリケーションの設定を読み込む。
//
// 設定はデフォルト値、CONFIG_FILEで指定したYAMLファイル、環境変数の順に上書きされる。
// カレントディレクトリに .env があれば、読み込み前に環境変数として取り込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvironmentDevelopment は開発環境を表す環境名。
const EnvironmentDevelopment = "development"

// DefaultJWTSecret は JWT_SECRET が未設定の場合に使う開発用の署名鍵。
const DefaultJWTSecret = "dev-secret-key"

// Config はアプリケーション全体の設定。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// Environment は実行環境名（development, production など）。
	Environment string `yaml:"environment"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。
	TrustedProxies []string `yaml:"trustedProxies"`
	// ShutdownTimeout は処理中のリクエストの完了を待つ最大時間。
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CORSConfig はOriginの許可リスト。
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// AuthConfig はトークンとデモ用ログインの設定。
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwtSecret"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
	DemoUserID   string        `yaml:"demoUserID"`
	DemoUsername string        `yaml:"demoUsername"`
	DemoPassword string        `yaml:"demoPassword"`
}

// RateLimitConfig はアドミッション制御の設定。
type RateLimitConfig struct {
	// Window は固定ウィンドウの幅。
	Window time.Duration `yaml:"window"`
	// Max は一般リクエストのウィンドウあたり上限。
	Max int `yaml:"max"`
	// AuthMax はログイン失敗のウィンドウあたり上限。
	AuthMax int `yaml:"authMax"`
	// Store はカウンタの保存先（memory または redis）。
	Store string `yaml:"store"`
	// Redis はStoreがredisの場合の接続設定。
	Redis RedisConfig `yaml:"redis"`
	// GlobalRPS はプロセス全体の秒間リクエスト上限。0で無効。
	GlobalRPS float64 `yaml:"globalRPS"`
	// GlobalBurst はプロセス全体のバースト許容量。
	GlobalBurst int `yaml:"globalBurst"`
}

// RedisConfig はRedisの接続設定。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default はデフォルト値で埋めた設定を返す。
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "5000",
			Environment:     EnvironmentDevelopment,
			ShutdownTimeout: 10 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: AuthConfig{
			JWTSecret:    DefaultJWTSecret,
			TokenTTL:     24 * time.Hour,
			DemoUserID:   "1",
			DemoUsername: "admin",
			DemoPassword: "password123",
		},
		RateLimit: RateLimitConfig{
			Window:      15 * time.Minute,
			Max:         100,
			AuthMax:     5,
			Store:       "memory",
			Redis:       RedisConfig{Addr: "localhost:6379"},
			GlobalBurst: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// IsDevelopment は開発環境で動作しているかを返す。
func (c Config) IsDevelopment() bool {
	return c.Server.Environment == EnvironmentDevelopment
}

// Load は設定を読み込んで検証する。
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile はYAMLファイルの内容でcfgを上書きする。
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイル %s のパースに失敗: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数の値でcfgを上書きする。
func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Environment, "NODE_ENV")
	setString(&cfg.Server.Environment, "APP_ENV")
	setList(&cfg.Server.TrustedProxies, "TRUSTED_PROXIES")
	errs = append(errs, setDuration(&cfg.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT"))

	setList(&cfg.CORS.AllowedOrigins, "ALLOWED_ORIGINS")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	errs = append(errs, setDuration(&cfg.Auth.TokenTTL, "TOKEN_TTL"))
	setString(&cfg.Auth.DemoUserID, "DEMO_USER_ID")
	setString(&cfg.Auth.DemoUsername, "DEMO_USERNAME")
	setString(&cfg.Auth.DemoPassword, "DEMO_PASSWORD")

	errs = append(errs,
		setDuration(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW"),
		setInt(&cfg.RateLimit.Max, "RATE_LIMIT_MAX"),
		setInt(&cfg.RateLimit.AuthMax, "AUTH_RATE_LIMIT_MAX"),
		setInt(&cfg.RateLimit.Redis.DB, "REDIS_DB"),
		setFloat(&cfg.RateLimit.GlobalRPS, "GLOBAL_RPS"),
		setInt(&cfg.RateLimit.GlobalBurst, "GLOBAL_BURST"),
	)
	setString(&cfg.RateLimit.Store, "RATE_LIMIT_STORE")
	setString(&cfg.RateLimit.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.RateLimit.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	return errors.Join(errs...)
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORTが空です"))
	} else if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORTが不正: %q", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUTは正の値である必要があります"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRETが空です"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTLは正の値である必要があります"))
	}
	if c.Auth.DemoUserID == "" || c.Auth.DemoUsername == "" || c.Auth.DemoPassword == "" {
		errs = append(errs, errors.New("デモユーザーの設定が不完全です"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOWは正の値である必要があります"))
	}
	if c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAXは正の値である必要があります"))
	}
	if c.RateLimit.AuthMax <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_MAXは正の値である必要があります"))
	}
	if c.RateLimit.GlobalRPS < 0 {
		errs = append(errs, errors.New("GLOBAL_RPSは0以上である必要があります"))
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			errs = append(errs, errors.New("RATE_LIMIT_STORE=redisの場合はREDIS_ADDRが必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("未対応のRATE_LIMIT_STORE: %q", c.RateLimit.Store))
	}

	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// setList はカンマ区切りの値を空要素を除いて分割する。
func setList(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%sが不正: %w", key, err)
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%sが不正: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%sが不正: %w", key, err)
	}
	*dst = d
	return nil
}
