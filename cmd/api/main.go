// DhakaCart APIのエントリポイント。
// 設定を読み込み、レート制限のカウンタストアを用意してHTTPサーバーを起動する。
// SIGINT/SIGTERMを受け取ると処理中のリクエストを待ってから終了する。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/dhakacart/internal/api"
	"github.com/nao1215/dhakacart/internal/config"
	"github.com/nao1215/dhakacart/pkg/logging"
	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("DhakaCart APIが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
			logger.Warn("開発用のJWT署名鍵を使用しています。JWT_SECRETを設定してください", "environment", cfg.Server.Environment)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeStore()

	server, err := api.NewServer(cfg, logger, store)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}

	return server.Run(ctx)
}

// newStore は設定に応じたカウンタストアと、その後始末を行う関数を返す。
func newStore(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Store, func(), error) {
	switch cfg.Store {
	case "redis":
		store, err := ratelimit.NewRedisStore(ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
		}
		slog.Info("レート制限のカウンタをRedisに保存します", "addr", cfg.Redis.Addr)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Redisクライアントのクローズに失敗", "error", err)
			}
		}, nil
	default:
		store := ratelimit.NewMemoryStore()
		janitorCtx, cancel := context.WithCancel(ctx)
		store.StartJanitor(janitorCtx)
		return store, cancel, nil
	}
}
