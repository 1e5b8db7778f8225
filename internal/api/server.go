package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/dhakacart/internal/config"
	"github.com/nao1215/dhakacart/pkg/logging"
	"github.com/nao1215/dhakacart/pkg/middleware"
	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

const (
	// version はAPIのバージョン。
	version = "1.0.0"
	// readHeaderTimeout はリクエストヘッダーの読み込み期限。
	readHeaderTimeout = 10 * time.Second
	// readinessTimeout はレディネスチェックでストアに疎通確認する際の期限。
	readinessTimeout = 2 * time.Second
)

// demoAccount はデモ用ログインで受け付ける唯一の資格情報。
type demoAccount struct {
	userID   string
	username string
	password string
}

// Server はDhakaCart APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// logger は構造化ロガー。
	logger *slog.Logger
	// tokens はJWTの発行と検証を行う。
	tokens *middleware.TokenManager
	// generalLimiter は一般リクエストのレート制限。
	generalLimiter *ratelimit.Limiter
	// authLimiter はログイン失敗のレート制限。
	authLimiter *ratelimit.Limiter
	// store はレート制限のカウンタストア。
	store ratelimit.Store
	// ready はトラフィックを受け付ける状態かどうか。シャットダウン開始でfalseになる。
	ready atomic.Bool
	// startedAt はサーバーの起動時刻。
	startedAt time.Time
	// environment は実行環境名。
	environment string
	// shutdownTimeout は処理中リクエストの完了を待つ最大時間。
	shutdownTimeout time.Duration
	// demo はデモ用ログインの資格情報。
	demo demoAccount
	// now は現在時刻の取得関数。
	now func() time.Time
}

type options struct {
	now func() time.Time
}

// Option はServerの設定を変更する。
type Option func(*options)

// WithClock は現在時刻の取得関数を差し替える。トークンの発行と検証、稼働時間の計算に使う。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewServer は新しいAPIサーバーを生成する。
// storeはレート制限のカウンタを保持し、一般とログインの2つのポリシーで共有する。
func NewServer(cfg config.Config, logger *slog.Logger, store ratelimit.Store, opts ...Option) (*Server, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := middleware.NewTokenManager(cfg.Auth.JWTSecret,
		middleware.WithTokenTTL(cfg.Auth.TokenTTL),
		middleware.WithTokenClock(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("トークン管理の初期化に失敗: %w", err)
	}

	generalLimiter, err := ratelimit.NewLimiter(store, "general", cfg.RateLimit.Max, cfg.RateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("レート制限の初期化に失敗: %w", err)
	}
	authLimiter, err := ratelimit.NewLimiter(store, "auth", cfg.RateLimit.AuthMax, cfg.RateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("ログイン試行制限の初期化に失敗: %w", err)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}

	s := &Server{
		router:          router,
		port:            cfg.Server.Port,
		logger:          logger,
		tokens:          tokens,
		generalLimiter:  generalLimiter,
		authLimiter:     authLimiter,
		store:           store,
		startedAt:       o.now(),
		environment:     cfg.Server.Environment,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		demo: demoAccount{
			userID:   cfg.Auth.DemoUserID,
			username: cfg.Auth.DemoUsername,
			password: cfg.Auth.DemoPassword,
		},
		now: o.now,
	}
	s.ready.Store(true)

	// ErrorHandlerはRecoveryより外側に置き、パニックもJSONに変換する
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.ErrorHandler(logger, cfg.IsDevelopment()))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Throttle(cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst, probePaths...))
	router.Use(middleware.RateLimit(generalLimiter, probePaths...))

	s.setupRoutes()

	return s, nil
}

// probePaths はレート制限の対象外とするプローブ用パス。
var probePaths = []string{"/health", "/ready"}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// プローブ
	s.router.GET("/health", s.handle(s.handleHealth))
	s.router.GET("/ready", s.handle(s.handleReady))

	s.router.GET("/", s.handle(s.handleRoot))

	api := s.router.Group("/api")
	{
		api.GET("/products", s.handle(s.handleListProducts))

		// ログイン（失敗回数で制限）
		api.POST("/auth/login", middleware.AuthRateLimit(s.authLimiter), s.handle(s.handleLogin))

		// 認証必須
		api.GET("/protected", middleware.JWTAuth(s.tokens), s.handle(s.handleProtected))
	}

	s.router.NoRoute(middleware.NotFound)
}

// Handler はサーバーのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまでリクエストを処理する。
// キャンセル後はレディネスを落とし、処理中のリクエストの完了を待って終了する。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("ポート%sのリッスンに失敗: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve はlnでリクエストを処理する。終了の扱いはRunと同じ。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          logging.StdLogger(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("サーバーを起動します", slog.String("addr", ln.Addr().String()), slog.String("environment", s.environment))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("サーバーが異常終了: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.logger.Info("シャットダウンを開始します", slog.Duration("timeout", s.shutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}

	s.logger.Info("シャットダウンが完了しました")
	return nil
}
