package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/dhakacart/internal/config"
	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	// testJWTSecret はテスト用のJWT署名秘密鍵。
	testJWTSecret = "test-secret-key"
	// allowedOrigin は許可リストに含まれるOrigin。
	allowedOrigin = "http://localhost:3000"
	// demoUsername, demoPassword はテスト用のデモ資格情報。
	demoUsername = "admin"
	demoPassword = "password123"
)

// fakeClock はテスト用に手動で進める時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig はテスト用の設定を返す。
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.DemoUsername = demoUsername
	cfg.Auth.DemoPassword = demoPassword
	cfg.CORS.AllowedOrigins = []string{allowedOrigin}
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

// newTestServer はメモリストアと手動の時計を使うテスト用サーバーを生成する。
func newTestServer(t *testing.T, cfg config.Config) (*Server, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := ratelimit.NewMemoryStore(ratelimit.WithClock(clock.Now))
	return newTestServerWithStore(t, cfg, store, clock), clock
}

// newTestServerWithStore は指定したストアを使うテスト用サーバーを生成する。
func newTestServerWithStore(t *testing.T, cfg config.Config, store ratelimit.Store, clock *fakeClock) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(cfg, logger, store, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	return s
}

// doRequest はクライアントIPを指定してリクエストを実行する。
func doRequest(s *Server, method, path, ip string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = ip + ":12345"
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// get はGETリクエストを実行する。
func get(s *Server, path, ip string) *httptest.ResponseRecorder {
	return doRequest(s, http.MethodGet, path, ip, nil, nil)
}

// login はログインリクエストを実行する。
func login(t *testing.T, s *Server, ip, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		t.Fatalf("リクエストボディの生成に失敗: %v", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	return doRequest(s, http.MethodPost, "/api/auth/login", ip, bytes.NewReader(raw), header)
}

// getWithToken はBearerトークン付きのGETリクエストを実行する。
func getWithToken(s *Server, path, ip, token string) *httptest.ResponseRecorder {
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	return doRequest(s, http.MethodGet, path, ip, nil, header)
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body
}

// issueToken はログインしてトークンを取得する。
func issueToken(t *testing.T, s *Server, ip string) string {
	t.Helper()

	w := login(t, s, ip, demoUsername, demoPassword)
	if w.Code != http.StatusOK {
		t.Fatalf("ログイン: ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	token, _ := decodeBody(t, w)["token"].(string)
	if token == "" {
		t.Fatal("トークンが返されていない")
	}
	return token
}

// tamperSignature は署名部の先頭文字を置き換えたトークンを返す。
func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 1
	replacement := byte('A')
	if token[i] == 'A' {
		replacement = 'B'
	}
	return token[:i] + string(replacement) + token[i+1:]
}

// errStoreDown はストア障害を表すテスト用エラー。
var errStoreDown = errors.New("connection refused")

// brokenStore は常に失敗するStore。
type brokenStore struct{}

func (brokenStore) Take(context.Context, string, int, time.Duration) (ratelimit.Window, bool, error) {
	return ratelimit.Window{}, false, errStoreDown
}

func (brokenStore) Release(context.Context, string, time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errStoreDown
}

func (brokenStore) Ping(context.Context) error {
	return errStoreDown
}
