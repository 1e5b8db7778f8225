package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// discardLogger は出力を捨てるロガーを返す。
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter はErrorHandlerを先頭に置き、指定したミドルウェアを適用したルーターを生成する。
func newTestRouter(mws ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(ErrorHandler(discardLogger(), false))
	router.Use(mws...)
	router.NoRoute(NotFound)
	return router
}

// serve はリクエストを実行してレコーダーを返す。
func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
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

// okHandler は200 {"status":"ok"} を返すハンドラ。
func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
