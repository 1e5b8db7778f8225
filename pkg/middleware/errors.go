package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/dhakacart/pkg/apperror"
)

// elidedMessage は開発環境以外で未分類エラーの詳細の代わりに返すメッセージ。
const elidedMessage = "An error occurred"

// ErrorHandler は後続のミドルウェアとハンドラが積んだエラーを、
// 種類に応じたHTTPステータスとJSONエンベロープ {error, message} に変換するGinミドルウェアを返す。
// エラーはすべてサーバー側に詳細付きでログ出力する。
// developmentがfalseの場合、未分類エラーのメッセージはクライアントに返さない。
func ErrorHandler(logger *slog.Logger, development bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := apperror.As(c.Errors.Last().Err)
		attrs := []any{
			slog.String("kind", appErr.Kind.String()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", GetRequestID(c)),
			slog.String("error", appErr.Error()),
		}
		// パニックのスタックはRecoveryが出力する。ここでは原因の連鎖だけを残す
		if appErr.Kind == apperror.KindUnclassified {
			logger.Error("リクエストの処理に失敗しました", attrs...)
		} else {
			logger.Warn("リクエストを拒否しました", attrs...)
		}

		if c.Writer.Written() {
			return
		}

		message := appErr.Message
		if appErr.Kind == apperror.KindUnclassified {
			message = elidedMessage
			if development && appErr.Err != nil {
				message = appErr.Err.Error()
			}
		}

		body := gin.H{
			"error":   appErr.Kind.Title(),
			"message": message,
		}
		if len(appErr.Fields) > 0 {
			body["errors"] = appErr.Fields
		}
		if appErr.Kind == apperror.KindRateLimited && appErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(appErr.RetryAfter/time.Second)))
		}

		c.AbortWithStatusJSON(appErr.Kind.Status(), body)
	}
}

// NotFound は一致するルートがない場合に404エンベロープ {error, path} を返すハンドラ。
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": "Not Found",
		"path":  c.Request.URL.Path,
	})
}
