package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/dhakacart/pkg/apperror"
	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

const (
	// tooManyRequestsMessage は一般リクエストの上限超過時のメッセージ。
	tooManyRequestsMessage = "Too many requests from this IP, please try again later."
	// tooManyLoginAttemptsMessage はログイン失敗の上限超過時のメッセージ。
	tooManyLoginAttemptsMessage = "Too many login attempts from this IP, please try again later."
)

// RateLimit はクライアントIP単位で一般リクエストを制限するGinミドルウェアを返す。
// exemptPathsに一致するパス（ヘルスチェック等）は制限の対象外とする。
func RateLimit(l *ratelimit.Limiter, exemptPaths ...string) gin.HandlerFunc {
	exempt := pathSet(exemptPaths)

	return func(c *gin.Context) {
		if _, ok := exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		d, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			_ = c.Error(apperror.Internal(err))
			c.Abort()
			return
		}

		setRateLimitHeaders(c, d)
		if !d.Allowed {
			_ = c.Error(apperror.RateLimited(tooManyRequestsMessage, d.RetryAfter(time.Now())))
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthRateLimit はログイン失敗の回数が上限に達したクライアントを拒否するGinミドルウェアを返す。
// 試行ごとに枠を先に確保し、認証の失敗で終わらなかった試行は枠を返却する。
// 確保と判定を1回のStore操作で行うため、同時に届いた失敗が上限をすり抜けることはない。
func AuthRateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()

		d, err := l.Allow(c.Request.Context(), client)
		if err != nil {
			_ = c.Error(apperror.Internal(err))
			c.Abort()
			return
		}

		if !d.Allowed {
			_ = c.Error(apperror.RateLimited(tooManyLoginAttemptsMessage, d.RetryAfter(time.Now())))
			c.Abort()
			return
		}

		c.Next()

		if authenticationFailed(c) {
			return
		}
		// クライアントが切断していても枠は返却する
		if _, err := l.Release(context.WithoutCancel(c.Request.Context()), client); err != nil && len(c.Errors) == 0 {
			_ = c.Error(apperror.Internal(err))
		}
	}
}

// authenticationFailed は後続のハンドラが認証の失敗で終わったかを判定する。
func authenticationFailed(c *gin.Context) bool {
	if last := c.Errors.Last(); last != nil {
		return apperror.As(last.Err).Kind == apperror.KindUnauthenticated
	}
	return c.Writer.Status() == http.StatusUnauthorized
}

// setRateLimitHeaders はRateLimit-* ヘッダーを設定する。
func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("RateLimit-Reset", strconv.Itoa(int(d.RetryAfter(time.Now())/time.Second)))
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
