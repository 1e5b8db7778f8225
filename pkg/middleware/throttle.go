package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nao1215/dhakacart/pkg/apperror"
)

// Throttle はプロセス全体のリクエストレートをトークンバケットで制限するGinミドルウェアを返す。
// rpsが0以下の場合は何もしない。
func Throttle(rps float64, burst int, exemptPaths ...string) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	lim := rate.NewLimiter(rate.Limit(rps), burst)
	exempt := pathSet(exemptPaths)

	return func(c *gin.Context) {
		if _, ok := exempt[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		if !lim.Allow() {
			_ = c.Error(apperror.RateLimited("Server is busy, please try again later.", time.Second))
			c.Abort()
			return
		}

		c.Next()
	}
}
