package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/dhakacart/pkg/apperror"
	"github.com/nao1215/dhakacart/pkg/middleware"
	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

// handlerFunc はステータスコードとレスポンスボディ、またはエラーを返すハンドラ。
type handlerFunc func(c *gin.Context) (int, any, error)

// handle はhandlerFuncをGinのハンドラに変換する。
// エラーはレスポンスに書き込まず、ErrorHandlerに渡す。
func (s *Server) handle(h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, body, err := h(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.JSON(status, body)
	}
}

// timestamp はレスポンスに載せる現在時刻を返す。
func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// handleHealth は生存確認。レート制限の状態に関係なく200を返す。
func (s *Server) handleHealth(_ *gin.Context) (int, any, error) {
	return http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.timestamp(),
		"uptime":    s.now().Sub(s.startedAt).Seconds(),
	}, nil
}

// handleReady はトラフィックを受け付けられるかを返す。
// シャットダウン中、またはカウンタストアに疎通できない場合は503を返す。
func (s *Server) handleReady(c *gin.Context) (int, any, error) {
	notReady := gin.H{"status": "not ready", "timestamp": s.timestamp()}

	if !s.ready.Load() {
		return http.StatusServiceUnavailable, notReady, nil
	}

	if pinger, ok := s.store.(ratelimit.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			s.logger.Warn("カウンタストアに疎通できません", "error", err)
			return http.StatusServiceUnavailable, notReady, nil
		}
	}

	return http.StatusOK, gin.H{"status": "ready", "timestamp": s.timestamp()}, nil
}

func (s *Server) handleRoot(_ *gin.Context) (int, any, error) {
	return http.StatusOK, gin.H{
		"message":       "DhakaCart API is Online!",
		"system_status": "Healthy",
		"timestamp":     s.timestamp(),
		"version":       version,
		"environment":   s.environment,
	}, nil
}

func (s *Server) handleListProducts(_ *gin.Context) (int, any, error) {
	return http.StatusOK, gin.H{"products": Products()}, nil
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// handleLogin はデモ用の資格情報と照合してJWTを発行する。
// 入力値の検証に失敗した場合は照合せずに400を返す。
// 照合の失敗はAuthRateLimitがログイン試行として数える。
func (s *Server) handleLogin(c *gin.Context) (int, any, error) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0, nil, apperror.ValidationFailed(fieldErrors(err))
	}

	if !s.demo.matches(req.Username, req.Password) {
		return 0, nil, apperror.Unauthenticated("Invalid credentials", nil)
	}

	token, err := s.tokens.Issue(s.demo.userID, s.demo.username)
	if err != nil {
		return 0, nil, apperror.Internal(fmt.Errorf("トークン生成に失敗: %w", err))
	}

	return http.StatusOK, gin.H{
		"message":   "Login successful",
		"token":     token,
		"expiresIn": formatTTL(s.tokens.TTL()),
	}, nil
}

// handleProtected は検証済みのトークンの利用者情報を返す。
func (s *Server) handleProtected(c *gin.Context) (int, any, error) {
	return http.StatusOK, gin.H{
		"message":   "Access granted to protected resource",
		"userId":    middleware.GetUserID(c),
		"username":  middleware.GetUsername(c),
		"timestamp": s.timestamp(),
	}, nil
}

// matches は資格情報が一致するかを定数時間で比較する。
func (a demoAccount) matches(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password))
	return userOK&passOK == 1
}

// fieldErrors はバインドエラーをフィールド単位のメッセージに変換する。
func fieldErrors(err error) []apperror.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperror.FieldError{{Field: "body", Message: "Request body must be a JSON object with username and password"}}
	}

	fields := make([]apperror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperror.FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "alphanum":
		return name + " must contain only letters and numbers"
	default:
		return name + " is invalid"
	}
}

// formatTTL は有効期間を "24h" のような短い表記にする。
func formatTTL(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
