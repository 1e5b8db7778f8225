package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nao1215/dhakacart/pkg/apperror"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの識別子。subと同じ値を持つ。
	UserID string `json:"userId"`
	// Username はログイン時のユーザー名。
	Username string `json:"username"`
}

const (
	// contextKeyUserID はGinコンテキストにユーザーIDを格納するキー。
	contextKeyUserID = "user_id"
	// contextKeyUsername はGinコンテキストにユーザー名を格納するキー。
	contextKeyUsername = "username"
	// defaultIssuer はトークンの発行者名。
	defaultIssuer = "dhakacart-api"
)

// TokenManager はHS256で署名したJWTの発行と検証を行う。
// 失効リストは持たず、トークンは有効期限でのみ無効になる。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption はTokenManagerの設定を変更する。
type TokenOption func(*TokenManager)

// WithTokenTTL はトークンの有効期間を設定する。
func WithTokenTTL(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.ttl = d }
}

// WithTokenClock は現在時刻の取得関数を差し替える。
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager は新しいTokenManagerを生成する。有効期間のデフォルトは24時間。
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("JWTの署名鍵が空です")
	}
	m := &TokenManager{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, fmt.Errorf("トークンの有効期間が不正: %s", m.ttl)
	}
	return m, nil
}

// TTL はトークンの有効期間を返す。
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue はユーザー情報から署名済みJWTトークンを生成する。
func (m *TokenManager) Issue(userID, username string) (string, error) {
	now := m.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
func (m *TokenManager) Verify(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("トークンのクレームが不正です")
	}
	return claims, nil
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにユーザーIDとユーザー名を設定する。
func JWTAuth(m *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(apperror.Unauthenticated("Access token required", nil))
			c.Abort()
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			_ = c.Error(apperror.Unauthenticated("Malformed Authorization header", nil))
			c.Abort()
			return
		}

		claims, err := m.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token has expired"
			}
			_ = c.Error(apperror.Unauthenticated(msg, err))
			c.Abort()
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyUsername, claims.Username)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetUsername はGinコンテキストからユーザー名を取得する。
func GetUsername(c *gin.Context) string {
	return c.GetString(contextKeyUsername)
}
