package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript は上限未満の場合のみINCRする。戻り値は {count, pttl, allowed}。
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if count >= tonumber(ARGV[1]) then
  return {count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {count, ttl, 1}
`)

// releaseScript はカウントが残っている場合のみDECRする。戻り値は {count, pttl}。
var releaseScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count > 0 then
  count = redis.call('DECR', KEYS[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisConfig はRedisStoreの接続設定。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix はキーの接頭辞。空の場合は "ratelimit" を使う。
	Prefix string
}

// RedisStore はRedisでカウンタを保持するStore実装。
// 複数レプリカでカウンタを共有する場合に使用する。
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)

// NewRedisStore はRedisへ接続し、疎通を確認したうえでRedisStoreを生成する。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redisのアドレスが指定されていません")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisへの疎通確認に失敗: %w", err)
	}

	return newRedisStore(client, cfg.Prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

// Close はRedisクライアントを閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping はRedisへの疎通を確認する。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// window はRedisが返したカウントと残りTTLからWindowを組み立てる。
func (s *RedisStore) window(count, ttlMillis int64, window time.Duration) Window {
	now := s.now()
	if ttlMillis < 0 {
		ttlMillis = window.Milliseconds()
	}
	resetAt := now.Add(time.Duration(ttlMillis) * time.Millisecond)
	return Window{Count: count, Start: resetAt.Add(-window), ResetAt: resetAt}
}

// Take はStore.Takeを実装する。
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Window, bool, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.key(key)}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, false, fmt.Errorf("redisでのカウント加算に失敗: %w", err)
	}
	if len(res) != 3 {
		return Window{}, false, fmt.Errorf("redisスクリプトの戻り値が不正: %v", res)
	}
	return s.window(res[0], res[1], window), res[2] == 1, nil
}

// Release はStore.Releaseを実装する。
func (s *RedisStore) Release(ctx context.Context, key string, window time.Duration) (Window, error) {
	res, err := releaseScript.Run(ctx, s.client, []string{s.key(key)}).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("redisでのカウント返却に失敗: %w", err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("redisスクリプトの戻り値が不正: %v", res)
	}
	return s.window(res[0], res[1], window), nil
}
