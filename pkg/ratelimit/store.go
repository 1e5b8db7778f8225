//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=ratelimit
package ratelimit

import (
	"context"
	"time"
)

// Window はあるキーに対する現在の固定ウィンドウの状態。
type Window struct {
	// Count はウィンドウ内で数えられたリクエスト数。
	Count int64
	// Start はウィンドウの開始時刻。
	Start time.Time
	// ResetAt はウィンドウがリセットされる時刻。
	ResetAt time.Time
}

// Store は固定ウィンドウのカウンタを保持するストレージ。
// 実装は並行呼び出しに対して安全でなければならない。
type Store interface {
	// Take はカウントがlimit未満であれば1増やしてtrueを返す。
	// limit以上の場合はカウントを変更せずfalseを返す。判定と加算は原子的に行う。
	Take(ctx context.Context, key string, limit int, window time.Duration) (Window, bool, error)
	// Release は現在のウィンドウのカウントを1減らす。Takeで確保した枠を返却するために使う。
	// カウントが0の場合やウィンドウが終了している場合は何もしない。
	Release(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Pinger は疎通確認が可能なStoreが実装する。readinessチェックで使用する。
type Pinger interface {
	Ping(ctx context.Context) error
}
