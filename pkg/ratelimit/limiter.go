package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Decision はアドミッション判定の結果。
type Decision struct {
	// Allowed はリクエストを受け付けるかどうか。
	Allowed bool
	// Limit はウィンドウあたりの上限。
	Limit int
	// Remaining はウィンドウ内の残り回数。
	Remaining int
	// ResetAt はウィンドウがリセットされる時刻。
	ResetAt time.Time
}

// RetryAfter はnowからウィンドウのリセットまでの時間を秒単位に切り上げて返す。
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}

// Limiter は1つのポリシー（上限とウィンドウ幅）に従うアドミッション制御。
type Limiter struct {
	store  Store
	name   string
	limit  int
	window time.Duration
}

// NewLimiter は新しいLimiterを生成する。
// nameはキーの名前空間で、同じStoreを共有する別ポリシーとカウンタが混ざらないようにする。
func NewLimiter(store Store, name string, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("storeが指定されていません")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("limiterの名前が指定されていません")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("limitとwindowは正の値である必要があります: limit=%d, window=%s", limit, window)
	}
	return &Limiter{store: store, name: name, limit: limit, window: window}, nil
}

func (l *Limiter) key(client string) string {
	return l.name + ":" + strings.ToLower(strings.TrimSpace(client))
}

func (l *Limiter) decision(allowed bool, w Window) Decision {
	remaining := l.limit - int(w.Count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Limit: l.limit, Remaining: remaining, ResetAt: w.ResetAt}
}

// Allow は現在のウィンドウのカウントが上限未満であればカウントして受け付ける。
// 上限に達している場合はカウントせずに拒否する。
func (l *Limiter) Allow(ctx context.Context, client string) (Decision, error) {
	w, ok, err := l.store.Take(ctx, l.key(client), l.limit, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: カウンタの更新に失敗: %w", l.name, err)
	}
	return l.decision(ok, w), nil
}

// Release はAllowで確保した枠を1つ返却する。
// 失敗した試行だけを数えるポリシー（ログイン試行）で、成功した試行の枠を戻すために使用する。
func (l *Limiter) Release(ctx context.Context, client string) (Decision, error) {
	w, err := l.store.Release(ctx, l.key(client), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: カウンタの返却に失敗: %w", l.name, err)
	}
	return l.decision(w.Count < int64(l.limit), w), nil
}
