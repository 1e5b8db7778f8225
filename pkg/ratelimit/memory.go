package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内のマップでカウンタを保持するStore実装。
// プロセスの再起動でカウンタは失われ、レプリカ間でも共有されない。
type MemoryStore struct {
	mu           sync.Mutex
	windows      map[string]Window
	now          func() time.Time
	cleanupEvery time.Duration
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption はMemoryStoreの設定を変更する。
type MemoryOption func(*MemoryStore)

// WithClock は現在時刻の取得関数を差し替える。テストでウィンドウの経過を再現するために使う。
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithCleanupEvery は期限切れウィンドウを掃除する間隔を設定する。0以下で掃除を行わない。
func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		windows:      make(map[string]Window),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// current はロック取得済みの状態で、keyの有効なウィンドウを返す。
// 期限切れまたは未作成の場合は新しいウィンドウを開始する（保存はしない）。
func (s *MemoryStore) current(key string, window time.Duration, now time.Time) Window {
	w, ok := s.windows[key]
	if !ok || !now.Before(w.ResetAt) {
		return Window{Start: now, ResetAt: now.Add(window)}
	}
	return w
}

// Take はStore.Takeを実装する。
func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration) (Window, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.current(key, window, now)
	if w.Count >= int64(limit) {
		return w, false, nil
	}
	w.Count++
	s.windows[key] = w
	return w, true, nil
}

// Release はStore.Releaseを実装する。
func (s *MemoryStore) Release(_ context.Context, key string, window time.Duration) (Window, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.ResetAt) {
		return s.current(key, window, now), nil
	}
	if w.Count > 0 {
		w.Count--
		s.windows[key] = w
	}
	return w, nil
}

// Len は保持しているウィンドウ数を返す。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Cleanup は期限切れのウィンドウを削除する。
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !now.Before(w.ResetAt) {
			delete(s.windows, k)
		}
	}
}

// StartJanitor は期限切れウィンドウを定期的に削除するゴルーチンを起動する。
// ctxのキャンセルで停止する。
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
