package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/dhakacart/pkg/ratelimit"
)

// errStoreUnavailable はfailingStoreが返すエラー。
var errStoreUnavailable = errors.New("store unavailable")

// failingStore は常にエラーを返すStore。
type failingStore struct{}

func (failingStore) Take(context.Context, string, int, time.Duration) (ratelimit.Window, bool, error) {
	return ratelimit.Window{}, false, errStoreUnavailable
}

func (failingStore) Release(context.Context, string, time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errStoreUnavailable
}
