// Package logging はアプリケーション全体で使用する構造化ロガーを構築する。
package logging

import (
	"io"
	"log"
	"log/slog"
	"strings"
)

// New はレベルとフォーマットを指定してslogのロガーを生成する。
// levelは debug, info, warn, error のいずれか（不明な値はinfo）。
// formatが "json" の場合はJSON、それ以外はテキスト形式で出力する。
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel は文字列をslog.Levelに変換する。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StdLogger はhttp.Server.ErrorLogに渡すための*log.Loggerを返す。
// 出力はloggerにErrorレベルで転送される。
func StdLogger(logger *slog.Logger) *log.Logger {
	return slog.NewLogLogger(logger.Handler(), slog.LevelError)
}
