// Package apperror はHTTP APIで扱う失敗の種類（Kind）と、それを運ぶエラー型を提供する。
//
// ミドルウェアやハンドラはレスポンスを直接書き込まず、*Error を返す（またはGinコンテキストに積む）。
// HTTPステータスへの変換は middleware.ErrorHandler の一箇所でのみ行う。
package apperror

import (
	"errors"
	"net/http"
	"time"
)

// Kind は失敗の分類。
type Kind int

const (
	// KindUnclassified は分類されていない内部エラー。
	KindUnclassified Kind = iota
	// KindOriginRejected は許可されていないOriginからのリクエスト。
	KindOriginRejected
	// KindRateLimited はリクエスト数の上限超過。
	KindRateLimited
	// KindValidationFailed は入力値の検証エラー。
	KindValidationFailed
	// KindUnauthenticated は認証の失敗。
	KindUnauthenticated
)

// String はKindの表示名を返す。
func (k Kind) String() string {
	switch k {
	case KindOriginRejected:
		return "OriginRejected"
	case KindRateLimited:
		return "RateLimited"
	case KindValidationFailed:
		return "ValidationFailed"
	case KindUnauthenticated:
		return "Unauthenticated"
	default:
		return "Unclassified"
	}
}

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindOriginRejected:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Title はエラーエンベロープの "error" フィールドに入る見出し。
func (k Kind) Title() string {
	switch k {
	case KindOriginRejected:
		return "Forbidden"
	case KindRateLimited:
		return "Too Many Requests"
	case KindValidationFailed:
		return "Validation Failed"
	case KindUnauthenticated:
		return "Unauthorized"
	default:
		return "Internal Server Error"
	}
}

// FieldError は入力フィールド単位の検証エラー。
type FieldError struct {
	// Field はJSON上のフィールド名。
	Field string `json:"field"`
	// Message は利用者向けのメッセージ。
	Message string `json:"message"`
}

// Error はKindを持つアプリケーションエラー。
type Error struct {
	// Kind は失敗の分類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Fields は検証エラーの詳細。KindValidationFailedの場合のみ設定される。
	Fields []FieldError
	// RetryAfter は再試行までの推奨待ち時間。KindRateLimitedの場合のみ設定される。
	RetryAfter time.Duration
	// Err は原因となったエラー。サーバー側のログにのみ出力する。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// OriginRejected は許可されていないOriginのエラーを生成する。
func OriginRejected(origin string) *Error {
	return &Error{Kind: KindOriginRejected, Message: "Origin " + origin + " is not allowed"}
}

// RateLimited はリクエスト数上限超過のエラーを生成する。
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// ValidationFailed は入力値検証エラーを生成する。
func ValidationFailed(fields []FieldError) *Error {
	return &Error{Kind: KindValidationFailed, Message: "Invalid request body", Fields: fields}
}

// Unauthenticated は認証失敗のエラーを生成する。
func Unauthenticated(message string, cause error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message, Err: cause}
}

// Internal は分類されていない内部エラーを生成する。
func Internal(cause error) *Error {
	return &Error{Kind: KindUnclassified, Message: "Internal Server Error", Err: cause}
}

// As はerrを*Errorとして取り出す。*Errorを含まないエラーはKindUnclassifiedとして包む。
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
