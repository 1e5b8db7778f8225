// Package api はDhakaCart APIのHTTPサーバーを提供する。
//
// ヘルスチェック、レディネスチェック、商品一覧、デモ用ログインと
// 認証必須エンドポイントを公開する。Origin検査、レート制限、JWT検証、
// エラーのJSON変換は pkg/middleware のミドルウェアチェーンで行う。
package api
