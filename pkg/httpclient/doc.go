// Package httpclient はDhakaCart APIを呼び出すための小さなJSON HTTPクライアントを提供する。
//
// コンテナのヘルスチェックプローブと、起動したサーバーに対する結合テストで使用する。
// 2xx以外の応答は *StatusError として返す。
package httpclient
