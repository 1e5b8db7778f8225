// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Originの検証（CORS）、クライアントIP単位のレート制限、JWT認証トークンの発行と検証、
// リクエストIDの付与、リクエストログ、パニックリカバリ、
// そしてすべての失敗を統一されたJSONエンベロープに変換するErrorHandlerを含む。
//
// ErrorHandler以外のミドルウェアはレスポンスを直接書き込まず、
// *apperror.Error をコンテキストに積んで処理を中断する。
package middleware
