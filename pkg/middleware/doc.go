// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、CORS設定、リクエストIDの付与、ボディサイズの制限と、
// ルーターシミュレータが使うJWTの発行・検証を含む。
package middleware
