// Package gateway はセッションゲートウェイのHTTP層を提供する。
//
// クライアントから受け取った認証情報で上流のルーター管理APIにログインし、
// 取得したトークンを session.Gateway にキャッシュしたうえで、
// ルーター情報の取得やWiFi/ファイアウォールの切り替えを簡略化したRESTとして公開する。
// 入力検証エラーは400、それ以外の失敗は500として {"error": message} を返す。
package gateway
