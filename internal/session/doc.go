// Package session はルーター管理APIのセッションを扱うゲートウェイを提供する。
//
// 上流APIへのログインとBearerトークンのキャッシュ、トークンを付与した
// リクエストの転送、レスポンスとエラーの正規化を担当する。
// トークンキャッシュはGatewayごとに1件だけ保持し、有効期限は発行から1時間。
// 上流APIが401を返した場合はキャッシュを破棄し、次の呼び出しで再ログインする。
// リトライは行わず、失敗はすべて呼び出し元にそのまま返す。
package session
