// Package routersim はルーター管理APIのシミュレータを提供する。
//
// 上流のルーター管理画面と同じエンドポイント（ログイン、設定取得、
// WiFi/ファイアウォールの切り替え）を持ち、ゲートウェイの開発と結合テストに使う。
// 状態はSQLiteに保持し、ログインと設定変更はアクティビティログとして記録する。
package routersim
