// Package httpclient は上流APIとのHTTP通信を行うクライアントを提供する。
//
// ゲートウェイがルーター管理APIを呼び出す際、およびルーターシミュレータの
// 結合テストで使用する。2xx以外の応答は StatusError、応答を受信できなかった
// 場合は TransportError として返し、呼び出し側がタイムアウト・ステータス異常・
// 通信断を区別できるようにする。
package httpclient
