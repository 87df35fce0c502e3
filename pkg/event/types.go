// Package event はルーターシミュレータが記録するアクティビティイベントを定義する。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeRouter はルーター本体を表す。
	AggregateTypeRouter AggregateType = "Router"
	// AggregateTypeSession は管理画面のログインセッションを表す。
	AggregateTypeSession AggregateType = "Session"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeLoginSucceeded は管理者のログインが成功したことを表す。
	TypeLoginSucceeded Type = "LoginSucceeded"
	// TypeLoginFailed は管理者のログインが失敗したことを表す。
	TypeLoginFailed Type = "LoginFailed"

	// TypeWifiToggled はWiFiの有効/無効が切り替わったことを表す。
	TypeWifiToggled Type = "WifiToggled"
	// TypeFirewallToggled はファイアウォールの有効/無効が切り替わったことを表す。
	TypeFirewallToggled Type = "FirewallToggled"
)

// Event は追記専用のアクティビティレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// LoginData はLoginSucceeded/LoginFailedイベントのデータ。
type LoginData struct {
	// Username はログインを試みたユーザー名。
	Username string `json:"username"`
	// RemoteAddr は接続元のアドレス。
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// ToggledData はWifiToggled/FirewallToggledイベントのデータ。
type ToggledData struct {
	// Username は操作したユーザー名。
	Username string `json:"username"`
	// Enabled は切り替え後の状態。
	Enabled bool `json:"enabled"`
}
