package routersim

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nao1215/routergw/pkg/event"
	"github.com/nao1215/routergw/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// routerAggregateID はルーター本体のイベントに使う集約ID。
const routerAggregateID = "router"

// Setting は切り替え可能なルーター設定。
type Setting string

const (
	// SettingWifi はWiFiの有効/無効。
	SettingWifi Setting = "wifi"
	// SettingFirewall はファイアウォールの有効/無効。
	SettingFirewall Setting = "firewall"
)

// column はSettingに対応するrouter_stateの列名とイベント種別を返す。
func (s Setting) column() (string, event.Type, error) {
	switch s {
	case SettingWifi:
		return "wifi_enabled", event.TypeWifiToggled, nil
	case SettingFirewall:
		return "firewall_enabled", event.TypeFirewallToggled, nil
	default:
		return "", "", fmt.Errorf("未知の設定: %q", s)
	}
}

// RouterConfig は GET /api/router-config のレスポンス。
type RouterConfig struct {
	WifiSettings     WifiSettings     `json:"wifiSettings"`
	SecuritySettings SecuritySettings `json:"securitySettings"`
	ConnectedDevices []Device         `json:"connectedDevices"`
}

// WifiSettings はWiFiの設定。
type WifiSettings struct {
	Enabled bool   `json:"enabled"`
	SSID    string `json:"ssid"`
	Band    string `json:"band"`
}

// SecuritySettings はセキュリティ関連の設定。
type SecuritySettings struct {
	FirewallEnabled bool `json:"firewallEnabled"`
}

// Device は接続中の端末。
type Device struct {
	ID         string `json:"id"`
	Hostname   string `json:"hostname"`
	MacAddress string `json:"macAddress"`
	IPAddress  string `json:"ipAddress"`
}

// defaultDevices は初期状態で接続されている端末。
var defaultDevices = []Device{
	{Hostname: "office-laptop", MacAddress: "3C:52:82:4A:1B:01", IPAddress: "192.168.1.10"},
	{Hostname: "living-room-tv", MacAddress: "A4:77:33:9C:20:5E", IPAddress: "192.168.1.11"},
	{Hostname: "smartphone", MacAddress: "F0:18:98:6D:44:C2", IPAddress: "192.168.1.12"},
}

// Store はシミュレータの状態をSQLiteに保持する。
type Store struct {
	db *sql.DB
}

// OpenStore はデータベースを開き、マイグレーションと初期データの投入を行う。
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに独立するため、接続を1本に固定する
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	s := &Store{db: db}
	if err := s.seed(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初期データの投入に失敗: %w", err)
	}
	return s, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// seed はルーターの状態が未作成の場合に初期値を投入する。
func (s *Store) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO router_state (id, ssid) VALUES (1, 'routersim')`)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	for i, d := range defaultDevices {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO connected_devices (id, hostname, mac_address, ip_address, position) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), d.Hostname, d.MacAddress, d.IPAddress, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RouterConfig は現在のルーター設定を返す。
func (s *Store) RouterConfig(ctx context.Context) (RouterConfig, error) {
	var cfg RouterConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT wifi_enabled, ssid, band, firewall_enabled FROM router_state WHERE id = 1`,
	).Scan(&cfg.WifiSettings.Enabled, &cfg.WifiSettings.SSID, &cfg.WifiSettings.Band, &cfg.SecuritySettings.FirewallEnabled)
	if err != nil {
		return RouterConfig{}, fmt.Errorf("ルーター状態の取得に失敗: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hostname, mac_address, ip_address FROM connected_devices ORDER BY position`)
	if err != nil {
		return RouterConfig{}, fmt.Errorf("接続端末の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cfg.ConnectedDevices = []Device{}
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.Hostname, &d.MacAddress, &d.IPAddress); err != nil {
			return RouterConfig{}, fmt.Errorf("接続端末の読み取りに失敗: %w", err)
		}
		cfg.ConnectedDevices = append(cfg.ConnectedDevices, d)
	}
	if err := rows.Err(); err != nil {
		return RouterConfig{}, fmt.Errorf("接続端末の読み取りに失敗: %w", err)
	}
	return cfg, nil
}

// Toggle は設定を反転し、反転後の値を返す。変更はイベントとして記録される。
func (s *Store) Toggle(ctx context.Context, setting Setting, username string) (bool, error) {
	col, eventType, err := setting.column()
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var enabled bool
	// 列名はcolumn()が返す固定値のみ
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE router_state SET %[1]s = 1 - %[1]s, updated_at = datetime('now') WHERE id = 1 RETURNING %[1]s`, col),
	).Scan(&enabled); err != nil {
		return false, fmt.Errorf("%sの切り替えに失敗: %w", setting, err)
	}

	if err := appendEvent(ctx, tx, routerAggregateID, event.AggregateTypeRouter, eventType, event.ToggledData{
		Username: username,
		Enabled:  enabled,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("コミットに失敗: %w", err)
	}
	return enabled, nil
}

// RecordLogin はログインの試行をイベントとして記録する。
func (s *Store) RecordLogin(ctx context.Context, username, remoteAddr string, success bool) error {
	eventType := event.TypeLoginFailed
	if success {
		eventType = event.TypeLoginSucceeded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := appendEvent(ctx, tx, username, event.AggregateTypeSession, eventType, event.LoginData{
		Username:   username,
		RemoteAddr: remoteAddr,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Events は新しい順に最大limit件のイベントを返す。
func (s *Store) Events(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, version, created_at
		 FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []event.Event{}
	for rows.Next() {
		var (
			e         event.Event
			data      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		e.Data = json.RawMessage(data)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// appendEvent は集約内の次のバージョンでイベントを追記する。
func appendEvent(ctx context.Context, tx *sql.Tx, aggregateID string, aggregateType event.AggregateType, eventType event.Type, data any) error {
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&version); err != nil {
		return fmt.Errorf("バージョンの取得に失敗: %w", err)
	}

	e, err := event.New(aggregateID, aggregateType, eventType, version, data)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AggregateID, string(e.AggregateType), string(e.EventType), string(e.Data), e.Version, e.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("イベントの保存に失敗: %w", err)
	}
	return nil
}
