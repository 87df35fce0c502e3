package routersim

import (
	"context"
	"testing"

	"github.com/nao1215/routergw/pkg/event"
)

// newTestStore はインメモリSQLiteのStoreを生成する。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenStore()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStoreRouterConfig は初期状態の設定を検証する。
func TestStoreRouterConfig(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	cfg, err := store.RouterConfig(context.Background())
	if err != nil {
		t.Fatalf("RouterConfig()でエラーが発生: %v", err)
	}

	if !cfg.WifiSettings.Enabled {
		t.Error("初期状態でWiFiが無効")
	}
	if !cfg.SecuritySettings.FirewallEnabled {
		t.Error("初期状態でファイアウォールが無効")
	}
	if cfg.WifiSettings.SSID != "routersim" {
		t.Errorf("SSID = %q, want %q", cfg.WifiSettings.SSID, "routersim")
	}
	if len(cfg.ConnectedDevices) != len(defaultDevices) {
		t.Fatalf("接続端末数 = %d, want %d", len(cfg.ConnectedDevices), len(defaultDevices))
	}
	if got := cfg.ConnectedDevices[0].MacAddress; got != defaultDevices[0].MacAddress {
		t.Errorf("先頭端末のMACアドレス = %q, want %q", got, defaultDevices[0].MacAddress)
	}
	for _, d := range cfg.ConnectedDevices {
		if d.ID == "" {
			t.Errorf("端末 %s のIDが空", d.Hostname)
		}
	}
}

// TestStoreToggle は設定の切り替えとイベントの記録を検証する。
func TestStoreToggle(t *testing.T) {
	t.Parallel()

	t.Run("切り替えるたびに値が反転しイベントが記録されること", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := newTestStore(t)

		for i, want := range []bool{false, true, false} {
			got, err := store.Toggle(ctx, SettingWifi, "admin")
			if err != nil {
				t.Fatalf("Toggle()でエラーが発生: %v", err)
			}
			if got != want {
				t.Errorf("%d回目のToggle() = %t, want %t", i+1, got, want)
			}
		}

		cfg, err := store.RouterConfig(ctx)
		if err != nil {
			t.Fatalf("RouterConfig()でエラーが発生: %v", err)
		}
		if cfg.WifiSettings.Enabled {
			t.Error("WiFiが無効になっていない")
		}
		if !cfg.SecuritySettings.FirewallEnabled {
			t.Error("WiFiの切り替えでファイアウォールが変化した")
		}

		events, err := store.Events(ctx, 10)
		if err != nil {
			t.Fatalf("Events()でエラーが発生: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("イベント数 = %d, want 3", len(events))
		}
		// 新しい順
		if events[0].Version != 3 || events[2].Version != 1 {
			t.Errorf("バージョン = %d..%d, want 3..1", events[0].Version, events[2].Version)
		}
		if events[0].EventType != event.TypeWifiToggled {
			t.Errorf("EventType = %q, want %q", events[0].EventType, event.TypeWifiToggled)
		}
		data, err := event.DecodeData[event.ToggledData](&events[0])
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.Username != "admin" || data.Enabled {
			t.Errorf("data = %+v", data)
		}
	})

	t.Run("ファイアウォールを切り替えられること", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		got, err := store.Toggle(context.Background(), SettingFirewall, "admin")
		if err != nil {
			t.Fatalf("Toggle()でエラーが発生: %v", err)
		}
		if got {
			t.Error("ファイアウォールが無効になっていない")
		}
	})

	t.Run("未知の設定はエラーになること", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		if _, err := store.Toggle(context.Background(), Setting("dns"), "admin"); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// TestStoreRecordLogin はログインイベントの記録を検証する。
func TestStoreRecordLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	if err := store.RecordLogin(ctx, "admin", "192.0.2.1", false); err != nil {
		t.Fatalf("RecordLogin()でエラーが発生: %v", err)
	}
	if err := store.RecordLogin(ctx, "admin", "192.0.2.1", true); err != nil {
		t.Fatalf("RecordLogin()でエラーが発生: %v", err)
	}

	events, err := store.Events(ctx, 1)
	if err != nil {
		t.Fatalf("Events()でエラーが発生: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("イベント数 = %d, want 1", len(events))
	}
	e := events[0]
	if e.EventType != event.TypeLoginSucceeded || e.AggregateType != event.AggregateTypeSession {
		t.Errorf("event = %s/%s", e.AggregateType, e.EventType)
	}
	if e.AggregateID != "admin" || e.Version != 2 {
		t.Errorf("AggregateID/Version = %s/%d, want admin/2", e.AggregateID, e.Version)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAtが設定されていない")
	}
}
