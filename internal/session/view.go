package session

import "encoding/json"

// notAvailable は上流APIから取得できない項目に設定する値。
const notAvailable = "N/A"

// ルーターの機能の状態を表す値。
const (
	statusEnabled  = "enabled"
	statusDisabled = "disabled"
)

// RouterInfoView はルーター情報を正規化したレスポンス。
type RouterInfoView struct {
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmwareVersion"`
	MacAddress      string `json:"macAddress"`
	SerialNumber    string `json:"serialNumber"`
	Uptime          string `json:"uptime"`
	WifiStatus      string `json:"wifiStatus"`
	FirewallStatus  string `json:"firewallStatus"`
}

// newRouterInfoView は/api/router-configのレスポンスをRouterInfoViewに変換する。
//
// 上流のペイロードにはモデル名・ファームウェア・シリアル番号・稼働時間が
// 含まれないため、これらは常に "N/A" となる。
// オブジェクト以外のペイロードは空の設定として扱う。
func newRouterInfoView(raw json.RawMessage) RouterInfoView {
	var cfg map[string]any
	_ = json.Unmarshal(raw, &cfg)

	view := RouterInfoView{
		Model:           notAvailable,
		FirmwareVersion: notAvailable,
		MacAddress:      notAvailable,
		SerialNumber:    notAvailable,
		Uptime:          notAvailable,
		WifiStatus:      statusDisabled,
		FirewallStatus:  statusDisabled,
	}

	if devices, ok := cfg["connectedDevices"].([]any); ok && len(devices) > 0 {
		if device, ok := devices[0].(map[string]any); ok {
			if mac, ok := device["macAddress"].(string); ok && mac != "" {
				view.MacAddress = mac
			}
		}
	}
	if truthy(field(cfg, "wifiSettings", "enabled")) {
		view.WifiStatus = statusEnabled
	}
	if truthy(field(cfg, "securitySettings", "firewallEnabled")) {
		view.FirewallStatus = statusEnabled
	}
	return view
}

// field はネストしたオブジェクトからキーの値を取り出す。途中が欠けている場合はnil。
func field(obj map[string]any, section, key string) any {
	nested, ok := obj[section].(map[string]any)
	if !ok {
		return nil
	}
	return nested[key]
}

// truthy はJSON値が真とみなせるかを判定する。
// false、0、空文字列、nullは偽、それ以外は真。
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
