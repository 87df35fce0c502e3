package routersim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/routergw/internal/config"
	"github.com/nao1215/routergw/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer はインメモリSQLiteを使うテスト用サーバーを生成する。
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default().Simulator
	cfg.DSN = ":memory:"
	cfg.JWTSecret = "test-secret-key"
	s, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// serve はサーバーにリクエストを送信する。tokenが空でなければBearerトークンを付与する。
func serve(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// login は既定の認証情報でログインしてトークンを返す。
func login(t *testing.T, s *Server) string {
	t.Helper()
	w := serve(s, http.MethodPost, "/api/login", `{"username":"admin","password":"admin"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ログインのステータスコード = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Token == "" {
		t.Fatalf("トークンの取得に失敗: %v: %s", err, w.Body.String())
	}
	return body.Token
}

// TestLogin はログインエンドポイントを検証する。
func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報でトークンが発行されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		if token := login(t, s); strings.Count(token, ".") != 2 {
			t.Errorf("JWT形式ではない: %q", token)
		}
	})

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "誤ったパスワードで401が返ること",
			body:        `{"username":"admin","password":"wrong"}`,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Invalid credentials",
		},
		{
			name:        "パスワードが無い場合400が返ること",
			body:        `{"username":"admin"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Username and password are required",
		},
		{
			name:        "不正なJSONで400が返ること",
			body:        `not json`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Username and password are required",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := serve(newTestServer(t), http.MethodPost, "/api/login", tt.body, "")
			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}

// TestProtectedEndpoints はJWTで保護されたエンドポイントを検証する。
func TestProtectedEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("トークンが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		for _, path := range []string{"/api/toggle-wifi", "/api/toggle-firewall"} {
			if w := serve(s, http.MethodPost, path, `{}`, ""); w.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", path, w.Code, http.StatusUnauthorized)
			}
		}
		if w := serve(s, http.MethodGet, "/api/router-config", "", "invalid"); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("期限切れのトークンは401が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		expired, err := middleware.GenerateJWT("test-secret-key", "admin", -time.Minute)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}
		if w := serve(s, http.MethodGet, "/api/router-config", "", expired); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("設定の取得と切り替えができること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		token := login(t, s)

		w := serve(s, http.MethodGet, "/api/router-config", "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var cfg RouterConfig
		if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("レスポンスのパースに失敗: %v", err)
		}
		if !cfg.WifiSettings.Enabled || len(cfg.ConnectedDevices) == 0 {
			t.Errorf("cfg = %+v", cfg)
		}

		w = serve(s, http.MethodPost, "/api/toggle-wifi", `{}`, token)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"success":true,"wifiEnabled":false}` {
			t.Errorf("body = %s", got)
		}

		w = serve(s, http.MethodPost, "/api/toggle-firewall", `{}`, token)
		if got := w.Body.String(); got != `{"firewallEnabled":false,"success":true}` {
			t.Errorf("body = %s", got)
		}
	})
}

// TestEventsEndpoint はアクティビティログのエンドポイントを検証する。
func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	token := login(t, s)
	serve(s, http.MethodPost, "/api/toggle-wifi", `{}`, token)

	w := serve(s, http.MethodGet, "/api/events", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Events []struct {
			EventType string `json:"event_type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if len(body.Events) != 2 {
		t.Fatalf("イベント数 = %d, want 2", len(body.Events))
	}
	if body.Events[0].EventType != "WifiToggled" || body.Events[1].EventType != "LoginSucceeded" {
		t.Errorf("events = %+v", body.Events)
	}

	for _, limit := range []string{"0", "abc", "501"} {
		if w := serve(s, http.MethodGet, "/api/events?limit="+limit, "", token); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: ステータスコード = %d, want %d", limit, w.Code, http.StatusBadRequest)
		}
	}
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	w := serve(newTestServer(t), http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"service":"routersim"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
