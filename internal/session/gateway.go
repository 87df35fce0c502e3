package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/nao1215/routergw/pkg/httpclient"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL は上流のルーター管理APIのベースURL。
const DefaultBaseURL = "https://wifi-admin.netlify.app"

// DefaultTokenTTL はログインで取得したトークンを有効とみなす期間。
const DefaultTokenTTL = time.Hour

// 上流APIのエンドポイント。
const (
	EndpointLogin          = "/api/login"
	EndpointRouterConfig   = "/api/router-config"
	EndpointToggleWifi     = "/api/toggle-wifi"
	EndpointToggleFirewall = "/api/toggle-firewall"
)

// Action はPerformActionで実行できる操作。
type Action string

const (
	// ActionToggleWifi はWiFiの有効/無効を切り替える。
	ActionToggleWifi Action = "toggle_wifi"
	// ActionToggleFirewall はファイアウォールの有効/無効を切り替える。
	ActionToggleFirewall Action = "toggle_firewall"
)

// actionEndpoints はActionと上流エンドポイントの対応。
var actionEndpoints = map[Action]string{
	ActionToggleWifi:     EndpointToggleWifi,
	ActionToggleFirewall: EndpointToggleFirewall,
}

// Observer はゲートウェイ内部の出来事を受け取る。
// HTTP層がメトリクスの収集に使用する。
type Observer interface {
	// ObserveLogin はログインの試行結果を受け取る。
	ObserveLogin(success bool)
	// ObserveCacheLookup はトークンキャッシュの参照結果を受け取る。
	ObserveCacheLookup(hit bool)
	// ObserveUpstream は上流APIへの転送結果を受け取る。応答が無い場合のstatusは0。
	ObserveUpstream(endpoint string, status int)
	// ObserveInvalidation は401によりキャッシュが破棄されたことを受け取る。
	ObserveInvalidation()
}

type nopObserver struct{}

func (nopObserver) ObserveLogin(bool)           {}
func (nopObserver) ObserveCacheLookup(bool)     {}
func (nopObserver) ObserveUpstream(string, int) {}
func (nopObserver) ObserveInvalidation()        {}

// Gateway は上流APIのセッションを管理し、簡略化した操作を提供する。
// 複数のgoroutineから同時に使用できる。
type Gateway struct {
	// client は上流APIとの通信クライアント。
	client *httpclient.Client
	// cache はBearerトークンのキャッシュ。
	cache *TokenCache
	// ttl はトークンを有効とみなす期間。
	ttl time.Duration
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
	// logins は同じ認証情報による同時ログインをまとめる。
	logins singleflight.Group
	// observer はメトリクスの収集先。
	observer Observer
}

// Option はGatewayの設定を変更する関数。
type Option func(*Gateway)

// WithTokenTTL はトークンの有効期間を設定する。0以下の値は無視する。
func WithTokenTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithObserver はメトリクスの収集先を設定する。
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.observer = o
		}
	}
}

// New は新しいGatewayを生成する。トークンキャッシュは空の状態で始まる。
func New(client *httpclient.Client, opts ...Option) *Gateway {
	g := &Gateway{
		client:   client,
		cache:    &TokenCache{},
		ttl:      DefaultTokenTTL,
		now:      time.Now,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// loginHeaders はログイン時に送信するブラウザ相当のヘッダーを返す。
func (g *Gateway) loginHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en-GB;q=0.9,en;q=0.8")
	h.Set("Content-Type", "application/json")
	h.Set("Priority", "u=1, i")
	h.Set("Sec-Ch-Ua", `"Google Chrome";v="135", "Not-A.Brand";v="8", "Chromium";v="135"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Referer", g.client.BaseURL()+"/login")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	return h
}

// loginRequest はログインAPIのリクエストボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate は上流APIにログインしてトークンを取得し、キャッシュに保存する。
// 失敗した場合は原因にかかわらずKindAuthenticationのエラーを返す。
func (g *Gateway) Authenticate(ctx context.Context, username, password string) (string, error) {
	resp, err := g.client.Do(ctx, http.MethodPost, EndpointLogin, loginRequest{
		Username: username,
		Password: password,
	}, g.loginHeaders())
	if err != nil {
		g.observer.ObserveLogin(false)
		log.Printf("[Session] ログインに失敗: %v", err)
		return "", classifyLoginError(err)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Token == "" {
		g.observer.ObserveLogin(false)
		log.Printf("[Session] ログインレスポンスにトークンが含まれていない: status=%d", resp.StatusCode)
		return "", authenticationError(msgInvalidLoginResponse, err)
	}

	g.cache.store(body.Token, newFingerprint(username, password), g.now().Add(g.ttl))
	g.observer.ObserveLogin(true)
	return body.Token, nil
}

// classifyLoginError はログイン時の通信エラーをクライアント向けのエラーに変換する。
func classifyLoginError(err error) *Error {
	if httpclient.IsTimeout(err) {
		return authenticationError(msgConnectionTimeout, err)
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return authenticationError(authenticationFailedStem+statusErr.Message(), err)
	}
	var transportErr *httpclient.TransportError
	if errors.As(err, &transportErr) {
		return authenticationError(msgNoResponse, err)
	}
	return authenticationError(authenticationFailedStem+err.Error(), err)
}

// ValidToken はキャッシュ済みの有効なトークンを返す。
// 有効なトークンが無い場合、または別の認証情報で発行されたトークンの場合はログインする。
// 同じ認証情報による同時のキャッシュミスは1回のログインにまとめられる。
func (g *Gateway) ValidToken(ctx context.Context, username, password string) (string, error) {
	owner := newFingerprint(username, password)
	if token, ok := g.cache.lookup(owner, g.now()); ok {
		g.observer.ObserveCacheLookup(true)
		return token, nil
	}
	g.observer.ObserveCacheLookup(false)

	// 呼び出し元のキャンセルが相乗りした他の呼び出しに波及しないようにする
	loginCtx := context.WithoutCancel(ctx)
	v, err, _ := g.logins.Do(hex.EncodeToString(owner[:]), func() (any, error) {
		if token, ok := g.cache.lookup(owner, g.now()); ok {
			return token, nil
		}
		return g.Authenticate(loginCtx, username, password)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forward はトークンを付与して上流APIのエンドポイントを呼び出し、レスポンスを返す。
// methodはGETまたはPOSTで、POSTの場合は空のJSONオブジェクトを送信する。
// 401を受け取った場合はキャッシュを破棄してから失敗する。
func (g *Gateway) Forward(ctx context.Context, token, endpoint, method string) (json.RawMessage, error) {
	var body any
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		body = struct{}{}
	default:
		return nil, requestError(nil, "unsupported method %s", method)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(ctx, method, endpoint, body, header)
	if err != nil {
		return nil, g.classifyForwardError(endpoint, token, err)
	}
	g.observer.ObserveUpstream(endpoint, resp.StatusCode)

	if json.Valid(resp.Body) {
		return json.RawMessage(resp.Body), nil
	}
	// JSON以外のボディは文字列として返す
	encoded, err := json.Marshal(string(resp.Body))
	if err != nil {
		return nil, requestError(err, "%v", err)
	}
	return encoded, nil
}

// classifyForwardError は転送時の通信エラーをクライアント向けのエラーに変換する。
func (g *Gateway) classifyForwardError(endpoint, token string, err error) *Error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		g.observer.ObserveUpstream(endpoint, statusErr.StatusCode)
		if statusErr.StatusCode == http.StatusUnauthorized {
			if g.cache.clearIfCurrent(token) {
				g.observer.ObserveInvalidation()
				log.Printf("[Session] 上流APIが401を返したためトークンキャッシュを破棄: endpoint=%s", endpoint)
			}
		}
		log.Printf("[Session] 転送エラー: endpoint=%s, status=%d", endpoint, statusErr.StatusCode)
		return requestError(err, "status code %d: %s", statusErr.StatusCode, statusErr.Message())
	}

	g.observer.ObserveUpstream(endpoint, 0)
	log.Printf("[Session] 転送エラー: endpoint=%s, error=%v", endpoint, err)
	if httpclient.IsTimeout(err) {
		return requestError(err, "connection timeout")
	}
	var transportErr *httpclient.TransportError
	if errors.As(err, &transportErr) {
		return requestError(err, "no response received from server")
	}
	return requestError(err, "%v", err)
}

// Interrogate はルーターの設定を取得し、RouterInfoViewに正規化して返す。
func (g *Gateway) Interrogate(ctx context.Context, username, password string) (RouterInfoView, error) {
	if username == "" || password == "" {
		return RouterInfoView{}, validationError(msgCredentialsRequired)
	}

	raw, err := g.call(ctx, username, password, EndpointRouterConfig, http.MethodGet)
	if err != nil {
		return RouterInfoView{}, err
	}
	return newRouterInfoView(raw), nil
}

// ToggleWifi はWiFiの有効/無効を切り替え、上流APIのレスポンスをそのまま返す。
func (g *Gateway) ToggleWifi(ctx context.Context, username, password string) (json.RawMessage, error) {
	if username == "" || password == "" {
		return nil, validationError(msgCredentialsRequired)
	}
	return g.call(ctx, username, password, EndpointToggleWifi, http.MethodPost)
}

// ToggleFirewall はファイアウォールの有効/無効を切り替え、上流APIのレスポンスをそのまま返す。
func (g *Gateway) ToggleFirewall(ctx context.Context, username, password string) (json.RawMessage, error) {
	if username == "" || password == "" {
		return nil, validationError(msgCredentialsRequired)
	}
	return g.call(ctx, username, password, EndpointToggleFirewall, http.MethodPost)
}

// PerformAction はactionに対応する操作を実行する。
// 入力値の検証は上流APIを呼び出す前に行う。
func (g *Gateway) PerformAction(ctx context.Context, username, password, action string) (json.RawMessage, error) {
	if username == "" || password == "" || action == "" {
		return nil, validationError(msgActionFieldsRequired)
	}
	endpoint, ok := actionEndpoints[Action(action)]
	if !ok {
		return nil, validationError(msgInvalidAction)
	}
	return g.call(ctx, username, password, endpoint, http.MethodPost)
}

// call は有効なトークンを取得してからエンドポイントを呼び出す。
func (g *Gateway) call(ctx context.Context, username, password, endpoint, method string) (json.RawMessage, error) {
	token, err := g.ValidToken(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return g.Forward(ctx, token, endpoint, method)
}

// Status はトークンキャッシュの状態を返す。
func (g *Gateway) Status() CacheStatus {
	return g.cache.status(g.now())
}

// Invalidate はトークンキャッシュを破棄し、次の呼び出しで再ログインさせる。
func (g *Gateway) Invalidate() {
	g.cache.clear()
}
