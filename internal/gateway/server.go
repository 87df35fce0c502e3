package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/routergw/internal/config"
	"github.com/nao1215/routergw/internal/session"
	"github.com/nao1215/routergw/pkg/httpclient"
	"github.com/nao1215/routergw/pkg/middleware"
)

// serverTimeout はHTTPサーバーの読み取り・書き込み・アイドルタイムアウト。
const serverTimeout = 120 * time.Second

// Server はセッションゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はタイムアウトを設定したHTTPサーバー。
	httpServer *http.Server
	// gateway は上流APIのセッションを管理する。
	gateway *session.Gateway
	// metrics はPrometheusメトリクス。
	metrics *Metrics
}

// credentialsRequest はルーター操作のリクエストボディ。
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// actionRequest は汎用アクションのリクエストボディ。
type actionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Action   string `json:"action"`
}

// NewServer は設定からゲートウェイサーバーを生成する。
func NewServer(cfg config.GatewayConfig) (*Server, error) {
	if cfg.Port == "" {
		return nil, errors.New("ポートが指定されていません")
	}

	client := httpclient.New(cfg.UpstreamURL, httpclient.WithTimeout(cfg.UpstreamTimeout))
	metrics := NewMetrics()
	gw := session.New(client,
		session.WithTokenTTL(cfg.TokenTTL),
		session.WithObserver(metrics),
	)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.BodyLimit(cfg.BodyLimitBytes))
	router.Use(metrics.Middleware())

	s := &Server{
		router:  router,
		gateway: gw,
		metrics: metrics,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			Handler:      router,
			ReadTimeout:  serverTimeout,
			WriteTimeout: serverTimeout,
			IdleTimeout:  serverTimeout,
		},
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。Shutdownによる停止はエラーとして扱わない。
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown は処理中のリクエストを待ってからサーバーを停止する。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/router")
	{
		api.POST("/interrogate", s.handleInterrogate())
		api.POST("/wifi/toggle", s.handleToggleWifi())
		api.POST("/firewall/toggle", s.handleToggleFirewall())
		api.POST("/action", s.handleAction())

		// トークンキャッシュの診断（トークン自体は返さない）
		api.GET("/session", s.handleSessionStatus())
		api.DELETE("/session", s.handleSessionInvalidate())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// handleInterrogate はルーター情報を取得するハンドラを返す。
func (s *Server) handleInterrogate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if !bindBody(c, &req) {
			return
		}
		view, err := s.gateway.Interrogate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// handleToggleWifi はWiFiを切り替えるハンドラを返す。
func (s *Server) handleToggleWifi() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if !bindBody(c, &req) {
			return
		}
		writeRaw(c, func(ctx context.Context) ([]byte, error) {
			return s.gateway.ToggleWifi(ctx, req.Username, req.Password)
		})
	}
}

// handleToggleFirewall はファイアウォールを切り替えるハンドラを返す。
func (s *Server) handleToggleFirewall() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if !bindBody(c, &req) {
			return
		}
		writeRaw(c, func(ctx context.Context) ([]byte, error) {
			return s.gateway.ToggleFirewall(ctx, req.Username, req.Password)
		})
	}
}

// handleAction は名前で指定されたアクションを実行するハンドラを返す。
func (s *Server) handleAction() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if !bindBody(c, &req) {
			return
		}
		writeRaw(c, func(ctx context.Context) ([]byte, error) {
			return s.gateway.PerformAction(ctx, req.Username, req.Password, req.Action)
		})
	}
}

// handleSessionStatus はトークンキャッシュの状態を返すハンドラを返す。
func (s *Server) handleSessionStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.gateway.Status())
	}
}

// handleSessionInvalidate はキャッシュしたトークンを破棄するハンドラを返す。
func (s *Server) handleSessionInvalidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.gateway.Invalidate()
		log.Printf("[Gateway] トークンキャッシュを破棄しました: request_id=%s", middleware.GetRequestID(c))
		c.Status(http.StatusNoContent)
	}
}

// bindBody はJSONボディをdstに読み込む。
// 不正なJSONや空のボディは空のリクエストとして扱い、必須項目の検証に委ねる。
// ボディが上限を超えた場合のみ413を返してfalseを返す。
func bindBody[T any](c *gin.Context, dst *T) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return false
		}
		var zero T
		*dst = zero
	}
	return true
}

// writeRaw は上流のペイロードをそのまま200で返す。
func writeRaw(c *gin.Context, call func(ctx context.Context) ([]byte, error)) {
	raw, err := call(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// writeError はエラーの種類に応じたステータスコードで {"error": message} を返す。
// 入力検証エラーは400、それ以外は500とする。
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if session.KindOf(err) == session.KindValidation {
		status = http.StatusBadRequest
	}

	message := "Internal Server Error"
	var sessErr *session.Error
	if errors.As(err, &sessErr) {
		message = sessErr.Message
	}

	log.Printf("[Gateway] %s %s 失敗: status=%d request_id=%s error=%v",
		c.Request.Method, c.Request.URL.Path, status, middleware.GetRequestID(c), err)
	c.JSON(status, gin.H{"error": message})
}
