package routersim

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/routergw/internal/config"
	"github.com/nao1215/routergw/pkg/middleware"
)

const (
	// defaultEventLimit は GET /api/events の既定の取得件数。
	defaultEventLimit = 50
	// maxEventLimit は GET /api/events で指定できる最大件数。
	maxEventLimit = 500
)

// Server はルーター管理APIを模したHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はリッスン用のHTTPサーバー。
	httpServer *http.Server
	// store はルーターの状態とイベントを保持する。
	store *Store
	// cfg は認証情報とJWTの設定。
	cfg config.SimulatorConfig
}

// loginRequest は POST /api/login のリクエストボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewServer は新しいシミュレータサーバーを生成する。
func NewServer(ctx context.Context, cfg config.SimulatorConfig) (*Server, error) {
	store, err := OpenStore(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())

	s := &Server{
		router: router,
		store:  store,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown はサーバーを停止し、データベース接続を閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.store.Close())
}

// Close はHTTPサーバーを起動せずに使った場合の後始末を行う。
func (s *Server) Close() error {
	return s.store.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.POST("/api/login", s.handleLogin())

	api := s.router.Group("/api")
	api.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		api.GET("/router-config", s.handleRouterConfig())
		api.POST("/toggle-wifi", s.handleToggle(SettingWifi, "wifiEnabled"))
		api.POST("/toggle-firewall", s.handleToggle(SettingFirewall, "firewallEnabled"))
		api.GET("/events", s.handleEvents())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "routersim"})
	})
}

// handleLogin は管理者の認証を行い、JWTを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required"})
			return
		}

		ok := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.Password)) == 1
		if err := s.store.RecordLogin(c.Request.Context(), req.Username, c.ClientIP(), ok); err != nil {
			log.Printf("[RouterSim] ログインイベントの記録に失敗: %v", err)
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}

		token, err := middleware.GenerateJWT(s.cfg.JWTSecret, req.Username, s.cfg.TokenTTL)
		if err != nil {
			log.Printf("[RouterSim] JWT生成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// handleRouterConfig は現在のルーター設定を返すハンドラを返す。
func (s *Server) handleRouterConfig() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := s.store.RouterConfig(c.Request.Context())
		if err != nil {
			log.Printf("[RouterSim] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load router configuration"})
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// handleToggle は設定を反転するハンドラを返す。
// レスポンスは {"success": true, <field>: 反転後の値}。
func (s *Server) handleToggle(setting Setting, field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		enabled, err := s.store.Toggle(c.Request.Context(), setting, middleware.GetUsername(c))
		if err != nil {
			log.Printf("[RouterSim] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to update router settings"})
			return
		}
		log.Printf("[RouterSim] %sを切り替えました: enabled=%t", setting, enabled)
		c.JSON(http.StatusOK, gin.H{"success": true, field: enabled})
	}
}

// handleEvents は新しい順にアクティビティログを返すハンドラを返す。
func (s *Server) handleEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultEventLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxEventLimit {
				c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("limit must be between 1 and %d", maxEventLimit)})
				return
			}
			limit = n
		}

		events, err := s.store.Events(c.Request.Context(), limit)
		if err != nil {
			log.Printf("[RouterSim] %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}
