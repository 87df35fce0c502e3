// Package config はゲートウェイとルーターシミュレータの設定を読み込む。
//
// 設定は「既定値 → YAMLファイル（CONFIG_FILE）→ 環境変数」の順に上書きされる。
// 環境変数は .env ファイルからも読み込まれるが、既に設定済みの値は上書きしない。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/routergw/internal/session"
)

// 既定値。
const (
	DefaultPort            = "8080"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultBodyLimitBytes  = 50 << 20
	DefaultSimPort         = "8090"
	DefaultSimUsername     = "admin"
	DefaultSimPassword     = "admin"
	// DefaultSimDSN はプロセス内で共有されるインメモリSQLite。
	DefaultSimDSN = "file:routersim?mode=memory&cache=shared"
	// DefaultJWTSecret は開発用の署名鍵。本番環境では必ず JWT_SECRET を設定すること。
	DefaultJWTSecret = "dev-secret-key"
)

// Config はアプリケーション全体の設定。
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// GatewayConfig はセッションゲートウェイの設定。
type GatewayConfig struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// UpstreamURL はルーター管理APIのベースURL。
	UpstreamURL string `yaml:"upstream_url"`
	// TokenTTL はキャッシュしたトークンの有効期間。
	TokenTTL time.Duration `yaml:"token_ttl"`
	// UpstreamTimeout は上流APIへのリクエストタイムアウト。
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// CORSOrigins は許可するオリジンの一覧。"*" はすべてを許可する。
	CORSOrigins []string `yaml:"cors_origins"`
	// BodyLimitBytes はリクエストボディの上限。0以下で無制限。
	BodyLimitBytes int64 `yaml:"body_limit_bytes"`
}

// SimulatorConfig はルーターシミュレータの設定。
type SimulatorConfig struct {
	Port      string        `yaml:"port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DSN       string        `yaml:"dsn"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Default は既定値で埋めた設定を返す。
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:            DefaultPort,
			UpstreamURL:     session.DefaultBaseURL,
			TokenTTL:        session.DefaultTokenTTL,
			UpstreamTimeout: DefaultUpstreamTimeout,
			CORSOrigins:     []string{"*"},
			BodyLimitBytes:  DefaultBodyLimitBytes,
		},
		Simulator: SimulatorConfig{
			Port:      DefaultSimPort,
			Username:  DefaultSimUsername,
			Password:  DefaultSimPassword,
			DSN:       DefaultSimDSN,
			JWTSecret: DefaultJWTSecret,
			TokenTTL:  time.Hour,
		},
	}
}

// Load は .env を読み込んだ上で、プロセスの環境変数から設定を構築する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return LoadFrom(os.Getenv)
}

// LoadFrom は getenv を環境変数の取得元として設定を構築する。
// CONFIG_FILE が設定されていればYAMLファイルを読み込み、その後に環境変数を適用する。
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

// mergeFile はYAMLファイルの内容を現在の設定に上書きする。
// ファイルに記述の無い項目は既定値のまま残る。
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルのパースに失敗: %s: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数の値を設定に反映する。空の変数は無視する。
func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sの値が不正: %q: %w", key, v, err)
		}
		*dst = d
		return nil
	}

	setString("PORT", &c.Gateway.Port)
	setString("UPSTREAM_URL", &c.Gateway.UpstreamURL)
	if err := setDuration("TOKEN_TTL", &c.Gateway.TokenTTL); err != nil {
		return err
	}
	if err := setDuration("UPSTREAM_TIMEOUT", &c.Gateway.UpstreamTimeout); err != nil {
		return err
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Gateway.CORSOrigins = splitList(v)
	}
	if v := getenv("BODY_LIMIT_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BODY_LIMIT_BYTESの値が不正: %q: %w", v, err)
		}
		c.Gateway.BodyLimitBytes = n
	}

	setString("SIM_PORT", &c.Simulator.Port)
	setString("SIM_USERNAME", &c.Simulator.Username)
	setString("SIM_PASSWORD", &c.Simulator.Password)
	setString("SIM_DB_DSN", &c.Simulator.DSN)
	setString("JWT_SECRET", &c.Simulator.JWTSecret)
	return setDuration("SIM_TOKEN_TTL", &c.Simulator.TokenTTL)
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	g := c.Gateway
	switch {
	case g.Port == "":
		return errors.New("gateway.port is required")
	case g.TokenTTL <= 0:
		return fmt.Errorf("gateway.token_ttl must be positive: %s", g.TokenTTL)
	case g.UpstreamTimeout <= 0:
		return fmt.Errorf("gateway.upstream_timeout must be positive: %s", g.UpstreamTimeout)
	case len(g.CORSOrigins) == 0:
		return errors.New("gateway.cors_origins must not be empty")
	}
	u, err := url.Parse(g.UpstreamURL)
	if err != nil {
		return fmt.Errorf("gateway.upstream_url is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway.upstream_url must be an absolute http(s) URL: %q", g.UpstreamURL)
	}

	s := c.Simulator
	switch {
	case s.Port == "":
		return errors.New("simulator.port is required")
	case s.Username == "" || s.Password == "":
		return errors.New("simulator.username and simulator.password are required")
	case s.DSN == "":
		return errors.New("simulator.dsn is required")
	case s.JWTSecret == "":
		return errors.New("simulator.jwt_secret is required")
	case s.TokenTTL <= 0:
		return fmt.Errorf("simulator.token_ttl must be positive: %s", s.TokenTTL)
	}
	return nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
