// セッションゲートウェイのエントリポイント。
// 上流のルーター管理APIへのログインとトークンのキャッシュを担当し、
// ルーター情報の取得とWiFi/ファイアウォールの切り替えを簡略化したAPIとして公開する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/routergw/internal/config"
	"github.com/nao1215/routergw/internal/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := gateway.NewServer(cfg.Gateway)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Gatewayサービスの停止に失敗: %v", err)
		}
	}()

	log.Printf("Gatewayサービスを起動します: :%s (upstream=%s)", cfg.Gateway.Port, cfg.Gateway.UpstreamURL)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
	log.Printf("Gatewayサービスを停止しました")
}
