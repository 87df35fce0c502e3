// ルーターシミュレータのエントリポイント。
// 上流のルーター管理APIと同じエンドポイントをローカルで提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/routergw/internal/config"
	"github.com/nao1215/routergw/internal/routersim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := routersim.NewServer(ctx, cfg.Simulator)
	if err != nil {
		log.Fatalf("シミュレータの初期化に失敗: %v", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("シミュレータの停止に失敗: %v", err)
		}
	}()

	if cfg.Simulator.JWTSecret == config.DefaultJWTSecret {
		log.Printf("[RouterSim] 警告: 開発用のJWTシークレットを使用しています")
	}
	log.Printf("ルーターシミュレータを起動します: :%s", cfg.Simulator.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("ルーターシミュレータの起動に失敗: %v", err)
	}
}
