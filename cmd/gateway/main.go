// エッジゲートウェイサービスのエントリポイント。
// ベアラートークン認証、動的ルーティング、サービスレジストリとの
// ルート同期を担当する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/go-hclog"

	"github.com/nao1215/edgegate/internal/gateway"
	"github.com/nao1215/edgegate/internal/reconciler"
	"github.com/nao1215/edgegate/internal/registry"
	"github.com/nao1215/edgegate/internal/routestore"
	"github.com/nao1215/edgegate/pkg/token"
)

func main() {
	port := getEnvOr("PORT", "8080")
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRETが設定されていません")
	}

	openEndpoints := splitList(getEnvOr("OPEN_ENDPOINTS", "/health,/auth"))
	excluded := splitList(getEnvOr("EXCLUDED_SERVICES", "consul,gateway"))
	dbPath := getEnvOr("ROUTE_DB_PATH", "routes.db")

	interval, err := time.ParseDuration(getEnvOr("RECONCILE_INTERVAL", "30s"))
	if err != nil {
		log.Fatalf("RECONCILE_INTERVALの形式が不正: %v", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "edgegate",
		Level: hclog.LevelFromString(getEnvOr("LOG_LEVEL", "info")),
	})

	// Consulの接続先はCONSUL_HTTP_ADDRなど標準の環境変数から読まれる
	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		log.Fatalf("Consulクライアントの初期化に失敗: %v", err)
	}
	source := registry.NewConsulSource(client, logger)

	store, err := routestore.Open(dbPath)
	if err != nil {
		log.Fatalf("ルート定義ストアのオープンに失敗: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 前回稼働時に永続化したルートがあれば先に読み込んでおく。
	// 初回リコンサイルが走るまでの間も転送を継続できる。
	table := gateway.NewRouteTable(store, logger)
	if err := table.Reload(ctx); err != nil {
		logger.Warn("ルーティングテーブルの初期読み込みに失敗しました", "error", err)
	}

	rec := reconciler.New(reconciler.Config{
		Source:     source,
		Store:      store,
		Publisher:  table,
		Exclusions: reconciler.NewExclusionPolicy(excluded),
		Logger:     logger,
		Interval:   interval,
	})

	go source.Watch(ctx, rec.Notify())
	go rec.Run(ctx)

	server := gateway.NewServer(gateway.Config{
		Port:           port,
		Verifier:       token.NewVerifier(secret),
		Table:          table,
		Resolver:       source,
		OpenEndpoints:  openEndpoints,
		AllowedOrigins: splitList(getEnvOr("FRONTEND_URL", "http://localhost:3000")),
		Logger:         logger,
	})

	log.Printf("Gatewayサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}

// getEnvOr は環境変数を取得し、未設定ならデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// splitList はカンマ区切りの環境変数値を要素のスライスに分解する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
